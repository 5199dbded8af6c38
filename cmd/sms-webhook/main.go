package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Enriquefft/openclaw-sms-webhook/internal/bus"
	"github.com/Enriquefft/openclaw-sms-webhook/internal/config"
	"github.com/Enriquefft/openclaw-sms-webhook/internal/gateway"
	"github.com/Enriquefft/openclaw-sms-webhook/internal/sink/logsink"
	"github.com/Enriquefft/openclaw-sms-webhook/internal/sink/redisstream"
	"github.com/Enriquefft/openclaw-sms-webhook/internal/tailscale"
	"github.com/Enriquefft/openclaw-sms-webhook/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sms-webhook: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := bus.New()
	defer b.Close()
	b.Subscribe("log", logsink.Sink{Logger: logger})

	if cfg.Gateway.URL != "" {
		gw := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token, logger)
		// Not fatal: Send redials on the first message.
		if err := gw.Connect(ctx); err != nil {
			logger.Warn("gateway not reachable yet", "url", cfg.Gateway.URL, "err", err)
		}
		defer gw.Close()
		b.Subscribe("gateway", gw)
	}

	if cfg.Redis.URL != "" {
		sink, rdb, err := redisstream.Dial(ctx, cfg.Redis.URL, cfg.Redis.Stream, cfg.Redis.MaxLen)
		if err != nil {
			return err
		}
		defer rdb.Close()
		b.Subscribe("redis", sink)
		logger.Info("appending inbound sms to redis stream", "stream", cfg.Redis.Stream)
	}

	if cfg.Tailscale.Funnel {
		url, proc, err := tailscale.StartFunnel(cfg.Webhook.Addr, cfg.Webhook.IncomingSMSEndpoint, logger)
		if err != nil {
			return fmt.Errorf("tailscale funnel: %w", err)
		}
		defer proc.Kill()
		logger.Info("set this as the inbound SMS webhook URL", "url", url)
	}

	server := &webhook.Server{
		Addr: cfg.Webhook.Addr,
		Handler: &webhook.Handler{
			Endpoint:     cfg.Webhook.IncomingSMSEndpoint,
			MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
			Publisher:    b,
			Logger:       logger,
		},
		Logger: logger,
	}

	logger.Info("starting sms webhook", "listeners", b.ListenerCount())
	if err := server.Run(ctx); err != nil {
		return err
	}
	logger.Info("shut down")
	return nil
}
