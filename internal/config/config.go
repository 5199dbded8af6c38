package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// DefaultIncomingSMSEndpoint is the webhook path used when none is configured.
const DefaultIncomingSMSEndpoint = "/webhooks/sms"

// DefaultMaxBodyBytes caps inbound request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Config holds all configuration for the SMS webhook receiver.
type Config struct {
	Webhook   WebhookConfig   `toml:"webhook"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Redis     RedisConfig     `toml:"redis"`
	Tailscale TailscaleConfig `toml:"tailscale"`
	Log       LogConfig       `toml:"log"`
}

type WebhookConfig struct {
	Addr                string `toml:"addr" env:"SMS_WEBHOOK_ADDR"`
	IncomingSMSEndpoint string `toml:"incoming_sms_endpoint" env:"NEXMO_WEBHOOKS_INCOMING_SMS_ENDPOINT"`
	MaxBodyBytes        int64  `toml:"max_body_bytes" env:"SMS_WEBHOOK_MAX_BODY_BYTES"`
}

// GatewayConfig enables forwarding to the OpenClaw gateway when URL is set.
type GatewayConfig struct {
	URL   string `toml:"url" env:"OPENCLAW_GATEWAY_URL"`
	Token string `toml:"token" env:"OPENCLAW_TOKEN"`
}

// RedisConfig enables appending events to a Redis stream when URL is set.
type RedisConfig struct {
	URL    string `toml:"url" env:"REDIS_URL"`
	Stream string `toml:"stream" env:"SMS_REDIS_STREAM"`
	MaxLen int64  `toml:"max_len" env:"SMS_REDIS_MAXLEN"`
}

type TailscaleConfig struct {
	Funnel bool `toml:"funnel" env:"SMS_TAILSCALE_FUNNEL"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"SMS_LOG_LEVEL"`
	Format string `toml:"format" env:"SMS_LOG_FORMAT"`
}

func defaults() Config {
	return Config{
		Webhook: WebhookConfig{
			Addr:                ":18791",
			IncomingSMSEndpoint: DefaultIncomingSMSEndpoint,
			MaxBodyBytes:        DefaultMaxBodyBytes,
		},
		Redis: RedisConfig{
			Stream: "sms:inbound",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the TOML config file (if it exists) and
// applies environment variable overrides. Env vars always win.
//
// Config file resolution: SMS_WEBHOOK_CONFIG env var → ~/.config/sms-webhook/config.toml → skip.
func Load() (*Config, error) {
	cfg := defaults()

	path := configPath()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func configPath() string {
	if p := os.Getenv("SMS_WEBHOOK_CONFIG"); p != "" {
		return expandHome(p)
	}
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "sms-webhook", "config.toml")
}

// Validate normalises values and rejects settings the receiver cannot run with.
func (c *Config) Validate() error {
	c.Webhook.IncomingSMSEndpoint = normalizeEndpoint(c.Webhook.IncomingSMSEndpoint)
	if c.Webhook.IncomingSMSEndpoint == "/health" {
		return fmt.Errorf("incoming_sms_endpoint must not be /health")
	}
	// The endpoint becomes a literal ServeMux pattern; braces would turn into
	// wildcards and whitespace would split the method from the path.
	if strings.ContainsAny(c.Webhook.IncomingSMSEndpoint, "{}?#") || strings.IndexFunc(c.Webhook.IncomingSMSEndpoint, unicode.IsSpace) >= 0 {
		return fmt.Errorf("incoming_sms_endpoint %q must be a literal path", c.Webhook.IncomingSMSEndpoint)
	}

	if c.Webhook.MaxBodyBytes <= 0 {
		c.Webhook.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if c.Redis.Stream == "" {
		c.Redis.Stream = "sms:inbound"
	}
	if c.Redis.MaxLen < 0 {
		c.Redis.MaxLen = 0
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text":
		c.Log.Format = "text"
	case "json":
		c.Log.Format = "json"
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	return nil
}

// NewLogger builds the process logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// normalizeEndpoint ensures a leading slash and drops trailing ones.
// An empty path falls back to the default endpoint.
func normalizeEndpoint(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimRight(p, "/")
	if p == "" {
		return DefaultIncomingSMSEndpoint
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
