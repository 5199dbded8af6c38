package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Server is the HTTP listener for inbound SMS webhooks.
type Server struct {
	Addr    string
	Handler *Handler
	Logger  *slog.Logger
}

// Mux builds the route table plus the health endpoint.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Handler.Register(mux)
	mux.HandleFunc("GET /health", handleHealth)
	return mux
}

// Run starts the webhook HTTP server. It blocks until ctx is cancelled, at
// which point the server is gracefully shut down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("webhook server listening", "addr", ln.Addr().String(), "endpoint", s.Handler.Endpoint)

	serveDone := make(chan struct{})
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		select {
		case <-ctx.Done():
		case <-serveDone:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("webhook shutdown", "err", err)
		}
	}()

	err := srv.Serve(ln)
	close(serveDone)
	<-shutdownDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook serve: %w", err)
	}
	return nil
}

// handleHealth returns 200 OK, used by the CLI status command.
func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
