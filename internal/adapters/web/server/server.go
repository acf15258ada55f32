package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Server exposes the operational endpoints: Prometheus metrics, liveness and
// readiness.
type Server struct {
	Addr string

	mu     sync.RWMutex
	checks map[string]ReadinessCheck
	srv    *http.Server
}

// NewServer creates a new ops server.
func NewServer(addr string) *Server {
	return &Server{Addr: addr, checks: make(map[string]ReadinessCheck)}
}

// AddReadinessCheck registers a dependency probed by /readyz.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Instrument with OpenTelemetry
	instrumentedHandler := otelhttp.NewHandler(SetupRoutes(s), "meshmon-ops")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           instrumentedHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful Shutdown implementation
	go func() {
		<-ctx.Done()
		slog.Info("Ops server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Ops server shutdown error", "error", err)
		}
	}()

	slog.Info("Ops server listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
