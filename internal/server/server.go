package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Server wraps http.Server and tracks the BackgroundWriter goroutines
// its Handler spawns, so Shutdown can await them before returning (§5:
// "the server MUST track it and await its completion during shutdown").
type Server struct {
	httpServer *http.Server
	background *sync.WaitGroup
	logger     *slog.Logger
}

// New builds a Server listening on port, serving mux through the
// standard middleware chain.
func New(port int, readTimeout, writeTimeout time.Duration, mux *http.ServeMux, background *sync.WaitGroup, logger *slog.Logger) *Server {
	wrapped := Chain(mux,
		RequestID,
		Logger(logger),
		Recovery(logger),
		CORS,
	)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           wrapped,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
		},
		background: background,
		logger:     logger,
	}
}

// ListenAndServe starts serving until Shutdown is called or a fatal
// listen error occurs.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections, waits for in-flight requests
// per ctx, then waits for every tracked background writer to finish
// before returning — joining the goroutines the spec requires the
// server to await (§5).
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("background writers did not finish before shutdown deadline")
		return ctx.Err()
	}
}
