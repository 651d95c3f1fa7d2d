// Package opsserver provides the bridge's small operational HTTP surface:
// a health endpoint for liveness probes, enabled by configuration.
package opsserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// Server is a minimal HTTP server exposing GET /healthz.
type Server struct {
	logger     zerolog.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	addr       string
	actualAddr string
	mu         sync.RWMutex
}

// New creates a Server for the given port. Port 0 asks the kernel for a free
// port; Addr reports the one chosen once the server is started.
func New(logger zerolog.Logger, port int) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthzHandler)

	addr := fmt.Sprintf(":%d", port)
	return &Server{
		logger: logger.With().Str("component", "OpsServer").Logger(),
		mux:    mux,
		addr:   addr,
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start begins listening and serves requests in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", listener.Addr().String()).Msg("Ops HTTP server starting to listen")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Ops HTTP server failed")
		}
	}()

	return nil
}

// Shutdown gracefully stops the server, respecting the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down ops HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error during ops HTTP server shutdown.")
		return err
	}
	s.logger.Info().Msg("Ops HTTP server stopped.")
	return nil
}

// Addr returns the address the server is actually listening on.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actualAddr
}

// Mux returns the underlying ServeMux so callers can register extra handlers
// before Start.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// HealthzHandler responds to health check probes.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
