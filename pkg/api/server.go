// Package api serves the persona runtime over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/personaforge/personaforge/config"
	"github.com/personaforge/personaforge/pkg/logger"
)

// Server is the lifecycle the serve command drives.
type Server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// HTTPServer serves the router built from Handlers.
type HTTPServer struct {
	cfg    config.ServerConfig
	server *http.Server
	router chi.Router
	log    logger.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewHTTPServer builds the server for cfg.Server around handlers.
func NewHTTPServer(cfg *config.Config, log logger.Logger, handlers *Handlers) *HTTPServer {
	router := NewRouter(cfg, log, handlers)
	httpCfg := cfg.Server.HTTP

	return &HTTPServer{
		cfg:    cfg.Server,
		router: router,
		log:    log,
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port)),
			Handler:           router,
			ReadTimeout:       httpCfg.ReadTimeout,
			ReadHeaderTimeout: httpCfg.ReadTimeout,
			WriteTimeout:      httpCfg.WriteTimeout,
			IdleTimeout:       httpCfg.IdleTimeout,
			MaxHeaderBytes:    httpCfg.MaxHeaderBytes,
		},
	}
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler { return s.router }

// Addr is the bound address once Start or Serve is listening, else nil.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start listens on the configured address and serves until Shutdown.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.log.Error("HTTP server failed", "addr", s.server.Addr, "error", err)
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown, then returns nil.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.log.Info("Starting HTTP server",
		"addr", ln.Addr().String(),
		"request_timeout", s.cfg.HTTP.RequestTimeout,
		"write_timeout", s.cfg.HTTP.WriteTimeout,
	)
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("HTTP server failed", "error", err)
		return fmt.Errorf("HTTP server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight turns. Without a deadline on ctx the configured
// shutdown timeout applies.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && s.cfg.HTTP.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.HTTP.ShutdownTimeout)
		defer cancel()
	}

	s.log.Info("Shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}
