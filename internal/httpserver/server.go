package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"log/slog"
)

type Server struct {
	server *http.Server
	logger *slog.Logger
}

// New builds a server whose read and write deadlines leave room for a job
// that runs for up to processTimeout.
func New(addr string, handler http.Handler, logger *slog.Logger, processTimeout time.Duration) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 15 * time.Second,
			ReadTimeout:       processTimeout,
			WriteTimeout:      processTimeout + 30*time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve is Start on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("HTTP server starting", "addr", l.Addr().String())
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
