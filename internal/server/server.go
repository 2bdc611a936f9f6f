package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/reclaim/internal/app"
)

// Server serves the JSON API, the status stream and local uploads
type Server struct {
	app    *app.App
	addr   string
	router *http.ServeMux
	server *http.Server
}

func New(application *app.App) *Server {
	s := &Server{
		app:  application,
		addr: fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port),
	}
	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.withConditionalMiddleware(s.router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.addr
}

// Start blocks until the server stops. A graceful shutdown returns nil.
func (s *Server) Start() error {
	s.app.Logger.Info().
		Str("address", s.addr).
		Str("status_stream", "ws://"+s.addr+statusStreamPath).
		Bool("serving_uploads", s.app.Config.Assets.UploadDir != "").
		Msg("HTTP server listening")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	start := time.Now()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Str("duration", time.Since(start).String()).Msg("HTTP server stopped")
	return nil
}
