// Package web exposes the HTTP API: batch lifecycle, registrations, photo
// corrections, the Drive connection and processing event streams.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/drive"
	"github.com/kozaktomas/photo-batcher/internal/mailer"
	"github.com/kozaktomas/photo-batcher/internal/processor"
	"github.com/kozaktomas/photo-batcher/internal/store"
	"github.com/kozaktomas/photo-batcher/internal/web/middleware"
)

// Server is the HTTP API server.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	log        zerolog.Logger

	store     *store.Store
	processor *processor.Manager
	drive     *drive.Manager
	mail      mailer.Sender
}

// NewServer wires the API around its collaborators.
func NewServer(cfg *config.Config, host string, port int, st *store.Store,
	pm *processor.Manager, dm *drive.Manager, sender mailer.Sender, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:    cfg,
		router:    r,
		log:       log,
		store:     st,
		processor: pm,
		drive:     dm,
		mail:      sender,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // uploads and SSE streams run long
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
