// Package server provides the HTTP surface of facewatch: health, stats, the
// annotated video stream and the live recognition feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ayusman/facewatch/internal/server/api"
	"github.com/ayusman/facewatch/internal/store"
)

// Config holds the server configuration. Every field is optional; routes
// whose dependency is missing are not registered.
type Config struct {
	StaticDir  string
	Stats      api.StatsProvider
	Identities api.LiveIdentities
	// Database enables identity lookup and deletion.
	Database *store.Store
	Frames   *FrameHub
	Feed     *ResultFeed
}

// Server represents the HTTP server.
type Server struct {
	config     Config
	router     *chi.Mux
	httpServer *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	s := &Server{config: config, router: r}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	status := api.NewStatusHandler(s.config.Stats)
	s.router.Get("/api/health", status.Health)
	s.router.Get("/api/stats", status.Stats)

	if s.config.Identities != nil {
		identities := api.NewIdentityHandler(s.config.Identities, s.config.Database)
		s.router.Route("/api/identities", identities.Routes)
	}
	if s.config.Frames != nil {
		s.router.Method(http.MethodGet, "/api/stream", s.config.Frames)
	}
	if s.config.Feed != nil {
		s.router.Method(http.MethodGet, "/api/recognitions", s.config.Feed)
	}

	if s.config.StaticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("http server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server. Open streams are cut when ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
