// Package server exposes providers, channels, guide data and playback
// sessions over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/voyagen/vaulttv/internal/config"
	"github.com/voyagen/vaulttv/internal/events"
	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/playback"
	"github.com/voyagen/vaulttv/internal/service"
	"github.com/voyagen/vaulttv/internal/store"
)

// Syncer is the part of service.Coordinator the API drives.
type Syncer interface {
	AddProvider(ctx context.Context, name string, cfg models.ProviderConfig) (*models.Provider, error)
	RemoveProvider(ctx context.Context, id string) error
	Sync(ctx context.Context, id string, mode service.Mode) (*service.SyncResult, error)
}

// Enqueuer schedules background syncs; *service.Jobs implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, id string, mode service.Mode) error
}

// Deps are the services behind the API. Jobs and Events may be nil.
type Deps struct {
	Store    store.Store
	Sync     Syncer
	Jobs     Enqueuer
	Playback *playback.Manager
	Events   *events.Hub
}

// Server holds dependencies for the HTTP API.
type Server struct {
	deps Deps
	cfg  *config.Config
	pub  events.Publisher
	mux  *http.ServeMux
	log  *logrus.Entry
}

// New creates a Server and registers routes.
func New(cfg *config.Config, deps Deps) *Server {
	srv := &Server{
		deps: deps,
		cfg:  cfg,
		pub:  events.Nop{},
		mux:  http.NewServeMux(),
		log:  logrus.WithField("component", "http"),
	}
	if deps.Events != nil {
		srv.pub = deps.Events
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	// Providers
	s.mux.HandleFunc("GET /api/providers", s.handleListProviders)
	s.mux.HandleFunc("POST /api/providers", s.handleAddProvider)
	s.mux.HandleFunc("GET /api/providers/{id}", s.handleGetProvider)
	s.mux.HandleFunc("DELETE /api/providers/{id}", s.handleDeleteProvider)
	s.mux.HandleFunc("POST /api/providers/{id}/sync", s.handleSyncProvider)

	// Channels
	s.mux.HandleFunc("GET /api/channels", s.handleListChannels)
	s.mux.HandleFunc("GET /api/channels/recent", s.handleRecentChannels)
	s.mux.HandleFunc("GET /api/channels/{id}", s.handleGetChannel)
	s.mux.HandleFunc("PATCH /api/channels/{id}/favorite", s.handleFavorite)
	s.mux.HandleFunc("GET /api/channels/{id}/epg", s.handleChannelEPG)

	// Categories
	s.mux.HandleFunc("GET /api/categories", s.handleListCategories)

	// Playback
	s.mux.HandleFunc("POST /api/playback/sessions", s.handleOpenSession)
	s.mux.HandleFunc("GET /api/playback/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/playback/sessions/{id}", s.handleCloseSession)
	s.mux.HandleFunc("POST /api/playback/sessions/{id}/error", s.handleSessionError)
	s.mux.HandleFunc("POST /api/playback/sessions/{id}/retry", s.handleSessionRetry)
	s.mux.HandleFunc("POST /api/playback/sessions/{id}/playing", s.handleSessionPlaying)
	s.mux.HandleFunc("PUT /api/playback/sessions/{id}/channel", s.handleSessionChannel)

	// Preferences
	s.mux.HandleFunc("GET /api/preferences", s.handleGetPreferences)
	s.mux.HandleFunc("PUT /api/preferences", s.handleSavePreferences)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler returns the mux wrapped in the CORS and logging middleware.
func (s *Server) Handler() http.Handler {
	return withCORS(withLogging(s))
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("server shutdown")
		}
	}()

	s.log.WithField("addr", addr).Info("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("event stream not enabled"))
		return
	}
	s.deps.Events.ServeHTTP(w, r)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Store.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
