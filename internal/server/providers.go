package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/service"
)

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.deps.Store.ListProviders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if providers == nil {
		providers = []models.Provider{}
	}
	writeJSON(w, http.StatusOK, providers)
}

// handleAddProvider accepts {"name": ..., "type": "xtream"|"m3u"|"addon",
// ...config fields} and schedules the first full sync.
func (s *Server) handleAddProvider(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, err)
		return
	}
	var head struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		writeError(w, badRequest("invalid JSON: %v", err))
		return
	}
	cfg, err := models.DecodeConfig(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.deps.Sync.AddProvider(r.Context(), head.Name, cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	s.schedule(r.Context(), p.ID, service.ModeFull)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Store.GetProvider(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sync.RemoveProvider(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

// handleSyncProvider runs a sync and returns its result. With async=true
// the sync is queued and 202 returned immediately.
func (s *Server) handleSyncProvider(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	mode, err := service.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	async, err := queryBool(r, "async")
	if err != nil {
		writeError(w, err)
		return
	}
	if async != nil && *async {
		if _, err := s.deps.Store.GetProvider(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		s.schedule(r.Context(), id, mode)
		writeJSON(w, http.StatusAccepted, map[string]any{"provider_id": id, "mode": mode, "queued": true})
		return
	}
	res, err := s.deps.Sync.Sync(r.Context(), id, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// schedule queues a sync, or runs it in the background when no job runner
// is configured.
func (s *Server) schedule(ctx context.Context, id string, mode service.Mode) {
	if s.deps.Jobs != nil {
		err := s.deps.Jobs.Enqueue(ctx, id, mode)
		if err == nil {
			return
		}
		s.log.WithError(err).WithField("provider_id", id).Warn("enqueue failed, syncing in background")
	}
	go func() {
		if _, err := s.deps.Sync.Sync(context.WithoutCancel(ctx), id, mode); err != nil {
			s.log.WithError(err).WithField("provider_id", id).Debug("background sync failed")
		}
	}()
}
