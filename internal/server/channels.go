package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/store"
)

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ChannelFilter{
		ProviderID: q.Get("provider_id"),
		GroupTitle: q.Get("group"),
		Search:     q.Get("search"),
	}
	var err error
	if filter.StreamType, err = queryStreamType(r, "type"); err != nil {
		writeError(w, err)
		return
	}
	if filter.Favorite, err = queryBool(r, "favorite"); err != nil {
		writeError(w, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeError(w, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeError(w, err)
		return
	}
	// Apply defaults so the response reflects actual values used.
	filter = filter.Normalize()

	channels, total, err := s.deps.Store.ListChannels(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"total":    total,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (s *Server) handleRecentChannels(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, err)
		return
	}
	channels, err := s.deps.Store.RecentlyWatched(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.deps.Store.GetChannel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

type favoriteRequest struct {
	Favorite *bool `json:"favorite"`
}

// handleFavorite sets the favorite flag from the body, or toggles it when
// the body is empty.
func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req favoriteRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var (
		fav bool
		err error
	)
	if req.Favorite != nil {
		fav = *req.Favorite
		err = s.deps.Store.SetFavorite(r.Context(), id, fav)
	} else {
		fav, err = s.deps.Store.ToggleFavorite(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_favorite": fav})
}

// handleChannelEPG returns the programme airing now and those starting in
// the next hours (default 6).
func (s *Server) handleChannelEPG(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", 6)
	if err != nil {
		writeError(w, err)
		return
	}
	if hours <= 0 || hours > 168 {
		writeError(w, badRequest("hours must be between 1 and 168"))
		return
	}
	ch, err := s.deps.Store.GetChannel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"channel_id": ch.ID, "current": nil, "upcoming": []models.Program{}}
	if ch.EPGID == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	now := time.Now().UTC()
	cur, err := s.deps.Store.CurrentProgram(r.Context(), *ch.EPGID, now)
	switch {
	case err == nil:
		resp["current"] = cur
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, err)
		return
	}
	upcoming, err := s.deps.Store.UpcomingPrograms(r.Context(), *ch.EPGID, now, now.Add(time.Duration(hours)*time.Hour))
	if err != nil {
		writeError(w, err)
		return
	}
	if upcoming != nil {
		resp["upcoming"] = upcoming
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	typ, err := queryStreamType(r, "type")
	if err != nil {
		writeError(w, err)
		return
	}
	cats, err := s.deps.Store.ListCategories(r.Context(), r.URL.Query().Get("provider_id"), typ)
	if err != nil {
		writeError(w, err)
		return
	}
	if cats == nil {
		cats = []models.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Store.GetPreferences(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleSavePreferences merges the body onto the stored preferences.
func (s *Server) handleSavePreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Store.GetPreferences(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Store.SavePreferences(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
