package server

import (
	"errors"
	"net/http"

	"github.com/voyagen/vaulttv/internal/events"
	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/playback"
)

type sessionRequest struct {
	ChannelID string                `json:"channel_id"`
	Backups   []models.StreamSource `json:"backups"`
}

type streamErrorRequest struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ChannelID == "" {
		writeError(w, badRequest("channel_id is required"))
		return
	}
	sess, err := s.deps.Playback.Open(r.Context(), req.ChannelID, req.Backups)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeSession(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(*playback.Session) error { return nil })
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Playback.Close(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleSessionError(w http.ResponseWriter, r *http.Request) {
	var req streamErrorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Code == "" {
		req.Code = "unknown"
	}
	s.withSession(w, r, func(sess *playback.Session) error {
		sess.HandleError(req.Code, req.Message)
		return nil
	})
}

func (s *Server) handleSessionRetry(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *playback.Session) error { return sess.ManualRetry() })
}

func (s *Server) handleSessionPlaying(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *playback.Session) error {
		sess.ReportPlaying()
		return nil
	})
}

func (s *Server) handleSessionChannel(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ChannelID == "" {
		writeError(w, badRequest("channel_id is required"))
		return
	}
	sess, err := s.deps.Playback.SelectChannel(r.Context(), r.PathValue("id"), req.ChannelID, req.Backups)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeSession(w, http.StatusOK, sess)
}

func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(*playback.Session) error) {
	sess, err := s.deps.Playback.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := fn(sess); err != nil {
		writeError(w, err)
		return
	}
	s.writeSession(w, http.StatusOK, sess)
}

// writeSession responds with the snapshot and publishes it to event clients.
func (s *Server) writeSession(w http.ResponseWriter, status int, sess *playback.Session) {
	snap := sess.Snapshot()
	s.pub.Publish(events.Event{Type: events.PlaybackState, SessionID: snap.SessionID, Data: snap})
	var failed *playback.StreamFailedError
	if errors.As(sess.Err(), &failed) {
		w.Header().Set("X-Stream-Failed", "true")
	}
	writeJSON(w, status, snap)
}
