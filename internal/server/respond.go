package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/voyagen/vaulttv/internal/fetcher"
	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/parser"
	"github.com/voyagen/vaulttv/internal/playback"
	"github.com/voyagen/vaulttv/internal/service"
	"github.com/voyagen/vaulttv/internal/store"
	"github.com/voyagen/vaulttv/internal/worker"
)

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(format string, a ...any) error {
	return &badRequestError{err: fmt.Errorf(format, a...)}
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		bad   *badRequestError
		fetch *fetcher.FetchError
		auth  *fetcher.AuthenticationError
		creds *fetcher.InvalidCredentialsError
		perr  parser.ParseError
	)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, playback.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.As(err, &bad), errors.Is(err, models.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSyncInProgress), errors.Is(err, playback.ErrNoChannel):
		return http.StatusConflict
	case errors.As(err, &fetch), errors.As(err, &auth), errors.As(err, &creds), errors.As(err, &perr):
		return http.StatusBadGateway
	case errors.Is(err, worker.ErrWorkerUnavailable), errors.Is(err, worker.ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("writeJSON")
	}
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		logrus.WithField("status", status).WithError(err).Error("request failed")
	}
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}

func writeError(w http.ResponseWriter, err error) {
	writeErr(w, statusFor(err), err)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return badRequest("invalid JSON: %v", err)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("invalid %s: %s", key, v)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	switch v := r.URL.Query().Get(key); v {
	case "":
		return nil, nil
	case "true", "1":
		b := true
		return &b, nil
	case "false", "0":
		b := false
		return &b, nil
	default:
		return nil, badRequest("invalid %s: %s (use true or false)", key, v)
	}
}

func queryStreamType(r *http.Request, key string) (*models.StreamType, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t := models.StreamType(v)
	if !t.Valid() {
		return nil, badRequest("invalid %s: %s", key, v)
	}
	return &t, nil
}
