package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned by Manager for unknown session ids.
	ErrSessionNotFound = errors.New("playback session not found")
	// ErrNoChannel is returned when a session has no channel selected.
	ErrNoChannel = errors.New("no channel selected")
)

// StreamFailedError is the terminal error of a session whose sources are
// all exhausted. Message is the last underlying stream error.
type StreamFailedError struct {
	Message    string
	RetryCount int
}

func (e *StreamFailedError) Error() string {
	return fmt.Sprintf("stream failed after %d retries: %s", e.RetryCount, e.Message)
}
