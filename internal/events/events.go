// Package events fans sync and playback notifications out to websocket
// clients.
package events

import "time"

// Event types.
const (
	ProviderStatus  = "provider.status"
	ProviderRemoved = "provider.removed"
	SyncCompleted   = "sync.completed"
	PlaybackLoad    = "playback.load"
	PlaybackState   = "playback.state"
)

// Event is one notification. Data must be JSON-encodable.
type Event struct {
	Type       string    `json:"type"`
	ProviderID string    `json:"provider_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Data       any       `json:"data,omitempty"`
	Time       time.Time `json:"time"`
}

// Publisher accepts events. Publish must not block on slow consumers.
type Publisher interface {
	Publish(e Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
