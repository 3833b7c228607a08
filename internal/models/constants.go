package models

// ProviderStatus is the lifecycle state of a provider as surfaced to clients.
type ProviderStatus string

// Provider status values.
const (
	StatusSyncing ProviderStatus = "syncing"
	StatusActive  ProviderStatus = "active"
	StatusError   ProviderStatus = "error"
	StatusOffline ProviderStatus = "offline"
)

// Valid reports whether s is a known provider status.
func (s ProviderStatus) Valid() bool {
	switch s {
	case StatusSyncing, StatusActive, StatusError, StatusOffline:
		return true
	}
	return false
}

// StreamType classifies a channel's content.
type StreamType string

// Stream type values.
const (
	StreamLive   StreamType = "live"
	StreamMovie  StreamType = "movie"
	StreamSeries StreamType = "series"
)

// Valid reports whether t is a known stream type.
func (t StreamType) Valid() bool {
	switch t {
	case StreamLive, StreamMovie, StreamSeries:
		return true
	}
	return false
}

// SourceKind describes where a playback source comes from.
type SourceKind string

// Source kinds.
const (
	SourcePrimary SourceKind = "primary"
	SourceBackup  SourceKind = "backup"
	SourceCDN     SourceKind = "cdn"
)

// DefaultGroupTitle is used when a playlist entry carries no group.
const DefaultGroupTitle = "Uncategorized"
