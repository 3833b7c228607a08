package models

import "time"

// Channel is a single playable entry owned by a provider.
// ID is derived from the provider id and the upstream identifier, so it is
// stable across syncs of unchanged content.
type Channel struct {
	ID          string     `json:"id"`
	ProviderID  string     `json:"provider_id"`
	Name        string     `json:"name"`
	LogoURL     *string    `json:"logo_url,omitempty"`
	GroupTitle  string     `json:"group_title"`
	StreamURL   string     `json:"stream_url"`
	StreamType  StreamType `json:"stream_type"`
	EPGID       *string    `json:"epg_id,omitempty"`
	Number      *int       `json:"number,omitempty"`
	IsFavorite  bool       `json:"is_favorite"`
	LastWatched *time.Time `json:"last_watched,omitempty"`
	AddedAt     time.Time  `json:"added_at"`
}

// Category groups channels of one provider. Categories are regenerated on
// every full sync and never created by users.
type Category struct {
	ID           string     `json:"id"`
	ProviderID   string     `json:"provider_id"`
	Name         string     `json:"name"`
	Type         StreamType `json:"type"`
	ChannelCount int        `json:"channel_count"`
}

// Program is one EPG entry, keyed by the channel's EPG id.
type Program struct {
	ID          string    `json:"id"`
	ProviderID  string    `json:"provider_id"`
	ChannelEPG  string    `json:"channel_epg_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}
