package models

import "time"

// StreamSource is one candidate URL for playing a channel. Lists of sources
// are ordered ascending by Priority; 0 is the primary.
type StreamSource struct {
	URL        string     `json:"url"`
	Priority   int        `json:"priority"`
	Kind       SourceKind `json:"kind"`
	ErrorCount int        `json:"error_count"`
	LastError  *time.Time `json:"last_error,omitempty"`
}

// PlaybackError is the last stream error seen by a playback session.
// It lives in session state only.
type PlaybackError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	RetryCount int       `json:"retry_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// Preferences holds the single user preference document.
type Preferences struct {
	Theme            string `json:"theme" yaml:"theme"`
	DefaultQuality   string `json:"default_quality" yaml:"default_quality"`
	AutoPlay         bool   `json:"auto_play" yaml:"auto_play"`
	BufferSize       string `json:"buffer_size" yaml:"buffer_size"`
	ShowAdultContent bool   `json:"show_adult_content" yaml:"show_adult_content"`
	Language         string `json:"language" yaml:"language"`
	EPGTimeOffset    int    `json:"epg_time_offset" yaml:"epg_time_offset"`
}

// DefaultPreferences returns the preferences used before the user saves any.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:          "dark",
		DefaultQuality: "auto",
		AutoPlay:       true,
		BufferSize:     "medium",
		Language:       "en",
	}
}
