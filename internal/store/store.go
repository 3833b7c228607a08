// Package store persists providers, channels, categories, programmes and
// preferences. SQLite and PostgreSQL implement the same Store; every
// multi-statement write runs in a single transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voyagen/vaulttv/internal/models"
)

// ErrNotFound is returned when a provider, channel or programme row does
// not exist.
var ErrNotFound = errors.New("not found")

// Store is the local replica consumed by the sync and playback layers.
type Store interface {
	CreateProvider(ctx context.Context, p *models.Provider) error
	GetProvider(ctx context.Context, id string) (*models.Provider, error)
	ListProviders(ctx context.Context) ([]models.Provider, error)
	// UpdateProviderStatus sets status and the optional fields in u.
	UpdateProviderStatus(ctx context.Context, id string, u StatusUpdate) error
	// DeleteProvider removes the provider and everything it owns.
	DeleteProvider(ctx context.Context, id string) error

	UpsertChannels(ctx context.Context, channels []models.Channel) error
	DeleteChannelsByProvider(ctx context.Context, providerID string) error
	UpsertCategories(ctx context.Context, categories []models.Category) error
	DeleteCategoriesByProvider(ctx context.Context, providerID string) error
	GetChannelsByProvider(ctx context.Context, providerID string) ([]models.Channel, error)

	// ReplaceProviderData swaps the provider's channels and categories for
	// the given sets and marks it active, all in one transaction. Favorite
	// and last-watched state carries over to channels whose id survives.
	// It fails with ErrNotFound when the provider row is gone.
	ReplaceProviderData(ctx context.Context, providerID string, channels []models.Channel, categories []models.Category, syncedAt time.Time) error
	// ApplyDelta inserts added channels, deletes removedIDs, replaces
	// categories when non-nil and recomputes the channel count from rows.
	// It returns the new count and fails with ErrNotFound like
	// ReplaceProviderData.
	ApplyDelta(ctx context.Context, providerID string, added []models.Channel, removedIDs []string, categories []models.Category, syncedAt time.Time) (int, error)

	ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error)
	GetChannel(ctx context.Context, id string) (*models.Channel, error)
	SetFavorite(ctx context.Context, id string, favorite bool) error
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	TouchLastWatched(ctx context.Context, id string, at time.Time) error
	RecentlyWatched(ctx context.Context, limit int) ([]models.Channel, error)
	ListCategories(ctx context.Context, providerID string, typ *models.StreamType) ([]models.Category, error)

	// UpsertPrograms replaces the provider's guide with programs.
	UpsertPrograms(ctx context.Context, providerID string, programs []models.Program) error
	CurrentProgram(ctx context.Context, epgID string, at time.Time) (*models.Program, error)
	UpcomingPrograms(ctx context.Context, epgID string, from, to time.Time) ([]models.Program, error)
	CleanExpiredPrograms(ctx context.Context, before time.Time) (int64, error)

	GetPreferences(ctx context.Context) (models.Preferences, error)
	SavePreferences(ctx context.Context, p models.Preferences) error
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// StatusUpdate holds the fields written by UpdateProviderStatus. Nil
// ChannelCount and LastSync leave their columns unchanged; a nil LastError
// clears last_error unless KeepError is set.
type StatusUpdate struct {
	Status       models.ProviderStatus
	ChannelCount *int
	LastSync     *time.Time
	LastError    *string
	// KeepError leaves last_error untouched when LastError is nil.
	KeepError bool
}

// ChannelFilter holds optional filters for listing channels.
type ChannelFilter struct {
	ProviderID string
	GroupTitle string
	StreamType *models.StreamType
	Favorite   *bool
	Search     string // case-insensitive substring of the name
	Limit      int    // default 50, max 500
	Offset     int
}

// Normalize clamps Limit and Offset into range.
func (f ChannelFilter) Normalize() ChannelFilter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Stats summarises the replica.
type Stats struct {
	Providers  int `json:"providers"`
	Channels   int `json:"channels"`
	Favorites  int `json:"favorites"`
	Categories int `json:"categories"`
	Programs   int `json:"programs"`
}

// Open connects to databaseURL: "sqlite://path" or "postgres://...".
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch engine, dsn := Engine(databaseURL); engine {
	case "sqlite":
		return NewSQLite(ctx, dsn)
	case "postgres":
		return NewPostgres(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database url scheme %q", engine)
	}
}

// Engine splits a database URL into its engine name and, for SQLite, the
// file path.
func Engine(databaseURL string) (engine, dsn string) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return "sqlite", strings.TrimPrefix(databaseURL, "sqlite://")
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return "sqlite", strings.TrimPrefix(databaseURL, "sqlite:")
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "postgres", databaseURL
	}
	if i := strings.Index(databaseURL, "://"); i > 0 {
		return databaseURL[:i], databaseURL
	}
	return "", databaseURL
}

type userData struct {
	favorite    bool
	lastWatched *time.Time
}

// carryUserData copies favorite and last-watched state onto fresh channels
// whose id already existed.
func carryUserData(fresh []models.Channel, prev map[string]userData) []models.Channel {
	out := make([]models.Channel, len(fresh))
	for i, ch := range fresh {
		if u, ok := prev[ch.ID]; ok {
			ch.IsFavorite = u.favorite
			ch.LastWatched = u.lastWatched
		}
		out[i] = ch
	}
	return out
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}
