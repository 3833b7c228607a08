// Package fetcher pulls provider listings over HTTP and turns them into
// canonical channels, categories and programmes.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/parser"
	"github.com/voyagen/vaulttv/internal/worker"
)

// Result is one provider's full listing.
type Result struct {
	Channels   []models.Channel
	Categories []models.Category
	Programs   []models.Program
	// Addon is set for addon providers only.
	Addon *parser.AddonManifest
}

// Adapter fetches the listing of one provider.
type Adapter interface {
	Fetch(ctx context.Context, providerID string) (*Result, error)
}

// Parser runs parse jobs off the caller's goroutine; *worker.Task
// implements it.
type Parser interface {
	ParseM3U(ctx context.Context, providerID, text string, now time.Time) (worker.Result, error)
	ParseXtreamLive(ctx context.Context, providerID string, streams []parser.XtreamStream, baseURL string, names map[string]string, now time.Time) (worker.Result, error)
	ParseXtreamVOD(ctx context.Context, providerID string, streams []parser.XtreamStream, baseURL string, names map[string]string, now time.Time) (worker.Result, error)
}

// Factory builds adapters that share one Client and Parser.
type Factory struct {
	Client *Client
	Parser Parser
	Now    func() time.Time
}

// NewFactory returns a Factory using the wall clock.
func NewFactory(client *Client, p Parser) *Factory {
	return &Factory{Client: client, Parser: p, Now: time.Now}
}

// For selects the adapter for cfg.
func (f *Factory) For(cfg models.ProviderConfig) (Adapter, error) {
	switch c := cfg.(type) {
	case models.XtreamConfig:
		return &xtreamAdapter{cfg: c, f: f}, nil
	case models.M3UConfig:
		return &m3uAdapter{cfg: c, f: f}, nil
	case models.AddonConfig:
		return &addonAdapter{cfg: c, f: f}, nil
	case nil:
		return nil, fmt.Errorf("%w: missing provider config", models.ErrInvalidConfig)
	default:
		return nil, fmt.Errorf("%w: unsupported provider config %T", models.ErrInvalidConfig, cfg)
	}
}

func (f *Factory) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}
