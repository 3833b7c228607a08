package fetcher

import (
	"context"

	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/parser"
)

type addonAdapter struct {
	cfg models.AddonConfig
	f   *Factory
}

// Fetch validates the manifest. Addons expose no channel listing, so the
// result has no channels or categories.
func (a *addonAdapter) Fetch(ctx context.Context, providerID string) (*Result, error) {
	body, err := a.f.Client.Get(ctx, a.cfg.ManifestURL)
	if err != nil {
		return nil, err
	}
	manifest, err := parser.ParseAddonManifest(body)
	if err != nil {
		return nil, err
	}
	return &Result{Channels: []models.Channel{}, Categories: []models.Category{}, Addon: &manifest}, nil
}
