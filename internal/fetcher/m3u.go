package fetcher

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/parser"
)

type m3uAdapter struct {
	cfg models.M3UConfig
	f   *Factory
}

// Fetch downloads and parses the playlist. When an EPG URL is configured the
// guide is loaded too; a guide failure is logged and leaves Programs empty.
func (a *m3uAdapter) Fetch(ctx context.Context, providerID string) (*Result, error) {
	log := logrus.WithFields(logrus.Fields{"component": "fetcher", "provider_id": providerID, "type": "m3u"})

	body, err := a.f.Client.Get(ctx, a.cfg.URL)
	if err != nil {
		return nil, err
	}
	res, err := a.f.Parser.ParseM3U(ctx, providerID, string(body), a.f.now())
	if err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}
	if len(res.Issues) > 0 {
		log.WithField("issues", len(res.Issues)).Debug("playlist parsed with degraded fields")
	}

	out := &Result{
		Channels:   res.Channels,
		Categories: parser.M3UCategories(providerID, res.Channels),
	}
	if a.cfg.EPGURL != nil && *a.cfg.EPGURL != "" {
		programs, err := FetchEPG(ctx, a.f.Client, *a.cfg.EPGURL, providerID)
		if err != nil {
			log.WithError(err).Warn("epg fetch failed")
		} else {
			out.Programs = programs
		}
	}
	return out, nil
}

// FetchEPG downloads an XMLTV guide (plain or gzipped) and parses it.
func FetchEPG(ctx context.Context, c *Client, epgURL, providerID string) ([]models.Program, error) {
	body, err := c.Get(ctx, epgURL)
	if err != nil {
		return nil, err
	}
	body, err = gunzipIfNeeded(body, c.maxBody)
	if err != nil {
		return nil, err
	}
	programs, issues, err := parser.ParseXMLTV(bytes.NewReader(body), providerID)
	if err != nil {
		return nil, err
	}
	if len(issues) > 0 {
		logrus.WithFields(logrus.Fields{"component": "fetcher", "provider_id": providerID, "skipped": len(issues)}).
			Debug("epg programmes skipped")
	}
	return programs, nil
}
