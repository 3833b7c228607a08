package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/parser"
)

type xtreamAdapter struct {
	cfg models.XtreamConfig
	f   *Factory
}

func (a *xtreamAdapter) apiURL() string {
	base := strings.TrimSuffix(a.cfg.ServerURL, "/")
	return base + "/player_api.php?username=" + url.QueryEscape(a.cfg.Username) + "&password=" + url.QueryEscape(a.cfg.Password)
}

// Fetch authenticates, then loads both category lists and both stream
// lists concurrently. Any failure cancels the remaining requests.
func (a *xtreamAdapter) Fetch(ctx context.Context, providerID string) (*Result, error) {
	log := logrus.WithFields(logrus.Fields{"component": "fetcher", "provider_id": providerID, "type": "xtream"})
	api := a.apiURL()

	auth, err := a.authenticate(ctx, api)
	if err != nil {
		return nil, err
	}

	var liveCats, vodCats []parser.XtreamCategory
	var live, vod []parser.XtreamStream
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.getList(gctx, api, "get_live_categories", &liveCats) })
	g.Go(func() error { return a.getList(gctx, api, "get_vod_categories", &vodCats) })
	g.Go(func() error { return a.getList(gctx, api, "get_live_streams", &live) })
	g.Go(func() error { return a.getList(gctx, api, "get_vod_streams", &vod) })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	streamBase := StreamBase(a.cfg, auth)
	now := a.f.now()
	liveRes, err := a.f.Parser.ParseXtreamLive(ctx, providerID, live, streamBase, parser.CategoryNames(liveCats), now)
	if err != nil {
		return nil, fmt.Errorf("parse live streams: %w", err)
	}
	vodRes, err := a.f.Parser.ParseXtreamVOD(ctx, providerID, vod, streamBase, parser.CategoryNames(vodCats), now)
	if err != nil {
		return nil, fmt.Errorf("parse vod streams: %w", err)
	}

	channels := make([]models.Channel, 0, len(liveRes.Channels)+len(vodRes.Channels))
	channels = append(channels, liveRes.Channels...)
	channels = append(channels, vodRes.Channels...)
	log.WithFields(logrus.Fields{"live": len(liveRes.Channels), "vod": len(vodRes.Channels)}).Debug("xtream listing fetched")

	return &Result{
		Channels:   channels,
		Categories: parser.XtreamCategories(providerID, liveCats, vodCats, live, vod),
	}, nil
}

func (a *xtreamAdapter) authenticate(ctx context.Context, api string) (parser.XtreamAuth, error) {
	var auth parser.XtreamAuth
	body, err := a.f.Client.Get(ctx, api)
	if err != nil {
		return auth, &AuthenticationError{Err: err}
	}
	if err := json.Unmarshal(body, &auth); err != nil {
		return auth, &AuthenticationError{Err: fmt.Errorf("decode auth response: %w", err)}
	}
	if !auth.Authenticated() {
		return auth, &InvalidCredentialsError{Status: auth.UserInfo.Status, Message: auth.UserInfo.Message}
	}
	return auth, nil
}

// getList decodes a list action. Panels answer an empty list with null, ""
// or {} as often as with [].
func (a *xtreamAdapter) getList(ctx context.Context, api, action string, v any) error {
	body, err := a.f.Client.Get(ctx, api+"&action="+action)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	trimmed := bytes.TrimSpace(body)
	switch string(trimmed) {
	case "", "null", "{}", `""`:
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%s: decode: %w", action, err)
	}
	return nil
}

// StreamBase is {server_protocol or http}://{server host}:{port}/{user}/{pass}.
// The port comes from server_info, falling back to the configured URL's.
func StreamBase(cfg models.XtreamConfig, auth parser.XtreamAuth) string {
	protocol := strings.TrimSpace(auth.ServerInfo.ServerProtocol)
	if protocol == "" {
		protocol = "http"
	}
	var host, port string
	if u, err := url.Parse(cfg.ServerURL); err == nil {
		host, port = u.Hostname(), u.Port()
	}
	if p := strings.TrimSpace(string(auth.ServerInfo.Port)); p != "" {
		port = p
	}
	if port != "" {
		host += ":" + port
	}
	return protocol + "://" + host + "/" + cfg.Username + "/" + cfg.Password
}
