// Package service drives provider syncs against the local store: full
// replacement, id-level delta reconciliation and background sync jobs.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/vaulttv/internal/cache"
	"github.com/voyagen/vaulttv/internal/events"
	"github.com/voyagen/vaulttv/internal/fetcher"
	"github.com/voyagen/vaulttv/internal/metrics"
	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/store"
)

// Mode selects the sync algorithm.
type Mode string

const (
	ModeFull  Mode = "full"
	ModeDelta Mode = "delta"
)

// ParseMode maps "", "full" and "delta" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeFull):
		return ModeFull, nil
	case string(ModeDelta):
		return ModeDelta, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}

// AdapterFactory selects the adapter for a provider config; *fetcher.Factory
// implements it.
type AdapterFactory interface {
	For(cfg models.ProviderConfig) (fetcher.Adapter, error)
}

// Locker takes a cross-process sync lock. It returns cache.ErrLocked when
// another holder owns it; *cache.SyncLocker implements it.
type Locker interface {
	Lock(ctx context.Context, providerID string) (unlock func(), err error)
}

// SyncResult summarises one finished sync.
type SyncResult struct {
	ProviderID   string        `json:"provider_id"`
	Mode         Mode          `json:"mode"`
	ChannelCount int           `json:"channel_count"`
	Added        int           `json:"added"`
	Removed      int           `json:"removed"`
	Categories   int           `json:"categories"`
	Programs     int           `json:"programs"`
	Elapsed      time.Duration `json:"elapsed"`
}

// run is one in-flight sync.
type run struct {
	cancel  context.CancelFunc
	removed bool
}

// Coordinator runs provider syncs. At most one sync per provider id is in
// flight; a second request is rejected with ErrSyncInProgress.
type Coordinator struct {
	store    store.Store
	adapters AdapterFactory
	events   events.Publisher
	locker   Locker
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]*run

	log *logrus.Entry
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLocker adds a cross-process lock around every sync.
func WithLocker(l Locker) Option {
	return func(c *Coordinator) { c.locker = l }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator returns a Coordinator. A nil publisher discards events.
func NewCoordinator(s store.Store, adapters AdapterFactory, pub events.Publisher, opts ...Option) *Coordinator {
	if pub == nil {
		pub = events.Nop{}
	}
	c := &Coordinator{
		store:    s,
		adapters: adapters,
		events:   pub,
		now:      time.Now,
		inflight: make(map[string]*run),
		log:      logrus.WithField("component", "sync"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddProvider validates cfg and stores a new provider in status syncing.
// The first sync is left to the caller.
func (c *Coordinator) AddProvider(ctx context.Context, name string, cfg models.ProviderConfig) (*models.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: missing config", models.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = models.DefaultProviderName(cfg)
	}
	p := &models.Provider{
		ID:        uuid.NewString(),
		Config:    cfg,
		Name:      name,
		Status:    models.StatusSyncing,
		CreatedAt: c.now().UTC(),
	}
	if err := c.store.CreateProvider(ctx, p); err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	c.log.WithFields(logrus.Fields{"provider_id": p.ID, "type": cfg.Type()}).Info("provider added")
	c.publishStatus(p.ID, models.StatusSyncing, p.ChannelCount, nil)
	return p, nil
}

// RemoveProvider cancels any in-flight sync for id and deletes the provider
// with everything it owns. A sync that completes afterwards reports
// ProviderNotFoundError and commits nothing.
func (c *Coordinator) RemoveProvider(ctx context.Context, id string) error {
	if _, err := c.store.GetProvider(ctx, id); err != nil {
		return notFound(id, err)
	}
	c.mu.Lock()
	if r, ok := c.inflight[id]; ok {
		r.removed = true
		r.cancel()
	}
	c.mu.Unlock()

	if err := c.store.DeleteProvider(ctx, id); err != nil {
		return notFound(id, err)
	}
	c.log.WithField("provider_id", id).Info("provider removed")
	c.events.Publish(events.Event{Type: events.ProviderRemoved, ProviderID: id, Time: c.now().UTC()})
	return nil
}

// Sync runs FullSync or DeltaSync.
func (c *Coordinator) Sync(ctx context.Context, id string, mode Mode) (*SyncResult, error) {
	if mode == ModeDelta {
		return c.DeltaSync(ctx, id)
	}
	return c.FullSync(ctx, id)
}

// FullSync fetches the provider's listing and replaces its channels and
// categories in one transaction. On failure the stored data is untouched
// and the provider is marked error.
func (c *Coordinator) FullSync(ctx context.Context, id string) (*SyncResult, error) {
	return c.sync(ctx, id, ModeFull, func(ctx context.Context, res *fetcher.Result, at time.Time) (*SyncResult, error) {
		if err := c.store.ReplaceProviderData(ctx, id, res.Channels, res.Categories, at); err != nil {
			return nil, fmt.Errorf("replace provider data: %w", err)
		}
		return &SyncResult{ChannelCount: len(res.Channels), Added: len(res.Channels)}, nil
	})
}

// DeltaSync fetches the listing and applies only the id-level additions and
// removals. Channels whose id is unchanged keep their stored attributes.
func (c *Coordinator) DeltaSync(ctx context.Context, id string) (*SyncResult, error) {
	return c.sync(ctx, id, ModeDelta, func(ctx context.Context, res *fetcher.Result, at time.Time) (*SyncResult, error) {
		existing, err := c.store.GetChannelsByProvider(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load channels: %w", err)
		}
		d := Reconcile(existing, res.Channels)
		count, err := c.store.ApplyDelta(ctx, id, d.Added, d.RemovedIDs(), res.Categories, at)
		if err != nil {
			return nil, fmt.Errorf("apply delta: %w", err)
		}
		metrics.ChannelsRemoved.Add(float64(len(d.Removed)))
		return &SyncResult{ChannelCount: count, Added: len(d.Added), Removed: len(d.Removed)}, nil
	})
}

type commitFunc func(ctx context.Context, res *fetcher.Result, at time.Time) (*SyncResult, error)

func (c *Coordinator) sync(ctx context.Context, id string, mode Mode, commit commitFunc) (*SyncResult, error) {
	p, err := c.store.GetProvider(ctx, id)
	if err != nil {
		return nil, notFound(id, err)
	}
	ctx, r, release, err := c.begin(ctx, id)
	if err != nil {
		metrics.RecordSync(string(mode), "rejected", 0)
		return nil, err
	}
	defer release()

	start := c.now()
	log := c.log.WithFields(logrus.Fields{"provider_id": id, "mode": mode})
	log.Info("sync started")

	if err := c.store.UpdateProviderStatus(ctx, id, store.StatusUpdate{Status: models.StatusSyncing, KeepError: true}); err != nil {
		return nil, c.fail(ctx, p, r, mode, start, fmt.Errorf("mark syncing: %w", err))
	}
	c.publishStatus(id, models.StatusSyncing, p.ChannelCount, nil)

	res, err := c.fetch(ctx, p)
	if err != nil {
		return nil, c.fail(ctx, p, r, mode, start, err)
	}
	if c.wasRemoved(r) {
		return nil, c.fail(ctx, p, r, mode, start, context.Canceled)
	}

	at := c.now().UTC()
	out, err := commit(ctx, res, at)
	if err != nil {
		return nil, c.fail(ctx, p, r, mode, start, err)
	}
	if len(res.Programs) > 0 {
		if err := c.store.UpsertPrograms(ctx, id, res.Programs); err != nil {
			log.WithError(err).Warn("guide not stored")
		} else {
			out.Programs = len(res.Programs)
		}
	}

	out.ProviderID, out.Mode = id, mode
	out.Categories = len(res.Categories)
	out.Elapsed = c.now().Sub(start)
	metrics.RecordSync(string(mode), "ok", out.Elapsed)
	metrics.RecordChannelsCommitted(string(mode), out.Added)
	log.WithFields(logrus.Fields{
		"channels": out.ChannelCount,
		"added":    out.Added,
		"removed":  out.Removed,
		"elapsed":  out.Elapsed.Round(time.Millisecond),
	}).Info("sync completed")
	c.publishStatus(id, models.StatusActive, out.ChannelCount, nil)
	c.events.Publish(events.Event{Type: events.SyncCompleted, ProviderID: id, Data: out, Time: at})
	return out, nil
}

func (c *Coordinator) fetch(ctx context.Context, p *models.Provider) (*fetcher.Result, error) {
	adapter, err := c.adapters.For(p.Config)
	if err != nil {
		return nil, err
	}
	return adapter.Fetch(ctx, p.ID)
}

// begin registers the in-flight sync and takes the optional distributed
// lock. The returned context is cancelled by RemoveProvider.
func (c *Coordinator) begin(ctx context.Context, id string) (context.Context, *run, func(), error) {
	c.mu.Lock()
	if _, busy := c.inflight[id]; busy {
		c.mu.Unlock()
		return nil, nil, nil, ErrSyncInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel}
	c.inflight[id] = r
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
		cancel()
	}
	if c.locker == nil {
		return ctx, r, release, nil
	}
	unlock, err := c.locker.Lock(ctx, id)
	if err != nil {
		release()
		if errors.Is(err, cache.ErrLocked) {
			return nil, nil, nil, ErrSyncInProgress
		}
		return nil, nil, nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	return ctx, r, func() {
		unlock()
		release()
	}, nil
}

func (c *Coordinator) wasRemoved(r *run) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return r.removed
}

// fail records err on the provider and returns it. A removed provider is
// left alone and reported as not found.
func (c *Coordinator) fail(ctx context.Context, p *models.Provider, r *run, mode Mode, start time.Time, err error) error {
	elapsed := c.now().Sub(start)
	if c.wasRemoved(r) || errors.Is(err, store.ErrNotFound) {
		metrics.RecordSync(string(mode), "removed", elapsed)
		c.log.WithField("provider_id", p.ID).Info("sync dropped, provider removed")
		return &ProviderNotFoundError{ID: p.ID}
	}
	metrics.RecordSync(string(mode), "error", elapsed)

	msg := redactError(p.Config, err)
	// The caller's context may already be cancelled; the status must still land.
	bg := context.WithoutCancel(ctx)
	if uerr := c.store.UpdateProviderStatus(bg, p.ID, store.StatusUpdate{Status: models.StatusError, LastError: &msg}); uerr != nil {
		c.log.WithError(uerr).WithField("provider_id", p.ID).Warn("could not record sync failure")
	}
	c.log.WithFields(logrus.Fields{"provider_id": p.ID, "mode": mode}).WithError(errors.New(msg)).Error("sync failed")
	c.publishStatus(p.ID, models.StatusError, p.ChannelCount, &msg)
	return err
}

func redactError(cfg models.ProviderConfig, err error) string {
	msg := err.Error()
	if xc, ok := cfg.(models.XtreamConfig); ok {
		return fetcher.RedactSecrets(msg, xc.Password)
	}
	return fetcher.RedactSecrets(msg)
}

func (c *Coordinator) publishStatus(id string, status models.ProviderStatus, count int, lastErr *string) {
	data := map[string]any{"status": status, "channel_count": count}
	if lastErr != nil {
		data["error"] = *lastErr
	}
	c.events.Publish(events.Event{Type: events.ProviderStatus, ProviderID: id, Data: data, Time: c.now().UTC()})
}

// SyncAll syncs every provider with at most parallel syncs at once. It keeps
// going past failures and returns them joined. Providers already syncing
// are skipped.
func (c *Coordinator) SyncAll(ctx context.Context, mode Mode, parallel int) ([]SyncResult, error) {
	providers, err := c.store.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	if parallel <= 0 {
		parallel = 1
	}
	var (
		mu      sync.Mutex
		results []SyncResult
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, p := range providers {
		g.Go(func() error {
			res, err := c.Sync(gctx, p.ID, mode)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrSyncInProgress):
				c.log.WithField("provider_id", p.ID).Debug("skipping provider, sync in progress")
			case err != nil:
				errs = append(errs, fmt.Errorf("provider %s: %w", p.ID, err))
			default:
				results = append(results, *res)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}
