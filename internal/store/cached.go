package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voyagen/vaulttv/internal/cache"
	"github.com/voyagen/vaulttv/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlProviders  = 2 * time.Minute
	ttlProvider   = 5 * time.Minute
	ttlChannels   = 1 * time.Minute
	ttlChannel    = 5 * time.Minute
	ttlCategories = 5 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer. Provider, channel
// and category reads are served from cache when possible; writes
// invalidate the keys they can affect. Everything else passes through.
type CachedStore struct {
	Store
	cache *cache.Redis
	log   *logrus.Entry
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{Store: inner, cache: c, log: logrus.WithField("component", "cache")}
}

// cachedProvider keeps the config, which Provider's JSON form omits.
type cachedProvider struct {
	Provider models.Provider `json:"provider"`
	Config   json.RawMessage `json:"config"`
}

func toCachedProvider(p models.Provider) (cachedProvider, error) {
	cfg, err := models.EncodeConfig(p.Config)
	if err != nil {
		return cachedProvider{}, err
	}
	return cachedProvider{Provider: p, Config: cfg}, nil
}

func (cp cachedProvider) provider() (models.Provider, error) {
	cfg, err := models.DecodeConfig(cp.Config)
	if err != nil {
		return models.Provider{}, err
	}
	p := cp.Provider
	p.Config = cfg
	return p, nil
}

// --- cached read operations ---

func (c *CachedStore) ListProviders(ctx context.Context) ([]models.Provider, error) {
	const key = "providers:all"
	if v, err := cache.Get[[]cachedProvider](ctx, c.cache, key); err == nil {
		out := make([]models.Provider, 0, len(v))
		for _, cp := range v {
			p, err := cp.provider()
			if err != nil {
				out = nil
				break
			}
			out = append(out, p)
		}
		if out != nil {
			return out, nil
		}
	}
	providers, err := c.Store.ListProviders(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]cachedProvider, 0, len(providers))
	for _, p := range providers {
		cp, err := toCachedProvider(p)
		if err != nil {
			return providers, nil
		}
		entries = append(entries, cp)
	}
	c.set(ctx, key, entries, ttlProviders)
	return providers, nil
}

func (c *CachedStore) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	key := "provider:" + id
	if v, err := cache.Get[cachedProvider](ctx, c.cache, key); err == nil {
		if p, err := v.provider(); err == nil {
			return &p, nil
		}
	}
	p, err := c.Store.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp, err := toCachedProvider(*p); err == nil {
		c.set(ctx, key, cp, ttlProvider)
	}
	return p, nil
}

// channelListResult caches the ListChannels tuple.
type channelListResult struct {
	Channels []models.Channel `json:"channels"`
	Total    int              `json:"total"`
}

func (c *CachedStore) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	key := "channels:" + filterHash(filter.Normalize())
	if v, err := cache.Get[channelListResult](ctx, c.cache, key); err == nil {
		return v.Channels, v.Total, nil
	}
	channels, total, err := c.Store.ListChannels(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	c.set(ctx, key, channelListResult{Channels: channels, Total: total}, ttlChannels)
	return channels, total, nil
}

func (c *CachedStore) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	key := "channel:" + id
	if v, err := cache.Get[models.Channel](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	ch, err := c.Store.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, ch, ttlChannel)
	return ch, nil
}

func (c *CachedStore) ListCategories(ctx context.Context, providerID string, typ *models.StreamType) ([]models.Category, error) {
	t := "all"
	if typ != nil {
		t = string(*typ)
	}
	pid := providerID
	if pid == "" {
		pid = "all"
	}
	key := "categories:" + pid + ":" + t
	if v, err := cache.Get[[]models.Category](ctx, c.cache, key); err == nil {
		return v, nil
	}
	cats, err := c.Store.ListCategories(ctx, providerID, typ)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, cats, ttlCategories)
	return cats, nil
}

// --- write operations with cache invalidation ---

func (c *CachedStore) CreateProvider(ctx context.Context, p *models.Provider) error {
	if err := c.Store.CreateProvider(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, "providers:all")
	return nil
}

func (c *CachedStore) UpdateProviderStatus(ctx context.Context, id string, u StatusUpdate) error {
	if err := c.Store.UpdateProviderStatus(ctx, id, u); err != nil {
		return err
	}
	c.invalidate(ctx, "provider:"+id, "providers:all")
	return nil
}

func (c *CachedStore) DeleteProvider(ctx context.Context, id string) error {
	if err := c.Store.DeleteProvider(ctx, id); err != nil {
		return err
	}
	c.invalidateProviderData(ctx, id)
	return nil
}

func (c *CachedStore) UpsertChannels(ctx context.Context, channels []models.Channel) error {
	if err := c.Store.UpsertChannels(ctx, channels); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "channels:*", "channel:*")
	return nil
}

func (c *CachedStore) DeleteChannelsByProvider(ctx context.Context, providerID string) error {
	if err := c.Store.DeleteChannelsByProvider(ctx, providerID); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "channels:*", "channel:"+providerID+"_*")
	return nil
}

func (c *CachedStore) UpsertCategories(ctx context.Context, categories []models.Category) error {
	if err := c.Store.UpsertCategories(ctx, categories); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "categories:*")
	return nil
}

func (c *CachedStore) DeleteCategoriesByProvider(ctx context.Context, providerID string) error {
	if err := c.Store.DeleteCategoriesByProvider(ctx, providerID); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "categories:*")
	return nil
}

func (c *CachedStore) ReplaceProviderData(ctx context.Context, providerID string, channels []models.Channel, categories []models.Category, syncedAt time.Time) error {
	if err := c.Store.ReplaceProviderData(ctx, providerID, channels, categories, syncedAt); err != nil {
		return err
	}
	c.invalidateProviderData(ctx, providerID)
	return nil
}

func (c *CachedStore) ApplyDelta(ctx context.Context, providerID string, added []models.Channel, removedIDs []string, categories []models.Category, syncedAt time.Time) (int, error) {
	n, err := c.Store.ApplyDelta(ctx, providerID, added, removedIDs, categories, syncedAt)
	if err != nil {
		return 0, err
	}
	c.invalidateProviderData(ctx, providerID)
	return n, nil
}

func (c *CachedStore) SetFavorite(ctx context.Context, id string, favorite bool) error {
	if err := c.Store.SetFavorite(ctx, id, favorite); err != nil {
		return err
	}
	c.invalidate(ctx, "channel:"+id)
	c.invalidatePattern(ctx, "channels:*")
	return nil
}

func (c *CachedStore) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	fav, err := c.Store.ToggleFavorite(ctx, id)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, "channel:"+id)
	c.invalidatePattern(ctx, "channels:*")
	return fav, nil
}

func (c *CachedStore) TouchLastWatched(ctx context.Context, id string, at time.Time) error {
	if err := c.Store.TouchLastWatched(ctx, id, at); err != nil {
		return err
	}
	c.invalidate(ctx, "channel:"+id)
	return nil
}

// Close closes the inner store; the Redis client is owned by the caller.
func (c *CachedStore) Close() error {
	return c.Store.Close()
}

// --- helpers ---

func (c *CachedStore) invalidateProviderData(ctx context.Context, providerID string) {
	c.invalidate(ctx, "provider:"+providerID, "providers:all")
	c.invalidatePattern(ctx, "channels:*", "channel:"+providerID+"_*", "categories:*")
}

func (c *CachedStore) set(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache set failed")
	}
}

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil {
		c.log.WithError(err).WithField("keys", keys).Warn("cache del failed")
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			c.log.WithError(err).WithField("pattern", p).Warn("cache del pattern failed")
		}
	}
}

// filterHash produces a short deterministic hash for a ChannelFilter so it
// can be used as part of a cache key.
func filterHash(f ChannelFilter) string {
	var st, fav string
	if f.StreamType != nil {
		st = string(*f.StreamType)
	}
	if f.Favorite != nil {
		fav = fmt.Sprint(*f.Favorite)
	}
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d", f.ProviderID, f.GroupTitle, st, fav, f.Search, f.Limit, f.Offset)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}
