package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/voyagen/playlistvault/internal/cache"
	"github.com/voyagen/playlistvault/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlPlaylists = 2 * time.Minute
	ttlPlaylist  = 5 * time.Minute
	ttlChannels  = 1 * time.Minute
	ttlChannel   = 5 * time.Minute
	ttlGroups    = 5 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer.
// Read-heavy operations are served from cache when possible;
// write operations invalidate the relevant cache keys.
// Staged playlists are never read, so import sub-batches pass straight through.
type CachedStore struct {
	inner  Store
	cache  *cache.Redis
	logger *slog.Logger
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{inner: inner, cache: c, logger: logger}
}

// --- cached read operations ---

func (c *CachedStore) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	const key = "playlists:all"
	if v, ok := lookup[[]models.Playlist](ctx, c, key); ok {
		return v, nil
	}
	playlists, err := c.inner.ListPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, playlists, ttlPlaylists)
	return playlists, nil
}

func (c *CachedStore) GetPlaylist(ctx context.Context, playlistID uuid.UUID) (*models.Playlist, error) {
	key := "playlist:" + playlistID.String()
	if v, ok := lookup[models.Playlist](ctx, c, key); ok {
		return &v, nil
	}
	p, err := c.inner.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, p, ttlPlaylist)
	return p, nil
}

// channelListResult is a helper type to cache the ListChannels tuple.
type channelListResult struct {
	Channels []models.Channel `json:"channels"`
	Total    int              `json:"total"`
}

func (c *CachedStore) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	key := "channels:" + filterHash(filter)
	if v, ok := lookup[channelListResult](ctx, c, key); ok {
		return v.Channels, v.Total, nil
	}
	channels, total, err := c.inner.ListChannels(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	c.store(ctx, key, channelListResult{Channels: channels, Total: total}, ttlChannels)
	return channels, total, nil
}

func (c *CachedStore) GetChannel(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	key := "channel:" + channelID.String()
	if v, ok := lookup[models.Channel](ctx, c, key); ok {
		return &v, nil
	}
	ch, err := c.inner.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, ch, ttlChannel)
	return ch, nil
}

func (c *CachedStore) CountGroups(ctx context.Context, playlistID uuid.UUID) ([]models.GroupCount, error) {
	key := "groups:" + playlistID.String()
	if v, ok := lookup[[]models.GroupCount](ctx, c, key); ok {
		return v, nil
	}
	groups, err := c.inner.CountGroups(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, groups, ttlGroups)
	return groups, nil
}

// --- write operations with cache invalidation ---

func (c *CachedStore) PublishPlaylist(ctx context.Context, playlistID uuid.UUID, channelCount int) error {
	if err := c.inner.PublishPlaylist(ctx, playlistID, channelCount); err != nil {
		return err
	}
	c.invalidate(ctx, "playlists:all", "playlist:"+playlistID.String(), "groups:"+playlistID.String())
	c.invalidatePattern(ctx, "channels:*")
	return nil
}

func (c *CachedStore) DeletePlaylist(ctx context.Context, playlistID uuid.UUID) error {
	if err := c.inner.DeletePlaylist(ctx, playlistID); err != nil {
		return err
	}
	c.invalidate(ctx, "playlists:all", "playlist:"+playlistID.String(), "groups:"+playlistID.String())
	c.invalidatePattern(ctx, "channels:*", "channel:*")
	return nil
}

func (c *CachedStore) ToggleChannelFavorite(ctx context.Context, channelID uuid.UUID) (bool, error) {
	fav, err := c.inner.ToggleChannelFavorite(ctx, channelID)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, "channel:"+channelID.String())
	c.invalidatePattern(ctx, "channels:*")
	return fav, nil
}

// --- passthrough (staged data is never cached) ---

func (c *CachedStore) CreatePlaylist(ctx context.Context, p *models.Playlist) error {
	return c.inner.CreatePlaylist(ctx, p)
}

func (c *CachedStore) InsertChannels(ctx context.Context, channels []models.Channel) error {
	return c.inner.InsertChannels(ctx, channels)
}

func (c *CachedStore) PurgeStaged(ctx context.Context, before time.Time) (int64, error) {
	return c.inner.PurgeStaged(ctx, before)
}

// --- helpers ---

// lookup returns the cached value for key. Errors other than a miss are logged
// and treated as a miss.
func lookup[T any](ctx context.Context, c *CachedStore, key string) (T, bool) {
	v, err := cache.Get[T](ctx, c.cache, key)
	if err != nil {
		if !cache.IsMiss(err) {
			c.logger.Warn("cache get failed", "key", key, "err", err)
		}
		return v, false
	}
	return v, true
}

// store writes a cache entry, logging any errors.
func (c *CachedStore) store(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		c.logger.Warn("cache set failed", "key", key, "err", err)
	}
}

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil {
		c.logger.Warn("cache del failed", "keys", keys, "err", err)
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			c.logger.Warn("cache del pattern failed", "pattern", p, "err", err)
		}
	}
}

// filterHash produces a short deterministic hash for a ChannelFilter so it
// can be used as part of a cache key.
func filterHash(f ChannelFilter) string {
	raw := fmt.Sprintf("%s|%s|%s|%q|%q|%d|%d",
		optString(f.PlaylistID), optString(f.Group), optString(f.Favorite), f.Search, f.Sort, f.Limit, f.Offset)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}

// optString renders an optional field. Set values are quoted, so no value can
// collide with the unquoted nil marker.
func optString[T any](p *T) string {
	if p == nil {
		return "nil"
	}
	return strconv.Quote(fmt.Sprint(*p))
}

var _ Store = (*CachedStore)(nil)
