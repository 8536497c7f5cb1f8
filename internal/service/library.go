package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/voyagen/playlistvault/internal/cache"
	"github.com/voyagen/playlistvault/internal/models"
	"github.com/voyagen/playlistvault/internal/store"
)

// Library answers read queries over published playlists and applies user edits.
type Library struct {
	store  store.Store
	locker cache.Locker
	logger *slog.Logger
}

// NewLibrary returns a Library over s. locker must be the one the Importer uses
// so deletes cannot race a running import.
func NewLibrary(s store.Store, locker cache.Locker, logger *slog.Logger) *Library {
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{store: s, locker: locker, logger: logger}
}

// FetchGroups returns the playlist's groups: "All Channels" with the total
// first, then every group sorted by name.
func (l *Library) FetchGroups(ctx context.Context, playlistID uuid.UUID) ([]models.GroupCount, error) {
	if _, err := l.store.GetPlaylist(ctx, playlistID); err != nil {
		return nil, err
	}
	groups, err := l.store.CountGroups(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].Name < groups[b].Name })

	total := 0
	for _, g := range groups {
		total += g.Count
	}
	out := make([]models.GroupCount, 0, len(groups)+1)
	out = append(out, models.GroupCount{Name: models.AllChannelsGroup, Count: total})
	return append(out, groups...), nil
}

// ChannelQuery selects channels of one playlist.
type ChannelQuery struct {
	PlaylistID    uuid.UUID
	Group         string // "" or "All Channels" means every group
	FavoritesOnly bool
	Search        string
	Sort          store.SortField
	Limit         int
	Offset        int
}

// ChannelPage is one page of channels and the number of matches overall.
type ChannelPage struct {
	Channels []models.Channel `json:"channels"`
	Total    int              `json:"total"`
}

// ListChannels returns the channels of a published playlist matching q.
func (l *Library) ListChannels(ctx context.Context, q ChannelQuery) (*ChannelPage, error) {
	if _, err := l.store.GetPlaylist(ctx, q.PlaylistID); err != nil {
		return nil, err
	}
	if q.Sort != "" && q.Sort != store.SortByName && q.Sort != store.SortByPosition {
		return nil, fmt.Errorf("%w: unknown sort %q", ErrInvalidQuery, q.Sort)
	}
	f := store.ChannelFilter{
		PlaylistID: &q.PlaylistID,
		Search:     q.Search,
		Sort:       q.Sort,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.Group != "" && q.Group != models.AllChannelsGroup {
		f.Group = &q.Group
	}
	if q.FavoritesOnly {
		yes := true
		f.Favorite = &yes
	}
	return l.page(ctx, f)
}

// Favorites returns favorite channels across all playlists, by name.
func (l *Library) Favorites(ctx context.Context, limit, offset int) (*ChannelPage, error) {
	yes := true
	return l.page(ctx, store.ChannelFilter{Favorite: &yes, Sort: store.SortByName, Limit: limit, Offset: offset})
}

func (l *Library) page(ctx context.Context, f store.ChannelFilter) (*ChannelPage, error) {
	chs, total, err := l.store.ListChannels(ctx, f)
	if err != nil {
		return nil, err
	}
	if chs == nil {
		chs = []models.Channel{}
	}
	return &ChannelPage{Channels: chs, Total: total}, nil
}

// GetChannel returns a channel of a published playlist.
func (l *Library) GetChannel(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	return l.store.GetChannel(ctx, channelID)
}

// ToggleFavorite flips the channel's favorite flag and returns the new value.
func (l *Library) ToggleFavorite(ctx context.Context, channelID uuid.UUID) (bool, error) {
	fav, err := l.store.ToggleChannelFavorite(ctx, channelID)
	if err != nil {
		return false, err
	}
	l.logger.Debug("favorite toggled", "channel_id", channelID, "favorite", fav)
	return fav, nil
}

// ListPlaylists returns published playlists, oldest first.
func (l *Library) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	ps, err := l.store.ListPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []models.Playlist{}
	}
	return ps, nil
}

// GetPlaylist returns a published playlist.
func (l *Library) GetPlaylist(ctx context.Context, playlistID uuid.UUID) (*models.Playlist, error) {
	return l.store.GetPlaylist(ctx, playlistID)
}

// DeletePlaylist deletes a playlist and its channels. It returns
// ErrPlaylistBusy while an import into the playlist is running.
func (l *Library) DeletePlaylist(ctx context.Context, playlistID uuid.UUID) error {
	unlock, err := l.locker.TryLock(ctx, lockKey(playlistID))
	if errors.Is(err, cache.ErrLocked) {
		return ErrPlaylistBusy
	}
	if err != nil {
		return fmt.Errorf("DeletePlaylist: %w", err)
	}
	defer unlock()

	if err := l.store.DeletePlaylist(ctx, playlistID); err != nil {
		return err
	}
	l.logger.Info("playlist deleted", "playlist_id", playlistID)
	return nil
}

// PurgeStaged removes playlists left unpublished by a crashed import.
func (l *Library) PurgeStaged(ctx context.Context, before time.Time) (int64, error) {
	n, err := l.store.PurgeStaged(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Warn("purged staged playlists", "count", n, "before", before)
	}
	return n, nil
}
