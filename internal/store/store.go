package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voyagen/playlistvault/internal/models"
)

// ErrNotFound is returned when a playlist or channel does not exist or is not yet published.
var ErrNotFound = errors.New("not found")

// Store defines persistence for playlists and their channels.
//
// A playlist created with CreatePlaylist stays invisible to every read method
// until PublishPlaylist is called for it. Deleting a playlist removes its channels.
type Store interface {
	// CreatePlaylist inserts an unpublished playlist.
	CreatePlaylist(ctx context.Context, p *models.Playlist) error
	// InsertChannels inserts one sub-batch in a single transaction. The slice is not retained.
	InsertChannels(ctx context.Context, channels []models.Channel) error
	// PublishPlaylist makes a staged playlist and its channels visible.
	PublishPlaylist(ctx context.Context, playlistID uuid.UUID, channelCount int) error
	// DeletePlaylist deletes a playlist (staged or published) and cascades to its channels.
	DeletePlaylist(ctx context.Context, playlistID uuid.UUID) error
	// PurgeStaged deletes unpublished playlists created before the given time.
	PurgeStaged(ctx context.Context, before time.Time) (int64, error)

	// ListPlaylists returns published playlists ordered by creation time.
	ListPlaylists(ctx context.Context) ([]models.Playlist, error)
	// GetPlaylist returns a single published playlist.
	GetPlaylist(ctx context.Context, playlistID uuid.UUID) (*models.Playlist, error)

	// ListChannels returns channels matching the filter and the total count (before limit/offset).
	ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error)
	// GetChannel returns a single channel of a published playlist.
	GetChannel(ctx context.Context, channelID uuid.UUID) (*models.Channel, error)
	// ToggleChannelFavorite flips the favorite flag and returns the new value.
	ToggleChannelFavorite(ctx context.Context, channelID uuid.UUID) (bool, error)

	// CountGroups returns per-group channel counts for a published playlist, in no particular order.
	CountGroups(ctx context.Context, playlistID uuid.UUID) ([]models.GroupCount, error)
}

// SortField selects the channel list order.
type SortField string

const (
	// SortByName orders by name, then import position.
	SortByName SortField = "name"
	// SortByPosition keeps import order.
	SortByPosition SortField = "position"
)

// ChannelFilter holds optional filters for listing channels.
type ChannelFilter struct {
	PlaylistID *uuid.UUID
	Group      *string   // exact normalized group name
	Favorite   *bool     // filter by favorite status
	Search     string    // case-insensitive substring match on channel name
	Sort       SortField // default SortByName
	Limit      int       // 0 = no limit
	Offset     int
}

// likePattern escapes s for use in a LIKE/ILIKE pattern with ESCAPE '\'.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func orderClause(sort SortField) string {
	if sort == SortByPosition {
		return "c.position ASC"
	}
	return "c.name ASC, c.position ASC"
}
