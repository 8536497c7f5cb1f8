package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/voyagen/playlistvault/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
	d    dialect
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool, d: postgresDialect}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// WaitForPostgres pings dsn until it answers or attempts run out. It is used
// before migrations, when the database container may still be starting.
func WaitForPostgres(ctx context.Context, dsn string, attempts int, delay time.Duration) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	if attempts < 1 {
		attempts = 1
	}
	for i := 1; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			return nil
		}
		if i >= attempts {
			return fmt.Errorf("postgres not ready after %d attempts: %w", attempts, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// CreatePlaylist inserts an unpublished playlist.
func (p *Postgres) CreatePlaylist(ctx context.Context, pl *models.Playlist) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO playlists (id, name, source_url, type, published, channel_count, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, 0, $5)`,
		pl.ID, pl.Name, pl.SourceURL, string(pl.Type), pl.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("CreatePlaylist: %w", err)
	}
	return nil
}

var channelCopyColumns = []string{"id", "playlist_id", "position", "name", "stream_url", "logo_url", "group_name", "is_favorite"}

// InsertChannels bulk-loads channels with COPY inside one transaction.
func (p *Postgres) InsertChannels(ctx context.Context, channels []models.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("InsertChannels: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	src := pgx.CopyFromSlice(len(channels), func(i int) ([]any, error) {
		ch := &channels[i]
		return []any{ch.ID, ch.PlaylistID, ch.Position, ch.Name, ch.StreamURL, ch.LogoURL, ch.GroupName, ch.IsFavorite}, nil
	})
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"channels"}, channelCopyColumns, src); err != nil {
		return fmt.Errorf("InsertChannels: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("InsertChannels: commit: %w", err)
	}
	return nil
}

// PublishPlaylist marks a staged playlist visible.
func (p *Postgres) PublishPlaylist(ctx context.Context, playlistID uuid.UUID, channelCount int) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE playlists SET published = TRUE, channel_count = $1 WHERE id = $2 AND published = FALSE`,
		channelCount, playlistID,
	)
	if err != nil {
		return fmt.Errorf("PublishPlaylist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePlaylist deletes a playlist and cascades to channels (via ON DELETE CASCADE).
func (p *Postgres) DeletePlaylist(ctx context.Context, playlistID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, playlistID)
	if err != nil {
		return fmt.Errorf("DeletePlaylist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeStaged deletes playlists left unpublished since before.
func (p *Postgres) PurgeStaged(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM playlists WHERE published = FALSE AND created_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("PurgeStaged: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListPlaylists returns published playlists, oldest first.
func (p *Postgres) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, source_url, type, channel_count, created_at
		 FROM playlists WHERE published = TRUE ORDER BY created_at ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("ListPlaylists: %w", err)
	}
	defer rows.Close()

	var out []models.Playlist
	for rows.Next() {
		pl, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPlaylists: %w", err)
		}
		out = append(out, *pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPlaylists: %w", err)
	}
	return out, nil
}

// GetPlaylist returns a published playlist by id.
func (p *Postgres) GetPlaylist(ctx context.Context, playlistID uuid.UUID) (*models.Playlist, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, name, source_url, type, channel_count, created_at
		 FROM playlists WHERE id = $1 AND published = TRUE`, playlistID)
	pl, err := scanPlaylist(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetPlaylist: %w", err)
	}
	return pl, nil
}

// ListChannels returns a page of channels matching filter and the total match count.
func (p *Postgres) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	q := p.d.channelQueries(filter)

	var total int
	if err := p.pool.QueryRow(ctx, q.countSQL, q.countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannels: count: %w", err)
	}

	rows, err := p.pool.Query(ctx, q.listSQL, q.listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	defer rows.Close()

	var out []models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListChannels: %w", err)
		}
		out = append(out, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListChannels: %w", err)
	}
	return out, total, nil
}

// GetChannel returns a channel of a published playlist.
func (p *Postgres) GetChannel(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` `+channelFrom+` WHERE c.id = $1 AND p.published = TRUE`, channelID)
	ch, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannel: %w", err)
	}
	return ch, nil
}

// ToggleChannelFavorite flips is_favorite for one channel.
func (p *Postgres) ToggleChannelFavorite(ctx context.Context, channelID uuid.UUID) (bool, error) {
	var fav bool
	err := p.pool.QueryRow(ctx,
		`UPDATE channels SET is_favorite = NOT is_favorite
		 WHERE id = $1 AND playlist_id IN (SELECT id FROM playlists WHERE published = TRUE)
		 RETURNING is_favorite`, channelID,
	).Scan(&fav)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("ToggleChannelFavorite: %w", err)
	}
	return fav, nil
}

// CountGroups runs one grouped count over the playlist's channels.
func (p *Postgres) CountGroups(ctx context.Context, playlistID uuid.UUID) ([]models.GroupCount, error) {
	rows, err := p.pool.Query(ctx, p.d.groupCountSQL(), undefinedGroupArg, playlistID)
	if err != nil {
		return nil, fmt.Errorf("CountGroups: %w", err)
	}
	defer rows.Close()

	var out []models.GroupCount
	for rows.Next() {
		var g models.GroupCount
		if err := rows.Scan(&g.Name, &g.Count); err != nil {
			return nil, fmt.Errorf("CountGroups: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CountGroups: %w", err)
	}
	return out, nil
}
