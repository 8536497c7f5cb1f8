package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/voyagen/playlistvault/internal/models"
)

// SQLite implements Store on a local SQLite file.
type SQLite struct {
	db *sql.DB
	d  dialect
}

// SQLiteDSN returns the driver DSN for path with foreign keys, WAL and a busy timeout enabled.
func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// NewSQLite opens the SQLite database at path. Run migrations before use. Caller must call Close.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &SQLite{db: db, d: sqliteDialect}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreatePlaylist inserts an unpublished playlist.
func (s *SQLite) CreatePlaylist(ctx context.Context, p *models.Playlist) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO playlists (id, name, source_url, type, published, channel_count, created_at)
		 VALUES (?, ?, ?, ?, FALSE, 0, ?)`,
		p.ID, p.Name, p.SourceURL, string(p.Type), p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("CreatePlaylist: %w", err)
	}
	return nil
}

// InsertChannels inserts channels in one transaction.
func (s *SQLite) InsertChannels(ctx context.Context, channels []models.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("InsertChannels: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO channels (id, playlist_id, position, name, stream_url, logo_url, group_name, is_favorite)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("InsertChannels: prepare: %w", err)
	}
	defer stmt.Close()

	for i := range channels {
		ch := &channels[i]
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.PlaylistID, ch.Position, ch.Name, ch.StreamURL, ch.LogoURL, ch.GroupName, ch.IsFavorite); err != nil {
			return fmt.Errorf("InsertChannels: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("InsertChannels: commit: %w", err)
	}
	return nil
}

// PublishPlaylist marks a staged playlist visible.
func (s *SQLite) PublishPlaylist(ctx context.Context, playlistID uuid.UUID, channelCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE playlists SET published = TRUE, channel_count = ? WHERE id = ? AND published = FALSE`,
		channelCount, playlistID,
	)
	if err != nil {
		return fmt.Errorf("PublishPlaylist: %w", err)
	}
	return expectOne(res, "PublishPlaylist")
}

// DeletePlaylist deletes a playlist; channels go with it via ON DELETE CASCADE.
func (s *SQLite) DeletePlaylist(ctx context.Context, playlistID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, playlistID)
	if err != nil {
		return fmt.Errorf("DeletePlaylist: %w", err)
	}
	return expectOne(res, "DeletePlaylist")
}

// PurgeStaged deletes playlists left unpublished since before.
func (s *SQLite) PurgeStaged(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM playlists WHERE published = FALSE AND created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("PurgeStaged: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("PurgeStaged: %w", err)
	}
	return n, nil
}

// ListPlaylists returns published playlists, oldest first.
func (s *SQLite) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, source_url, type, channel_count, created_at
		 FROM playlists WHERE published = TRUE ORDER BY created_at ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("ListPlaylists: %w", err)
	}
	defer rows.Close()

	var out []models.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPlaylists: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPlaylists: %w", err)
	}
	return out, nil
}

// GetPlaylist returns a published playlist by id.
func (s *SQLite) GetPlaylist(ctx context.Context, playlistID uuid.UUID) (*models.Playlist, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_url, type, channel_count, created_at
		 FROM playlists WHERE id = ? AND published = TRUE`, playlistID)
	p, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetPlaylist: %w", err)
	}
	return p, nil
}

// ListChannels returns a page of channels matching filter and the total match count.
func (s *SQLite) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	q := s.d.channelQueries(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, q.countSQL, q.countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListChannels: count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q.listSQL, q.listArgs...)
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
func (s *SQLite) GetChannel(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` `+channelFrom+` WHERE c.id = ? AND p.published = TRUE`, channelID)
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetChannel: %w", err)
	}
	return ch, nil
}

// ToggleChannelFavorite flips is_favorite for one channel in its own statement.
func (s *SQLite) ToggleChannelFavorite(ctx context.Context, channelID uuid.UUID) (bool, error) {
	var fav bool
	err := s.db.QueryRowContext(ctx,
		`UPDATE channels SET is_favorite = NOT is_favorite
		 WHERE id = ? AND playlist_id IN (SELECT id FROM playlists WHERE published = TRUE)
		 RETURNING is_favorite`, channelID,
	).Scan(&fav)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("ToggleChannelFavorite: %w", err)
	}
	return fav, nil
}

// CountGroups runs one grouped count over the playlist's channels.
func (s *SQLite) CountGroups(ctx context.Context, playlistID uuid.UUID) ([]models.GroupCount, error) {
	rows, err := s.db.QueryContext(ctx, s.d.groupCountSQL(), undefinedGroupArg, playlistID)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlaylist(row rowScanner) (*models.Playlist, error) {
	var p models.Playlist
	var typ string
	if err := row.Scan(&p.ID, &p.Name, &p.SourceURL, &typ, &p.ChannelCount, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Type = models.PlaylistType(typ)
	return &p, nil
}

func scanChannel(row rowScanner) (*models.Channel, error) {
	var ch models.Channel
	if err := row.Scan(&ch.ID, &ch.PlaylistID, &ch.Position, &ch.Name, &ch.StreamURL, &ch.LogoURL, &ch.GroupName, &ch.IsFavorite); err != nil {
		return nil, err
	}
	return &ch, nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
