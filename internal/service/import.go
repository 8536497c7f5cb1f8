package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/playlistvault/internal/cache"
	"github.com/voyagen/playlistvault/internal/fetcher"
	"github.com/voyagen/playlistvault/internal/metrics"
	"github.com/voyagen/playlistvault/internal/models"
	"github.com/voyagen/playlistvault/internal/store"
)

// DefaultBatchSize is the number of channels committed per InsertChannels call.
const DefaultBatchSize = 1000

const rollbackTimeout = 30 * time.Second

// Request describes one playlist to import.
type Request struct {
	// ID is optional; a fresh UUID is used when zero.
	ID   uuid.UUID           `json:"id,omitempty"`
	Name string              `json:"name"`
	URL  string              `json:"url" validate:"required,http_url"`
	Type models.PlaylistType `json:"type" validate:"oneof=m3u xtream"`

	// Observer, when set, receives this import's states in addition to the importer's observer.
	Observer Observer `json:"-" validate:"-"`
}

// Importer fetches, parses and stores playlists. It is safe for concurrent use;
// imports into different playlists run independently.
type Importer struct {
	store     store.Store
	fetchers  map[models.PlaylistType]fetcher.Fetcher
	batchSize int
	observer  Observer
	locker    cache.Locker
	logger    *slog.Logger
	now       func() time.Time
	validate  *validator.Validate
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithBatchSize sets the sub-batch size. Values below 1 are ignored.
func WithBatchSize(n int) ImporterOption {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithObserver sets the observer notified for every import.
func WithObserver(o Observer) ImporterOption {
	return func(i *Importer) { i.observer = o }
}

// WithLocker sets the per-playlist locker shared with Library.
func WithLocker(l cache.Locker) ImporterOption {
	return func(i *Importer) { i.locker = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ImporterOption {
	return func(i *Importer) { i.logger = l }
}

// WithClock sets the time source used for CreatedAt.
func WithClock(now func() time.Time) ImporterOption {
	return func(i *Importer) { i.now = now }
}

// WithTypeFetcher registers the fetcher for a playlist type. The fetcher must
// return M3U text, as Xtream Codes panels do for get.php?type=m3u_plus.
func WithTypeFetcher(t models.PlaylistType, f fetcher.Fetcher) ImporterOption {
	return func(i *Importer) { i.fetchers[t] = f }
}

// NewImporter returns an Importer that fetches m3u playlists with f and writes to s.
func NewImporter(s store.Store, f fetcher.Fetcher, opts ...ImporterOption) *Importer {
	i := &Importer{
		store:     s,
		fetchers:  map[models.PlaylistType]fetcher.Fetcher{models.PlaylistTypeM3U: f},
		batchSize: DefaultBatchSize,
		observer:  nopObserver{},
		locker:    cache.NewLocalLocker(),
		logger:    slog.Default(),
		now:       time.Now,
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Locker returns the locker guarding playlists during import.
func (i *Importer) Locker() cache.Locker { return i.locker }

// AddPlaylist imports req synchronously and returns the new playlist's id.
// The playlist becomes visible only once every channel is stored; on failure
// nothing of it remains. Errors are *ImportError.
func (i *Importer) AddPlaylist(ctx context.Context, req Request) (uuid.UUID, error) {
	obs := i.observerFor(req)
	obs.Notify(State{IsLoading: true})

	req, f, err := i.prepare(req)
	if err != nil {
		metrics.ImportsTotal.WithLabelValues(resultLabel(err)).Inc()
		i.logger.Warn("import rejected", "url", req.URL, "err", err)
		obs.Notify(State{Error: ErrorMessage(err)})
		return uuid.Nil, err
	}

	log := i.logger.With("playlist_id", req.ID, "name", req.Name)
	finish := metrics.ImportStarted()
	start := time.Now()

	count, err := i.run(ctx, req, f, log)
	finish(resultLabel(err), count)
	if err != nil {
		log.Error("import failed", "result", resultLabel(err), "err", err)
		obs.Notify(State{Error: ErrorMessage(err)})
		return uuid.Nil, err
	}

	log.Info("import finished", "channels", count, "duration", time.Since(start))
	obs.Notify(State{})
	return req.ID, nil
}

// Validate reports the ErrInvalidSource error AddPlaylist would fail with, without
// fetching anything or notifying observers.
func (i *Importer) Validate(req Request) error {
	_, _, err := i.prepare(req)
	return err
}

func (i *Importer) observerFor(req Request) Observer {
	if req.Observer == nil {
		return i.observer
	}
	return multiObserver{i.observer, req.Observer}
}

// prepare validates req and fills in defaults.
func (i *Importer) prepare(req Request) (Request, fetcher.Fetcher, error) {
	req.URL = strings.TrimSpace(req.URL)
	req.Name = strings.TrimSpace(req.Name)
	if req.Type == "" {
		req.Type = models.PlaylistTypeM3U
	}
	if err := i.validate.Struct(req); err != nil {
		return req, nil, importErr(ErrInvalidSource, "validate", validationReason(err))
	}
	f, ok := i.fetchers[req.Type]
	if !ok || f == nil {
		return req, nil, importErr(ErrInvalidSource, "validate", fmt.Errorf("unsupported playlist type %q", req.Type))
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Name == "" {
		if u, err := url.Parse(req.URL); err == nil {
			req.Name = u.Hostname()
		}
	}
	return req, f, nil
}

func validationReason(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Field() {
	case "URL":
		if fe.Tag() == "required" {
			return errors.New("URL is required")
		}
		return fmt.Errorf("%q is not an http(s) URL", fe.Value())
	case "Type":
		return fmt.Errorf("unsupported playlist type %q", fe.Value())
	}
	return err
}

// run performs fetch, decode and the staged write. It returns the channel count.
func (i *Importer) run(ctx context.Context, req Request, f fetcher.Fetcher, log *slog.Logger) (int, error) {
	data, err := f.Fetch(ctx, req.URL)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return 0, importErr(ErrCancelled, "fetch", err)
		}
		return 0, importErr(ErrFetch, "fetch", err)
	}
	log.Debug("playlist fetched", "bytes", len(data))

	text, err := fetcher.Decode(data)
	data = nil
	if err != nil {
		return 0, importErr(ErrDecoding, "decode", err)
	}

	unlock, err := i.locker.TryLock(ctx, lockKey(req.ID))
	if err != nil {
		if errors.Is(err, cache.ErrLocked) {
			err = ErrPlaylistBusy
		}
		return 0, importErr(ErrStore, "lock", err)
	}
	defer unlock()

	p := &models.Playlist{
		ID:        req.ID,
		Name:      req.Name,
		SourceURL: req.URL,
		Type:      req.Type,
		CreatedAt: i.now().UTC(),
	}
	if err := i.store.CreatePlaylist(ctx, p); err != nil {
		return 0, i.storeErr(ctx, "CreatePlaylist", err)
	}

	count, err := i.write(ctx, p.ID, text, log)
	if err == nil {
		if err = i.store.PublishPlaylist(ctx, p.ID, count); err != nil {
			err = i.storeErr(ctx, "PublishPlaylist", err)
		}
	}
	if err != nil {
		i.rollback(ctx, p.ID, log)
		return 0, err
	}
	return count, nil
}

// write streams records from the parser goroutine into sequential sub-batches.
// At most one sub-batch of channels is alive at a time.
func (i *Importer) write(ctx context.Context, playlistID uuid.UUID, text string, log *slog.Logger) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	records := make(chan fetcher.Record, recordBuffer(i.batchSize))

	g.Go(func() error {
		defer close(records)
		return fetcher.Each(text, func(r fetcher.Record) error {
			select {
			case records <- r:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	var count int
	g.Go(func() error {
		batch := make([]models.Channel, 0, i.batchSize)
		batches := 0
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return importErr(ErrCancelled, "InsertChannels", err)
			}
			if err := i.store.InsertChannels(ctx, batch); err != nil {
				return i.storeErr(ctx, "InsertChannels", err)
			}
			batches++
			metrics.RecordSubBatch()
			log.Debug("sub-batch committed", "batch", batches, "channels", count)
			batch = batch[:0]
			return nil
		}
		for r := range records {
			batch = append(batch, newChannel(playlistID, count, r))
			count++
			if len(batch) == i.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		var ie *ImportError
		if errors.As(err, &ie) {
			return 0, err
		}
		return 0, i.storeErr(ctx, "parse", err)
	}
	return count, nil
}

// maxRecordBuffer caps how far the parser may run ahead of the writer, so the
// records in flight stay well under one sub-batch.
const maxRecordBuffer = 64

func recordBuffer(batchSize int) int {
	return min(batchSize, maxRecordBuffer)
}

func newChannel(playlistID uuid.UUID, position int, r fetcher.Record) models.Channel {
	return models.Channel{
		ID:         uuid.New(),
		PlaylistID: playlistID,
		Position:   position,
		Name:       r.Name,
		StreamURL:  r.URL,
		LogoURL:    r.Logo,
		GroupName:  models.NormalizeGroup(r.Group),
	}
}

// storeErr classifies a store failure, preferring cancellation when ctx is done.
func (i *Importer) storeErr(ctx context.Context, op string, err error) *ImportError {
	if ctx.Err() != nil {
		return importErr(ErrCancelled, op, err)
	}
	return importErr(ErrStore, op, err)
}

// rollback removes the staged playlist. It runs even when ctx is cancelled.
func (i *Importer) rollback(ctx context.Context, playlistID uuid.UUID, log *slog.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := i.store.DeletePlaylist(rctx, playlistID); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("rollback failed; staged playlist left for PurgeStaged", "err", err)
		return
	}
	log.Debug("staged playlist rolled back")
}

func lockKey(playlistID uuid.UUID) string {
	return "playlist:" + playlistID.String()
}

// Job is an import running on its own goroutine.
type Job struct {
	id     uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}
	result uuid.UUID
	err    error
}

// Start runs AddPlaylist in the background. Cancelling ctx or calling
// Job.Cancel aborts the import and rolls it back.
func (i *Importer) Start(ctx context.Context, req Request) *Job {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{id: req.ID, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(j.done)
		defer cancel()
		j.result, j.err = i.AddPlaylist(ctx, req)
	}()
	return j
}

// ID is the playlist id the job imports into.
func (j *Job) ID() uuid.UUID { return j.id }

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel requests cancellation. It does not wait.
func (j *Job) Cancel() { j.cancel() }

// Wait blocks until the job finishes and returns AddPlaylist's result.
func (j *Job) Wait() (uuid.UUID, error) {
	<-j.done
	return j.result, j.err
}
