package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voyagen/playlistvault/internal/cache"
	"github.com/voyagen/playlistvault/internal/models"
)

// Dispatcher hands an import off without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (uuid.UUID, error)
}

// AsyncDispatcher runs imports on goroutines of this process.
type AsyncDispatcher struct {
	importer *Importer
	board    *StatusBoard
	parent   context.Context
}

// NewAsyncDispatcher runs imports under parent, so cancelling parent aborts them.
// board may be nil.
func NewAsyncDispatcher(parent context.Context, importer *Importer, board *StatusBoard) *AsyncDispatcher {
	return &AsyncDispatcher{importer: importer, board: board, parent: parent}
}

// Dispatch starts the import and returns its playlist id. ctx is not retained.
func (d *AsyncDispatcher) Dispatch(_ context.Context, req Request) (uuid.UUID, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if d.board != nil {
		req.Observer = d.board.Track(req.ID, req.Name)
	}
	return d.importer.Start(d.parent, req).ID(), nil
}

// QueueDispatcher pushes imports onto the Redis job queue for RunImportWorker.
type QueueDispatcher struct {
	rds   *cache.Redis
	queue string
}

// NewQueueDispatcher enqueues onto cache.DefaultQueue.
func NewQueueDispatcher(rds *cache.Redis) *QueueDispatcher {
	return &QueueDispatcher{rds: rds, queue: cache.DefaultQueue}
}

// Dispatch enqueues the import and returns the playlist id it will use.
func (d *QueueDispatcher) Dispatch(ctx context.Context, req Request) (uuid.UUID, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	job := cache.ImportJob{
		PlaylistID: req.ID.String(),
		Name:       req.Name,
		URL:        req.URL,
		Type:       string(req.Type),
	}
	if err := cache.Enqueue(ctx, d.rds, d.queue, job); err != nil {
		return uuid.Nil, fmt.Errorf("enqueue import: %w", err)
	}
	return req.ID, nil
}

// RunImportWorker continuously dequeues import jobs from Redis and runs them
// one at a time, reporting each job's states to board when it is non-nil.
// It stops when ctx is cancelled (graceful shutdown).
func RunImportWorker(ctx context.Context, rds *cache.Redis, importer *Importer, board *StatusBoard, logger *slog.Logger) {
	pending, err := cache.QueueLen(ctx, rds, cache.DefaultQueue)
	if err != nil {
		logger.Warn("queue length unavailable", "err", err)
	}
	logger.Info("import worker started", "queue", cache.DefaultQueue, "pending", pending)
	for {
		select {
		case <-ctx.Done():
			logger.Info("import worker stopping")
			return
		default:
		}

		job, err := cache.Dequeue(ctx, rds, cache.DefaultQueue, 5*time.Second)
		if err != nil {
			logger.Error("dequeue failed", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if job == nil {
			continue // timeout, loop back to check ctx
		}

		runJob(ctx, importer, board, job, logger)
	}
}

// runJob runs one dequeued job. Malformed jobs are logged and dropped.
func runJob(ctx context.Context, importer *Importer, board *StatusBoard, job *cache.ImportJob, logger *slog.Logger) {
	req, err := requestFromJob(job)
	if err != nil {
		logger.Error("dropping malformed import job", "playlist_id", job.PlaylistID, "err", err)
		return
	}
	if board != nil {
		req.Observer = board.Track(req.ID, req.Name)
	}
	logger.Info("processing import job", "playlist_id", req.ID, "url", req.URL)
	if _, err := importer.AddPlaylist(ctx, req); err != nil {
		logger.Warn("import job failed", "playlist_id", req.ID, "err", err)
	}
}

func requestFromJob(job *cache.ImportJob) (Request, error) {
	id, err := uuid.Parse(job.PlaylistID)
	if err != nil {
		return Request{}, fmt.Errorf("playlist id: %w", err)
	}
	return Request{ID: id, Name: job.Name, URL: job.URL, Type: models.PlaylistType(job.Type)}, nil
}
