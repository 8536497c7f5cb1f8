package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/voyagen/playlistvault/internal/cache"
	"github.com/voyagen/playlistvault/internal/config"
	"github.com/voyagen/playlistvault/internal/fetcher"
	"github.com/voyagen/playlistvault/internal/logging"
	"github.com/voyagen/playlistvault/internal/models"
	"github.com/voyagen/playlistvault/internal/service"
	"github.com/voyagen/playlistvault/internal/store"
)

// stagedMaxAge is how old an unpublished playlist must be before startup purges it.
const stagedMaxAge = time.Hour

// Runner builds the application from config and provides one method per command.
type Runner struct {
	output io.Writer
}

// NewRunner returns a Runner printing command results to output.
func NewRunner(output io.Writer) *Runner {
	return &Runner{output: output}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, workerCommand, migrateCommand, importCommand,
		playlistsCommand, groupsCommand, channelsCommand, favoriteCommand, deleteCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// deps is everything a command may need. close releases it in reverse order.
type deps struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	rds      *cache.Redis
	locker   cache.Locker
	importer *service.Importer
	lib      *service.Library
	board    *service.StatusBoard
	closers  []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if path := cmd.String("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)
	return logger
}

// migrate waits for Postgres when it is the configured store and applies migrations.
func migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	driver := store.DriverSQLite
	if cfg.Driver() == config.DriverPostgres {
		driver = store.DriverPostgres
		if err := store.WaitForPostgres(ctx, cfg.DatabaseURL, 10, 2*time.Second); err != nil {
			return err
		}
	}
	if err := store.RunMigrations(driver, cfg.StoreTarget()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("migrations applied", "driver", driver)
	return nil
}

// open loads config, migrates and connects the store and Redis, and builds the services.
func (r *Runner) open(ctx context.Context, cmd *cli.Command) (*deps, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	d := &deps{cfg: cfg, logger: newLogger(cfg)}
	if err := d.connect(ctx); err != nil {
		d.close()
		return nil, err
	}

	f := fetcher.NewHTTPFetcher(nil, cfg.UserAgent, cfg.Timeout)
	d.board = service.NewStatusBoard(0)
	d.importer = service.NewImporter(d.store, f,
		service.WithTypeFetcher(models.PlaylistTypeXtream, f),
		service.WithBatchSize(cfg.BatchSize),
		service.WithLocker(d.locker),
		service.WithLogger(d.logger),
	)
	d.lib = service.NewLibrary(d.store, d.locker, d.logger)
	return d, nil
}

func (d *deps) connect(ctx context.Context) error {
	if err := migrate(ctx, d.cfg, d.logger); err != nil {
		return err
	}

	switch d.cfg.Driver() {
	case config.DriverPostgres:
		pg, err := store.NewPostgres(ctx, d.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		d.closers = append(d.closers, pg.Close)
		d.store = pg
	default:
		sq, err := store.NewSQLite(ctx, d.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		d.closers = append(d.closers, func() { _ = sq.Close() })
		d.store = sq
	}
	d.logger.Info("store ready", "driver", d.cfg.Driver())

	d.locker = cache.NewLocalLocker()
	if d.cfg.RedisURL == "" {
		d.logger.Info("redis disabled (REDIS_URL not set)")
		return nil
	}
	rds, err := cache.New(d.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	d.closers = append(d.closers, func() { _ = rds.Close() })
	if err := rds.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	d.rds = rds
	d.store = store.NewCachedStore(d.store, rds, d.logger)
	d.locker = cache.NewRedisLocker(rds, d.cfg.LockTTL)
	d.logger.Info("redis connected (caching and shared locks enabled)")
	return nil
}

// purgeStaged removes playlists a crashed import left unpublished.
func (d *deps) purgeStaged(ctx context.Context) {
	if _, err := d.lib.PurgeStaged(ctx, time.Now().Add(-stagedMaxAge)); err != nil {
		d.logger.Warn("purge staged playlists", "err", err)
	}
}

func (r *Runner) writeJSON(v any) error {
	enc := json.NewEncoder(r.output)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Runner) writePlainln(format string, args ...any) {
	fmt.Fprintf(r.output, format+"\n", args...)
}
