package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/voyagen/playlistvault/internal/models"
	"github.com/voyagen/playlistvault/internal/server"
	"github.com/voyagen/playlistvault/internal/service"
	"github.com/voyagen/playlistvault/internal/store"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API",
		Action: r.Serve,
	}
}

func workerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "worker",
		Usage:  "Run queued imports from Redis (requires REDIS_URL)",
		Action: r.Worker,
	}
}

func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Apply database migrations and exit",
		Action: r.Migrate,
	}
}

func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import a playlist and wait for it to finish",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Aliases:  []string{"u"},
				Usage:    "Playlist URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Display name (defaults to the URL host)",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Playlist type: m3u or xtream",
				Value: string(models.PlaylistTypeM3U),
			},
		},
		Action: r.Import,
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "playlists",
		Usage:  "List imported playlists",
		Action: r.Playlists,
	}
}

func groupsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "groups",
		Usage:     "List a playlist's groups with channel counts",
		Arguments: []cli.Argument{&cli.StringArg{Name: "playlist-id"}},
		Action:    r.Groups,
	}
}

func channelsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "channels",
		Usage:     "List a playlist's channels",
		Arguments: []cli.Argument{&cli.StringArg{Name: "playlist-id"}},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "group",
				Aliases: []string{"g"},
				Usage:   "Only channels in this group",
			},
			&cli.StringFlag{
				Name:    "search",
				Aliases: []string{"s"},
				Usage:   "Case-insensitive name substring",
			},
			&cli.BoolFlag{
				Name:  "favorites",
				Usage: "Only favorite channels",
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "name or position",
				Value: string(store.SortByName),
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of channels to return (0 for all)",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of channels to skip",
			},
		},
		Action: r.Channels,
	}
}

func favoriteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "favorite",
		Usage:     "Toggle a channel's favorite flag",
		Arguments: []cli.Argument{&cli.StringArg{Name: "channel-id"}},
		Action:    r.Favorite,
	}
}

func deleteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a playlist and its channels",
		Arguments: []cli.Argument{&cli.StringArg{Name: "playlist-id"}},
		Action:    r.Delete,
	}
}

// Serve runs the HTTP API until ctx is cancelled. With queue_imports set, the
// API enqueues imports and an in-process worker drains the queue.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()
	d.purgeStaged(ctx)

	var dispatcher service.Dispatcher = service.NewAsyncDispatcher(ctx, d.importer, d.board)
	if d.cfg.QueueImports {
		dispatcher = service.NewQueueDispatcher(d.rds)
		go service.RunImportWorker(ctx, d.rds, d.importer, d.board, d.logger)
	}

	srv := server.New(d.lib, d.importer, dispatcher, d.board, d.cfg, d.logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Worker drains the Redis import queue until ctx is cancelled.
func (r *Runner) Worker(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()
	if d.rds == nil {
		return fmt.Errorf("worker: REDIS_URL is not set")
	}
	d.purgeStaged(ctx)
	service.RunImportWorker(ctx, d.rds, d.importer, d.board, d.logger)
	return nil
}

func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := migrate(ctx, cfg, newLogger(cfg)); err != nil {
		return err
	}
	r.writePlainln("migrations applied (%s)", cfg.Driver())
	return nil
}

// Import runs one import in the foreground, logging each state change.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()

	req := service.Request{
		Name: cmd.String("name"),
		URL:  cmd.String("url"),
		Type: models.PlaylistType(cmd.String("type")),
		Observer: service.ObserverFunc(func(s service.State) {
			d.logger.Info("import state", "is_loading", s.IsLoading, "error", s.Error)
		}),
	}
	id, err := d.importer.AddPlaylist(ctx, req)
	if err != nil {
		return errors.New(service.ErrorMessage(err))
	}
	p, err := d.lib.GetPlaylist(ctx, id)
	if err != nil {
		return err
	}
	r.writePlainln("✓ Playlist imported: %s", p.Name)
	r.writePlainln("  ID:       %s", p.ID)
	r.writePlainln("  Channels: %d", p.ChannelCount)
	return nil
}

func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()

	ps, err := d.lib.ListPlaylists(ctx)
	if err != nil {
		return err
	}
	return r.writeJSON(ps)
}

func (r *Runner) Groups(ctx context.Context, cmd *cli.Command) error {
	id, err := argID(cmd, "playlist-id")
	if err != nil {
		return err
	}
	d, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()

	groups, err := d.lib.FetchGroups(ctx, id)
	if err != nil {
		return err
	}
	return r.writeJSON(groups)
}

func (r *Runner) Channels(ctx context.Context, cmd *cli.Command) error {
	id, err := argID(cmd, "playlist-id")
	if err != nil {
		return err
	}
	d, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()

	page, err := d.lib.ListChannels(ctx, service.ChannelQuery{
		PlaylistID:    id,
		Group:         cmd.String("group"),
		FavoritesOnly: cmd.Bool("favorites"),
		Search:        cmd.String("search"),
		Sort:          store.SortField(cmd.String("sort")),
		Limit:         int(cmd.Int("limit")),
		Offset:        int(cmd.Int("offset")),
	})
	if err != nil {
		return err
	}
	return r.writeJSON(page)
}

func (r *Runner) Favorite(ctx context.Context, cmd *cli.Command) error {
	id, err := argID(cmd, "channel-id")
	if err != nil {
		return err
	}
	d, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()

	fav, err := d.lib.ToggleFavorite(ctx, id)
	if err != nil {
		return err
	}
	r.writePlainln("%s favorite=%t", id, fav)
	return nil
}

func (r *Runner) Delete(ctx context.Context, cmd *cli.Command) error {
	id, err := argID(cmd, "playlist-id")
	if err != nil {
		return err
	}
	d, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.lib.DeletePlaylist(ctx, id); err != nil {
		return err
	}
	r.writePlainln("✓ Playlist deleted: %s", id)
	return nil
}

func argID(cmd *cli.Command, name string) (uuid.UUID, error) {
	v := cmd.StringArg(name)
	if v == "" {
		return uuid.Nil, fmt.Errorf("%s is required", name)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return id, nil
}
