package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(NewRunner(os.Stdout)).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "playlistvault: %v\n", err)
		os.Exit(1)
	}
}

func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlistvault",
		Usage:   "Import IPTV playlists and browse their channels",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Optional config file path (YAML); otherwise environment variables are used",
				Sources: cli.EnvVars("PLAYLISTVAULT_CONFIG"),
			},
		},
		Commands: r.register(),
	}
}
