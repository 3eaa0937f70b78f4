package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/dlpanel/internal/server"
	"github.com/desertthunder/dlpanel/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the status server until interrupted.
//
// The tracker follows the whole account so screens see downloads started by any client.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if host := cmd.String("host"); host != "" {
		r.config.Server.Host = host
	}
	if port := cmd.Int("port"); port != 0 {
		r.config.Server.Port = int(port)
	}
	if err := r.config.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := r.newTracker(shared.ScopeAccount)
	defer tracker.Close()
	tracker.Watch()

	router := server.NewStatusRouter(tracker, tracker.Panel(), r.logger)
	srv := server.New(r.config.Addr(), router, r.logger)

	r.logger.Info("following downloads", "service", r.api.BaseURL())
	return srv.Run(ctx)
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the status server for other screens (panel state, progress, downloads)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides [server] host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides [server] port)",
			},
		},
		Action: r.Serve,
	}
}
