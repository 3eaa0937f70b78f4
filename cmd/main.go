package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/desertthunder/dlpanel/internal/services"
	"github.com/desertthunder/dlpanel/internal/shared"
	"github.com/urfave/cli/v3"
)

const configPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		loadedConfig, err := shared.LoadConfig(configPath)
		if err != nil {
			logger.Fatalf("failed to load %s: %v", configPath, err)
		}
		config = loadedConfig
	}
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	httpClient := &http.Client{Timeout: config.RequestTimeout()}
	apiService := services.NewAPIService(config.Service.BaseURL, httpClient)

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		API:        apiService,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:    "dlpanel",
		Usage:   "Submit downloads and follow their progress",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error (overrides [log] level)",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if level := cmd.String("log-level"); level != "" {
				shared.SetLogLevel(logger, shared.ParseLogLevel(level))
			}
			return ctx, nil
		},
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotImplemented):
			logger.Warn("not implemented")
			os.Exit(0)
		case errors.Is(err, shared.ErrSubmission):
			logger.Error("download could not be started", "err", err)
			os.Exit(1)
		case errors.Is(err, shared.ErrCancel):
			logger.Error("download could not be cancelled", "err", err)
			os.Exit(1)
		case errors.Is(err, shared.ErrJobFailed):
			logger.Error("download finished with errors", "err", err)
			os.Exit(1)
		case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument):
			logger.Error(err.Error())
			os.Exit(2)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}
