package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dlpanel/internal/shared"
	"github.com/desertthunder/dlpanel/internal/ui"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
)

const defaultTUILog = "./tmp/dlpanel-tui.log"

// TUI launches the interactive progress panel.
//
// With links it submits them first; without, it follows every download on the account.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if !isTerminal(r.output) {
		return fmt.Errorf("%w: watch needs an interactive terminal, use `download start` instead", shared.ErrInvalidArgument)
	}

	path := r.config.Log.File
	if path == "" {
		path = defaultTUILog
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, logFile, err := shared.NewFileLogger(path)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer logFile.Close()
	shared.SetLogLevel(fileLogger, shared.ParseLogLevel(r.config.Log.Level))
	r.SetLogger(fileLogger)

	links := cmd.Args().Slice()
	scope := r.config.Service.StreamScope
	if len(links) == 0 {
		scope = shared.ScopeAccount
	}

	tracker := r.newTracker(scope)
	defer tracker.Close()
	if len(links) == 0 {
		tracker.Watch()
	}

	model := ui.NewModel(ctx, tracker, links)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
