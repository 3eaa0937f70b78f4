package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/dlpanel/internal/formatter"
	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/shared"
	"github.com/desertthunder/dlpanel/internal/tasks"
	"github.com/urfave/cli/v3"
)

// DownloadStart submits one or more links and follows them until every job finishes.
func (r *Runner) DownloadStart(ctx context.Context, cmd *cli.Command) error {
	links := cmd.Args().Slice()
	if len(links) == 0 {
		return fmt.Errorf("%w: at least one link is required", shared.ErrMissingArgument)
	}

	tracker := r.newTracker(r.config.Service.StreamScope)
	defer tracker.Close()

	progressCh := make(chan tasks.ProgressUpdate, 50)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progressCh {
			switch update.Phase {
			case tasks.Submitting:
				r.writePlain("→ [%d/%d] %s\n", update.Step, update.Total, update.Message)
			case tasks.Submitted:
				r.writePlain("✓ [%d/%d] %s\n", update.Step, update.Total, update.Message)
			case tasks.SubmitFailed:
				r.writePlain("✗ [%d/%d] %s\n", update.Step, update.Total, update.Message)
			}
		}
	}()

	jobs, submitErr := tracker.StartAll(ctx, links, progressCh)
	close(progressCh)
	<-printed

	if cmd.Bool("detach") || len(jobs) == 0 {
		if cmd.Bool("json") {
			if err := r.writeJSON(jobs, true); err != nil {
				return err
			}
		} else {
			for _, job := range jobs {
				r.writePlain("%s\t%s\n", job.ID, job.SourceLink)
			}
		}
		return submitErr
	}

	finished, err := r.follow(ctx, tracker, jobs)
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Download Summary")
	r.writePlain("%s", formatter.SnapshotToText(tracker.Snapshot()))

	if failed := failedJobs(finished); len(failed) > 0 {
		return errors.Join(submitErr, fmt.Errorf("%w: %s", shared.ErrJobFailed, strings.Join(failed, ", ")))
	}
	return submitErr
}

// follow prints the overall line whenever it changes until every job is terminal.
func (r *Runner) follow(ctx context.Context, tracker *tasks.Tracker, jobs []models.Job) ([]models.Job, error) {
	id, updates := tracker.Subscribe()
	defer tracker.Unsubscribe(id)

	type awaitResult struct {
		jobs []models.Job
		err  error
	}
	done := make(chan awaitResult, 1)
	go func() {
		finished := make([]models.Job, 0, len(jobs))
		for _, job := range jobs {
			j, err := tracker.Await(ctx, job.ID)
			if err != nil {
				done <- awaitResult{err: err}
				return
			}
			finished = append(finished, j)
		}
		done <- awaitResult{jobs: finished}
	}()

	last := ""
	entries := make(map[string]string)
	streamWarned := false
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if line := formatter.OverallLine(snap.Overall); line != last {
				r.writePlain("%s\n", line)
				last = line
			}
			for _, e := range snap.Entries {
				if line := formatter.EntryLine(e); entries[e.Key] != line {
					r.writePlain("  %s\n", line)
					entries[e.Key] = line
				}
			}
			if !snap.StreamAvailable && snap.Live() && !streamWarned {
				r.logger.Warn("live updates unavailable, falling back to polling")
				streamWarned = true
			}
		case res := <-done:
			return res.jobs, res.err
		}
	}
}

func failedJobs(jobs []models.Job) []string {
	var failed []string
	for _, j := range jobs {
		switch j.Status {
		case models.JobFailed:
			msg := j.ID
			if j.Error != "" {
				msg += " (" + j.Error + ")"
			}
			failed = append(failed, msg)
		case models.JobCancelled:
			failed = append(failed, j.ID+" (cancelled)")
		}
	}
	return failed
}

// DownloadCancel requests cancellation by job id or link.
func (r *Runner) DownloadCancel(ctx context.Context, cmd *cli.Command) error {
	target := models.CancelTarget{
		JobID: strings.TrimSpace(cmd.String("job")),
		Link:  strings.TrimSpace(cmd.String("link")),
	}
	if target.Empty() {
		return fmt.Errorf("%w: --job or --link is required", shared.ErrMissingArgument)
	}

	tracker := r.newTracker(r.config.Service.StreamScope)
	defer tracker.Close()

	if err := tracker.Cancel(ctx, target); err != nil {
		return err
	}

	if target.JobID != "" {
		return r.writePlain("Cancellation requested for job %s\n", target.JobID)
	}
	return r.writePlain("Cancellation requested for %s\n", target.Link)
}

// DownloadStatus polls a job once and prints its status with the reconciled view.
func (r *Runner) DownloadStatus(ctx context.Context, cmd *cli.Command) error {
	jobID := strings.TrimSpace(cmd.Args().First())
	if jobID == "" {
		return fmt.Errorf("%w: job id is required", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	tracker := r.newTracker(r.config.Service.StreamScope)
	defer tracker.Close()

	snap, err := tracker.Refresh(ctx, jobID)
	if err != nil {
		return err
	}

	data, err := formatter.Render(formatter.Status{Job: snap, Snapshot: tracker.Snapshot()}, format)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteExport(data, path); err != nil {
			return err
		}
		r.logger.Info("status written", "path", path)
		return nil
	}

	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "download",
		Aliases: []string{"dl"},
		Usage:   "Submit, cancel and follow downloads",
		Commands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Submit one or more links and follow their progress",
				ArgsUsage: "<link>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "detach",
						Aliases: []string{"d"},
						Usage:   "Print job ids and exit without following progress",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print submitted jobs as JSON (with --detach)",
					},
				},
				Action: r.DownloadStart,
			},
			{
				Name:  "cancel",
				Usage: "Cancel a download by job id or link",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "job",
						Usage: "Job id to cancel",
					},
					&cli.StringFlag{
						Name:  "link",
						Usage: "Source link to cancel",
					},
				},
				Action: r.DownloadCancel,
			},
			{
				Name:      "status",
				Usage:     "Poll a job once and print its progress",
				ArgsUsage: "<job-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, csv or json",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write output to a file instead of stdout",
					},
				},
				Action: r.DownloadStatus,
			},
			{
				Name:      "watch",
				Usage:     "Open the interactive progress panel, optionally submitting links first",
				ArgsUsage: "[<link>...]",
				Action:    r.TUI,
			},
		},
	}
}
