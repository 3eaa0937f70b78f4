package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/services"
	"github.com/desertthunder/dlpanel/internal/shared"
)

// DefaultPollInterval paces status polls when none is configured.
const DefaultPollInterval = 3 * time.Second

// A job the service keeps reporting as unknown is given up on after this many consecutive polls.
const maxNotFound = 5

// Poller drives the status-poll feed for one job at a time.
type Poller struct {
	client   services.JobClient
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time
}

// NewPoller creates a poller that issues at most one status request per interval per job.
func NewPoller(client services.JobClient, interval time.Duration, logger *log.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Poller{
		client:   client,
		interval: interval,
		logger:   shared.WithLogger(logger, "component", "poller"),
		now:      time.Now,
	}
}

// Run polls jobID and hands each result to apply until apply reports the job finished or ctx ends.
//
// The first poll is immediate. Transient failures are logged and the tick is skipped.
func (p *Poller) Run(ctx context.Context, jobID string, apply func(models.Frame) (done bool)) error {
	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	notFound := 0

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}

		snap, err := p.client.PollStatus(ctx, jobID)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, shared.ErrJobNotFound):
			notFound++
			p.logger.Debug("job not found", "job", jobID, "attempt", notFound)
			if notFound < maxNotFound {
				continue
			}
			p.logger.Warn("giving up on unknown job", "job", jobID)
			snap = models.JobSnapshot{JobID: jobID, Status: models.JobFailed.String(), Error: "job not found"}
		case err != nil:
			p.logger.Debug("poll skipped", "job", jobID, "err", err)
			continue
		default:
			notFound = 0
		}

		if apply(services.FrameFromSnapshot(snap, p.now())) {
			return nil
		}
	}
}
