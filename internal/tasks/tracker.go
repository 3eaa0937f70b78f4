package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/panel"
	"github.com/desertthunder/dlpanel/internal/services"
	"github.com/desertthunder/dlpanel/internal/shared"
)

// TrackerOptions configures a [Tracker]. Zero values select defaults.
type TrackerOptions struct {
	StreamScope  string        // [shared.ScopeJob] (default) or [shared.ScopeAccount]
	PollInterval time.Duration // Defaults to [DefaultPollInterval]
	Workers      int           // Concurrent submissions in StartAll; defaults to 1
	RateLimit    float64       // Submissions per second in StartAll; 0 disables pacing
	Panel        *panel.Machine
	Logger       *log.Logger
}

type streamRun struct {
	id     uint64
	cancel context.CancelFunc
}

// Tracker is the long-lived download progress service.
//
// It submits jobs, follows each one with a status poller and a push stream subscription,
// and feeds both into a single [Reconciler]. One Tracker exists per process.
type Tracker struct {
	jobs    services.JobClient
	stream  services.FrameSource
	rec     *Reconciler
	panel   *panel.Machine
	poller  *Poller
	scope   string
	workers int
	limiter *rate.Limiter
	logger  *log.Logger

	base   context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu      sync.Mutex
	pollers map[string]context.CancelFunc
	streams map[string]streamRun
	nextRun atomic.Uint64
}

// NewTracker wires a tracker over the lifecycle client and push source. stream may be nil,
// in which case progress comes from polling alone.
func NewTracker(jobs services.JobClient, stream services.FrameSource, opts TrackerOptions) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	machine := opts.Panel
	if machine == nil {
		machine = panel.NewMachine(logger)
	}
	scope := opts.StreamScope
	if scope == "" {
		scope = shared.ScopeJob
	}
	workers := max(opts.Workers, 1)

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	base, cancel := context.WithCancel(context.Background())
	return &Tracker{
		jobs:    jobs,
		stream:  stream,
		rec:     NewReconciler(machine, logger),
		panel:   machine,
		poller:  NewPoller(jobs, opts.PollInterval, logger),
		scope:   scope,
		workers: workers,
		limiter: rate.NewLimiter(limit, 1),
		logger:  shared.WithLogger(logger, "component", "tracker"),
		base:    base,
		cancel:  cancel,
		pollers: make(map[string]context.CancelFunc),
		streams: make(map[string]streamRun),
	}
}

// Start submits link and begins following the created job.
//
// Submission is never retried; a failure wraps [shared.ErrSubmission] and nothing is tracked.
func (t *Tracker) Start(ctx context.Context, link string) (models.Job, error) {
	job, err := t.jobs.Start(ctx, link)
	if err != nil {
		t.logger.Error("submission failed", "link", link, "err", err)
		return models.Job{}, err
	}

	t.rec.Track(job)
	t.Follow(job.ID)
	return job, nil
}

// StartAll submits links concurrently, bounded by the configured worker count and rate limit.
//
// Every link is attempted; failures are joined into the returned error alongside the jobs that
// were created.
func (t *Tracker) StartAll(ctx context.Context, links []string, progress chan<- ProgressUpdate) ([]models.Job, error) {
	var (
		mu   sync.Mutex
		jobs []models.Job
		errs []error
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	total := len(links)
	for i, link := range links {
		g.Go(func() error {
			if err := t.limiter.Wait(gctx); err != nil {
				return err
			}
			sendProgress(progress, submittingUpdate(i+1, total, link))

			job, err := t.Start(gctx, link)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", link, err))
				sendProgress(progress, submitFailedUpdate(done, total, link, err))
				return nil
			}
			jobs = append(jobs, job)
			sendProgress(progress, submittedUpdate(done, total, link, job.ID))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	return jobs, errors.Join(errs...)
}

// Follow starts the poller and, for job scope, the push subscription for an already
// submitted job. Following a job twice is a no-op.
func (t *Tracker) Follow(jobID string) {
	if _, ok := t.rec.Job(jobID); !ok {
		t.rec.Track(models.Job{ID: jobID, CreatedAt: time.Now()})
	}

	t.mu.Lock()
	if _, ok := t.pollers[jobID]; ok {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(t.base)
	t.pollers[jobID] = cancel
	t.mu.Unlock()

	scope := services.Scope{JobID: jobID}
	if t.scope == shared.ScopeAccount {
		scope = services.Scope{}
	}
	t.openStream(scope)

	t.group.Go(func() error {
		defer func() {
			cancel()
			t.mu.Lock()
			delete(t.pollers, jobID)
			t.mu.Unlock()
			if !scope.Account() {
				t.closeStream(scope)
			}
		}()

		return t.poller.Run(ctx, jobID, func(f models.Frame) bool {
			t.rec.Apply(f)
			return t.finished(jobID)
		})
	})
}

// Watch opens an account-scope push subscription without submitting anything.
func (t *Tracker) Watch() {
	t.openStream(services.Scope{})
}

// Resubscribe closes every open push subscription and opens fresh ones: one per live job
// in job scope, or a single account subscription.
func (t *Tracker) Resubscribe() {
	t.mu.Lock()
	scopes := make([]services.Scope, 0, len(t.pollers)+1)
	for key, run := range t.streams {
		run.cancel()
		delete(t.streams, key)
	}
	if t.scope == shared.ScopeAccount {
		scopes = append(scopes, services.Scope{})
	} else {
		for jobID := range t.pollers {
			scopes = append(scopes, services.Scope{JobID: jobID})
		}
	}
	t.mu.Unlock()

	t.logger.Info("resubscribing", "streams", len(scopes))
	for _, scope := range scopes {
		t.openStream(scope)
	}
}

func (t *Tracker) openStream(scope services.Scope) {
	if t.stream == nil {
		return
	}

	key := scope.String()
	t.mu.Lock()
	if _, ok := t.streams[key]; ok {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(t.base)
	run := streamRun{id: t.nextRun.Add(1), cancel: cancel}
	t.streams[key] = run
	t.mu.Unlock()

	t.group.Go(func() error {
		defer cancel()

		err := t.stream.Subscribe(ctx, scope, t.sink(scope))

		t.mu.Lock()
		if cur, ok := t.streams[key]; ok && cur.id == run.id {
			delete(t.streams, key)
		}
		open := len(t.streams)
		t.mu.Unlock()

		if err != nil {
			t.logger.Warn("push stream unavailable, relying on polling", "scope", scope, "err", err)
		}
		if err != nil || open == 0 {
			t.rec.SetStreamAvailable(false)
		}
		return nil
	})
}

func (t *Tracker) closeStream(scope services.Scope) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if run, ok := t.streams[scope.String()]; ok {
		run.cancel()
	}
}

func (t *Tracker) sink(scope services.Scope) services.FrameSink {
	return func(f models.Frame) bool {
		if f.JobID == "" && !scope.Account() {
			f.JobID = scope.JobID
		}
		t.rec.SetStreamAvailable(true)
		t.rec.Apply(f)

		if scope.Account() {
			return true
		}
		return !t.finished(scope.JobID)
	}
}

func (t *Tracker) finished(jobID string) bool {
	job, ok := t.rec.Job(jobID)
	return !ok || job.Status.Terminal()
}

// Cancel requests cancellation by job id or link.
//
// A job already known to be finished is left alone. Otherwise the job is flagged and the
// request sent; polling continues and the first terminal frame from either feed decides
// the outcome. Failures wrap [shared.ErrCancel].
func (t *Tracker) Cancel(ctx context.Context, target models.CancelTarget) error {
	if target.Empty() {
		return fmt.Errorf("%w: %w: job id or link is required", shared.ErrCancel, shared.ErrInvalidInput)
	}

	job, known := t.rec.Job(target.JobID)
	if !known && target.JobID == "" {
		job, known = t.rec.JobByLink(target.Link)
	}
	if known {
		if job.Status.Terminal() {
			t.logger.Info("cancel skipped, job already finished", "job", job.ID, "status", job.Status)
			return nil
		}
		t.rec.MarkCancelRequested(job.ID)
		target = models.CancelTarget{JobID: job.ID}
	}

	if err := t.jobs.Cancel(ctx, target); err != nil {
		t.logger.Error("cancel failed", "job", target.JobID, "link", target.Link, "err", err)
		return err
	}
	t.logger.Info("cancel requested", "job", target.JobID, "link", target.Link)
	return nil
}

// Refresh polls jobID once and feeds the result through the reconciler, tracking the job
// first when it is unknown. Used by one-shot status queries.
func (t *Tracker) Refresh(ctx context.Context, jobID string) (models.JobSnapshot, error) {
	snap, err := t.jobs.PollStatus(ctx, jobID)
	if err != nil {
		return snap, err
	}

	now := time.Now()
	if _, ok := t.rec.Job(jobID); !ok {
		t.rec.Track(models.Job{ID: jobID, CreatedAt: now})
	}
	t.rec.Apply(services.FrameFromSnapshot(snap, now))
	return snap, nil
}

// Await blocks until jobID reaches a terminal state or ctx ends.
func (t *Tracker) Await(ctx context.Context, jobID string) (models.Job, error) {
	id, updates := t.rec.Subscribe()
	defer t.rec.Unsubscribe(id)

	for {
		job, ok := t.rec.Job(jobID)
		if !ok {
			return models.Job{}, fmt.Errorf("%w: %s", shared.ErrJobNotFound, jobID)
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case _, open := <-updates:
			if !open {
				return job, fmt.Errorf("%w: tracker closed", shared.ErrServiceUnavailable)
			}
		}
	}
}

// Acknowledge drops a finished job from memory.
func (t *Tracker) Acknowledge(jobID string) bool {
	return t.rec.Acknowledge(jobID)
}

// Dispatch forwards a user panel action.
func (t *Tracker) Dispatch(a panel.Action) models.PanelState {
	return t.panel.Dispatch(a)
}

// Snapshot returns the current reconciled state.
func (t *Tracker) Snapshot() Snapshot {
	return t.rec.Snapshot()
}

// Subscribe returns a channel of reconciled snapshots.
func (t *Tracker) Subscribe() (string, <-chan Snapshot) {
	return t.rec.Subscribe()
}

// Unsubscribe releases a snapshot subscription.
func (t *Tracker) Unsubscribe(id string) {
	t.rec.Unsubscribe(id)
}

// PanelState returns the current panel visibility state.
func (t *Tracker) PanelState() models.PanelState {
	return t.panel.State()
}

// Panel returns the panel visibility machine driven by this tracker.
func (t *Tracker) Panel() *panel.Machine {
	return t.panel
}

// Close stops every poller and subscription and waits for them to exit.
func (t *Tracker) Close() error {
	t.cancel()
	err := t.group.Wait()
	t.rec.Close()
	return err
}
