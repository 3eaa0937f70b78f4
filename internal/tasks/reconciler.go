package tasks

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/panel"
	"github.com/desertthunder/dlpanel/internal/services"
	"github.com/desertthunder/dlpanel/internal/shared"
)

// ActivityNotifier receives activity transitions. [panel.Machine] implements it.
type ActivityNotifier interface {
	Dispatch(a panel.Action) models.PanelState
}

// Snapshot is the canonical view published after every applied update.
type Snapshot struct {
	Seq               uint64                 `json:"seq"`
	Overall           models.OverallProgress `json:"overall"`
	Entries           []models.QueueEntry    `json:"entries"`
	Jobs              []models.Job           `json:"jobs"`
	HasActiveDownload bool                   `json:"has_active_download"`
	Finished          bool                   `json:"finished"`
	StreamAvailable   bool                   `json:"stream_available"`
}

// Live reports whether any tracked job has yet to reach a terminal state.
func (s Snapshot) Live() bool {
	for _, j := range s.Jobs {
		if !j.Status.Terminal() {
			return true
		}
	}
	return false
}

// Reconciler merges poll and push frames into one [models.OverallProgress] and [QueueStore].
//
// All state changes go through a single mutex-guarded intake step, so readers never observe a
// partially applied frame. Conflicts between feeds are resolved last-write-wins per field in
// arrival order; progress is not forced to be monotonic.
type Reconciler struct {
	mu       sync.Mutex
	overall  models.OverallProgress
	queue    *QueueStore
	finished map[string]struct{} // Entry keys already reported complete this session
	jobs     map[string]*models.Job
	active   bool
	ended    bool
	streamUp bool
	seq      uint64

	notifier ActivityNotifier
	subs     *shared.Broadcaster[Snapshot]
	logger   *log.Logger
}

// NewReconciler creates an idle reconciler. notifier may be nil.
func NewReconciler(notifier ActivityNotifier, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Reconciler{
		queue:    NewQueueStore(),
		finished: make(map[string]struct{}),
		jobs:     make(map[string]*models.Job),
		notifier: notifier,
		subs:     shared.NewBroadcaster[Snapshot](),
		logger:   shared.WithLogger(logger, "component", "reconciler"),
	}
}

// Track starts a fresh session for a newly submitted job.
//
// Per-entry state and the aggregate are reset, and the panel is told about the new job so a
// previous manual hide does not suppress it. Activity itself waits for the first frame that
// reports a total.
func (r *Reconciler) Track(job models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job.Status = models.JobPending
	r.jobs[job.ID] = &job
	r.resetSession()
	r.overall.StatusLabel = "Submitted"

	r.logger.Info("tracking job", "job", job.ID, "link", job.SourceLink)
	r.setActive(false)
	r.notify(panel.NewJob{})
	r.publish()
}

// Apply folds one frame into the canonical state and reports whether it was applied.
//
// Frames for a job that already reached a terminal state are ignored. Once the session has
// finished only two kinds of frame get through: a terminal frame for a tracked job that is
// still live, which updates that job alone, and a frame opening a new aggregate.
func (r *Reconciler) Apply(f models.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	var job *models.Job
	if f.JobID != "" {
		job = r.jobs[f.JobID]
	}
	if job != nil && job.Status.Terminal() {
		r.logger.Debug("ignoring frame for finished job", "job", f.JobID, "source", f.Source, "status", job.Status)
		return false
	}
	if r.ended {
		switch {
		case r.startsAggregate(f):
			r.logger.Info("new session observed", "job", f.JobID, "total", *f.OverallTotal)
			r.resetSession()
		case job != nil && f.IsTerminal:
			r.finishJobs(job, f, f.Terminal)
			r.publish()
			return true
		default:
			r.logger.Debug("ignoring frame after session end", "job", f.JobID, "source", f.Source, "key", f.Key)
			return false
		}
	}

	touchedTotals := r.mergeOverall(f)
	if f.Key != "" {
		r.applyEntry(f)
	}

	terminal, outcome := f.IsTerminal, f.Terminal
	if !terminal && touchedTotals && r.overall.Total > 0 && r.overall.Completed >= r.overall.Total {
		terminal, outcome = true, models.JobCompleted
	}

	if job != nil && job.Status == models.JobPending && !isPendingPoll(f) {
		job.Status = models.JobRunning
	}
	if terminal {
		r.finishJobs(job, f, outcome)
	}

	// A frame naming a job this reconciler does not track only ends the session when
	// nothing is tracked at all.
	ours := job != nil || f.JobID == "" || len(r.jobs) == 0
	switch {
	case terminal && ours && outcome == models.JobCompleted:
		r.endSession(outcome)
	case terminal && ours && !r.anyLiveJob():
		r.endSession(outcome)
	}

	r.setActive(!r.ended && r.overall.Total > 0)
	r.publish()
	return true
}

// startsAggregate reports whether f opens a new aggregate after the previous session ended:
// a positive total that is not yet complete and is either new or starts from zero. A late
// frame repeating the finished session's total mid-way is not a new session.
func (r *Reconciler) startsAggregate(f models.Frame) bool {
	if f.IsTerminal || f.OverallTotal == nil || *f.OverallTotal <= 0 {
		return false
	}
	completed := 0
	if f.OverallCompleted != nil {
		completed = *f.OverallCompleted
	}
	if completed >= *f.OverallTotal {
		return false
	}
	return *f.OverallTotal != r.overall.Total || completed == 0
}

func (r *Reconciler) resetSession() {
	r.overall = models.OverallProgress{}
	r.queue.Clear()
	r.finished = make(map[string]struct{})
	r.ended = false
}

// mergeOverall overwrites aggregate fields present in f; absent fields keep their value.
// Reports whether total or completed were present.
func (r *Reconciler) mergeOverall(f models.Frame) bool {
	next := r.overall
	touched := f.OverallTotal != nil || f.OverallCompleted != nil

	if f.OverallTotal != nil {
		next.Total = max(0, *f.OverallTotal)
	}
	if f.OverallCompleted != nil {
		next.Completed = max(0, *f.OverallCompleted)
	}
	next.Completed = min(next.Completed, next.Total)

	switch {
	case f.OverallProgress != nil:
		next.ProgressPercent = shared.ClampPercent(*f.OverallProgress)
	case touched && next.Total > 0:
		next.ProgressPercent = shared.ClampPercent(int(math.Round(float64(next.Completed) / float64(next.Total) * 100)))
	}

	switch {
	case f.Phase != "":
		next.StatusLabel = f.Phase
	case f.AggregateStatus != "":
		next.StatusLabel = f.AggregateStatus
	}

	r.overall = next
	return touched
}

func (r *Reconciler) applyEntry(f models.Frame) {
	if _, done := r.finished[f.Key]; done {
		r.logger.Debug("ignoring frame for finished entry", "key", f.Key)
		return
	}

	prev, _ := r.queue.Get(f.Key)
	entry := models.QueueEntry{
		Key:          f.Key,
		DisplayName:  f.DisplayName,
		Status:       prev.Status,
		Progress:     prev.Progress,
		UpdatedAt:    f.ReceivedAt,
		ErrorMessage: f.ErrorMessage,
	}
	if entry.DisplayName == "" {
		entry.DisplayName = prev.DisplayName
	}
	if f.Status != nil {
		entry.Status = f.Status
	}
	if f.Progress != nil {
		entry.Progress = shared.ClampPercent(*f.Progress)
	}

	if services.EntryComplete(entry.Progress, entry.StatusText()) {
		r.queue.Remove(f.Key)
		r.finished[f.Key] = struct{}{}
		return
	}

	if entry.ErrorMessage != nil || isErrorStatus(entry.StatusText()) {
		entry.Severity = models.SeverityError
	}
	r.queue.Upsert(entry)
}

// finishJobs records the first terminal outcome. A frame naming a job affects only that job;
// an unscoped frame (account stream) affects every live job.
func (r *Reconciler) finishJobs(job *models.Job, f models.Frame, outcome models.JobStatus) {
	finish := func(j *models.Job) {
		j.Status = outcome
		if f.JobError != "" {
			j.Error = f.JobError
		}
		r.logger.Info("job finished", "job", j.ID, "status", outcome, "source", f.Source, "cancel_requested", j.CancelRequested)
	}

	if job != nil {
		finish(job)
		return
	}
	if f.JobID != "" {
		return
	}
	for _, j := range r.jobs {
		if j.Status.Terminal() {
			continue
		}
		if outcome == models.JobCancelled && !j.CancelRequested {
			continue
		}
		finish(j)
	}
}

// endSession latches the session as finished. Completion is a hard reset of the queue
// whatever other jobs are doing; a failed or cancelled session keeps its rows so errors
// stay visible until the next job.
func (r *Reconciler) endSession(outcome models.JobStatus) {
	r.ended = true
	if outcome == models.JobCompleted {
		r.queue.Clear()
		r.overall.Completed = r.overall.Total
		if r.overall.Total > 0 {
			r.overall.ProgressPercent = 100
		}
	}
	r.overall.StatusLabel = outcome.String()
	r.logger.Info("session finished", "outcome", outcome)
}

func (r *Reconciler) anyLiveJob() bool {
	for _, j := range r.jobs {
		if !j.Status.Terminal() {
			return true
		}
	}
	return false
}

func (r *Reconciler) setActive(active bool) {
	if active == r.active {
		return
	}
	r.active = active
	r.notify(panel.SetActive{Active: active})
}

func (r *Reconciler) notify(a panel.Action) {
	if r.notifier != nil {
		r.notifier.Dispatch(a)
	}
}

// MarkCancelRequested flags a job as having a cancel in flight. Its status is untouched:
// whichever terminal frame arrives first decides the outcome.
func (r *Reconciler) MarkCancelRequested(jobID string) (models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[jobID]
	if !ok {
		return models.Job{}, false
	}
	j.CancelRequested = true
	r.publish()
	return *j, true
}

// Job returns a copy of a tracked job.
func (r *Reconciler) Job(id string) (models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *j, true
}

// JobByLink returns the most recent tracked job submitted for link.
func (r *Reconciler) JobByLink(link string) (models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *models.Job
	for _, j := range r.jobs {
		if j.SourceLink == link && (found == nil || j.CreatedAt.After(found.CreatedAt)) {
			found = j
		}
	}
	if found == nil {
		return models.Job{}, false
	}
	return *found, true
}

// Acknowledge drops a terminal job from memory. Live jobs are kept.
func (r *Reconciler) Acknowledge(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || !j.Status.Terminal() {
		return false
	}
	delete(r.jobs, id)
	r.publish()
	return true
}

// SetStreamAvailable records whether the push stream is connected.
func (r *Reconciler) SetStreamAvailable(up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.streamUp == up {
		return
	}
	r.streamUp = up
	r.publish()
}

// Snapshot returns the current canonical view.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Subscribe returns a channel receiving a [Snapshot] after every applied update.
// Slow readers observe only the latest snapshot.
func (r *Reconciler) Subscribe() (string, <-chan Snapshot) {
	return r.subs.Subscribe()
}

// Unsubscribe releases a subscription.
func (r *Reconciler) Unsubscribe(id string) {
	r.subs.Unsubscribe(id)
}

// Close releases all subscriptions.
func (r *Reconciler) Close() {
	r.subs.Close()
}

func (r *Reconciler) snapshot() Snapshot {
	jobs := make([]models.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})

	return Snapshot{
		Seq:               r.seq,
		Overall:           r.overall,
		Entries:           r.queue.Entries(),
		Jobs:              jobs,
		HasActiveDownload: r.active,
		Finished:          r.ended,
		StreamAvailable:   r.streamUp,
	}
}

// publish must be called with mu held.
func (r *Reconciler) publish() {
	r.seq++
	r.subs.Publish(r.snapshot())
}

func isPendingPoll(f models.Frame) bool {
	return f.Source == models.SourcePoll && models.ParseJobStatus(f.AggregateStatus) == models.JobPending
}

func isErrorStatus(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "error") || strings.Contains(s, "fail")
}
