// package services defines the clients for the external download service
//
// Lifecycle calls (start, cancel, status) and the progress push stream.
package services

import (
	"context"

	"github.com/desertthunder/dlpanel/internal/models"
)

// JobClient starts, cancels and inspects download jobs.
type JobClient interface {
	// Start submits link as an asynchronous download and returns the created job.
	// Failures wrap [shared.ErrSubmission]; the call is never retried.
	Start(ctx context.Context, link string) (models.Job, error)

	// Cancel requests cancellation. Cancelling an already finished job is a no-op.
	// Failures wrap [shared.ErrCancel].
	Cancel(ctx context.Context, target models.CancelTarget) error

	// PollStatus fetches the current status of one job.
	// Failures wrap [shared.ErrTransientPoll].
	PollStatus(ctx context.Context, jobID string) (models.JobSnapshot, error)
}

// Scope selects which progress frames a stream subscription receives.
//
// The zero value is account scope (every job of the account).
type Scope struct {
	JobID string
}

// Account reports whether the scope covers the whole account.
func (s Scope) Account() bool {
	return s.JobID == ""
}

func (s Scope) String() string {
	if s.Account() {
		return "account"
	}
	return "job:" + s.JobID
}

// FrameSink receives normalized frames. Returning false ends the subscription.
type FrameSink func(models.Frame) bool

// FrameSource produces push frames.
type FrameSource interface {
	// Subscribe blocks, delivering frames to sink until ctx ends, sink returns false,
	// or the transport fails (wrapped [shared.ErrStreamUnavailable]). It never reconnects.
	Subscribe(ctx context.Context, scope Scope, sink FrameSink) error
}
