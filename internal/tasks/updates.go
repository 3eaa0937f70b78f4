package tasks

import (
	"fmt"
)

// ProgressUpdate reports one step of a batch submission.
//
// Used to send real-time updates to the CLI or UI layer while [Tracker.StartAll] runs.
type ProgressUpdate struct {
	Phase   Phase  // Submission phase
	Step    int    // Links handled so far
	Total   int    // Links in the batch
	Link    string // Link this update is about
	JobID   string // Job id, once known
	Message string // Human-readable message for display
	Err     error  // Set for [SubmitFailed]
}

// Submission phase enumeration
type Phase int

const (
	Submitting Phase = iota
	Submitted
	SubmitFailed
)

func (p Phase) String() string {
	switch p {
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	case SubmitFailed:
		return "submit_failed"
	default:
		return ""
	}
}

func submittingUpdate(step, total int, link string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Submitting,
		Step:    step,
		Total:   total,
		Link:    link,
		Message: fmt.Sprintf("Submitting %s...", link),
	}
}

func submittedUpdate(step, total int, link, jobID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Submitted,
		Step:    step,
		Total:   total,
		Link:    link,
		JobID:   jobID,
		Message: fmt.Sprintf("Submitted %s as job %s", link, jobID),
	}
}

func submitFailedUpdate(step, total int, link string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SubmitFailed,
		Step:    step,
		Total:   total,
		Link:    link,
		Err:     err,
		Message: fmt.Sprintf("Failed to submit %s: %v", link, err),
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
