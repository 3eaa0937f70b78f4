// package models defines the data model for download progress tracking
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a [Job].
type JobStatus int

const (
	JobPending JobStatus = iota
	JobRunning
	JobCompleted
	JobFailed
	JobCancelled
)

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	default:
		return ""
	}
}

// MarshalText encodes the status as its lowercase name.
func (s JobStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further updates are accepted in this state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ParseJobStatus maps service status strings ("pending", "completed", ...) to a [JobStatus].
//
// Unknown values map to [JobRunning]: the service reported something, so the job is alive.
func ParseJobStatus(s string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "queued", "":
		return JobPending
	case "completed", "complete", "done":
		return JobCompleted
	case "failed", "error":
		return JobFailed
	case "cancelled", "canceled":
		return JobCancelled
	default:
		return JobRunning
	}
}

// Job is one submitted download tracked end-to-end.
type Job struct {
	ID              string    `json:"id"`
	SourceLink      string    `json:"source_link"`
	Status          JobStatus `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	CancelRequested bool      `json:"cancel_requested"`
	Error           string    `json:"error,omitempty"`
}

// JobSnapshot is a single status poll result: GET /download/jobs/{job_id}.
type JobSnapshot struct {
	JobID  string          `json:"job_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"` // Raw JSON result, if any
	Error  string          `json:"error,omitempty"`
}

// CancelTarget addresses a cancel request by job id or by source link.
type CancelTarget struct {
	JobID string
	Link  string
}

// Empty reports whether neither field is set.
func (c CancelTarget) Empty() bool {
	return strings.TrimSpace(c.JobID) == "" && strings.TrimSpace(c.Link) == ""
}

// FrameSource identifies which feed produced a [Frame]. Informational only: the reconciler does not rank feeds.
type FrameSource int

const (
	SourcePush FrameSource = iota
	SourcePoll
)

func (s FrameSource) String() string {
	switch s {
	case SourcePush:
		return "push"
	case SourcePoll:
		return "poll"
	default:
		return ""
	}
}

// Frame is a normalized progress update. Nil pointer fields were absent from the payload.
type Frame struct {
	Source FrameSource
	JobID  string

	// Per-entry fields
	Key          string // Derived identity; empty means the entry cannot be tracked
	DisplayName  string
	Status       *string
	Progress     *int
	ErrorMessage *string

	// Aggregate fields
	OverallTotal     *int
	OverallCompleted *int
	OverallProgress  *int
	AggregateStatus  string
	Phase            string

	// Terminal is the job-level outcome this frame signals, if any.
	Terminal   JobStatus
	IsTerminal bool
	JobError   string

	ReceivedAt time.Time
}

// OverallProgress aggregates progress for the active session.
type OverallProgress struct {
	Total           int    `json:"total"`
	Completed       int    `json:"completed"`
	ProgressPercent int    `json:"progress_percent"`
	StatusLabel     string `json:"status_label"`
}

// SeverityError marks a [QueueEntry] carrying an error.
const SeverityError = "error"

// QueueEntry is the per-song progress row.
type QueueEntry struct {
	Key          string    `json:"key"`
	DisplayName  string    `json:"display_name"`
	Status       *string   `json:"status"`
	Progress     int       `json:"progress"`
	UpdatedAt    time.Time `json:"updated_at"`
	ErrorMessage *string   `json:"error_message"`
	Severity     string    `json:"severity,omitempty"`
}

// StatusText returns Status or "" when absent.
func (e QueueEntry) StatusText() string {
	if e.Status == nil {
		return ""
	}
	return *e.Status
}

// PanelState is the visibility state of the progress panel.
type PanelState struct {
	Visible           bool `json:"visible"`
	HasActiveDownload bool `json:"has_active_download"`
	ManualHide        bool `json:"manual_hide"`
	IsPeeking         bool `json:"is_peeking"`
}
