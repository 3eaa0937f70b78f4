package models

import "testing"

func TestParseJobStatus(t *testing.T) {
	tc := []struct {
		in   string
		want JobStatus
	}{
		{in: "pending", want: JobPending},
		{in: "", want: JobPending},
		{in: "Completed", want: JobCompleted},
		{in: " done ", want: JobCompleted},
		{in: "failed", want: JobFailed},
		{in: "canceled", want: JobCancelled},
		{in: "cancelled", want: JobCancelled},
		{in: "downloading", want: JobRunning},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseJobStatus(tt.in); got != tt.want {
				t.Errorf("ParseJobStatus(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobPending, JobRunning} {
		if s.Terminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobCompleted, JobFailed, JobCancelled} {
		if !s.Terminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
}

func TestCancelTargetEmpty(t *testing.T) {
	if !(CancelTarget{JobID: " "}).Empty() {
		t.Error("whitespace target should be empty")
	}
	if (CancelTarget{Link: "https://open.spotify.com/track/x"}).Empty() {
		t.Error("link target should not be empty")
	}
}
