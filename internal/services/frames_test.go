package services

import (
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/shared"
)

var received = time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

func TestNormalizeFrame(t *testing.T) {
	t.Run("identity priority", func(t *testing.T) {
		tests := []struct {
			name    string
			payload string
			key     string
			display string
		}{
			{"song id wins", `{"song_id":"id1","spotify_url":"u","song_display_name":"D","song_name":"N"}`, "id1", "D"},
			{"spotify url next", `{"spotify_url":"u","song_display_name":"D","song_name":"N"}`, "u", "D"},
			{"display name next", `{"song_display_name":"D","song_name":"N"}`, "D", "D"},
			{"song name last", `{"song_name":"N"}`, "N", "N"},
			{"blank values skipped", `{"song_id":"  ","song_name":"N"}`, "N", "N"},
			{"numeric id", `{"song_id":42}`, "42", "42"},
			{"aggregate only", `{"overall_total":3}`, "", ""},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f, err := NormalizeFrame([]byte(tt.payload), received)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if f.Key != tt.key {
					t.Errorf("expected key %q, got %q", tt.key, f.Key)
				}
				if f.DisplayName != tt.display {
					t.Errorf("expected display %q, got %q", tt.display, f.DisplayName)
				}
			})
		}
	})

	t.Run("field variants", func(t *testing.T) {
		f, err := NormalizeFrame([]byte(`{
			"job_id": "j1",
			"song_name": "A",
			"song_status": "downloading",
			"status": "Running",
			"song_progress": "45.6%",
			"progress": 10,
			"overall_total": "12",
			"overall_completed": 4,
			"overall_progress": 33.4,
			"phase": "fetching",
			"error_message": "retrying"
		}`), received)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if f.Source != models.SourcePush || f.JobID != "j1" || !f.ReceivedAt.Equal(received) {
			t.Errorf("unexpected envelope %+v", f)
		}
		if f.Status == nil || *f.Status != "downloading" {
			t.Errorf("expected song_status to win, got %v", f.Status)
		}
		if f.AggregateStatus != "Running" || f.Phase != "fetching" {
			t.Errorf("unexpected aggregate status %q phase %q", f.AggregateStatus, f.Phase)
		}
		if f.Progress == nil || *f.Progress != 46 {
			t.Errorf("expected song_progress 46, got %v", f.Progress)
		}
		if *f.OverallTotal != 12 || *f.OverallCompleted != 4 || *f.OverallProgress != 33 {
			t.Errorf("unexpected overall %d/%d %d%%", *f.OverallTotal, *f.OverallCompleted, *f.OverallProgress)
		}
		if f.ErrorMessage == nil || *f.ErrorMessage != "retrying" {
			t.Errorf("expected error message, got %v", f.ErrorMessage)
		}
		if f.IsTerminal {
			t.Error("expected non-terminal frame")
		}
	})

	t.Run("absent fields stay nil", func(t *testing.T) {
		f, err := NormalizeFrame([]byte(`{"song_name":"A","progress":"n/a"}`), received)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.Status != nil || f.Progress != nil || f.ErrorMessage != nil {
			t.Errorf("expected nil per-entry fields, got %+v", f)
		}
		if f.OverallTotal != nil || f.OverallCompleted != nil || f.OverallProgress != nil {
			t.Errorf("expected nil aggregate fields, got %+v", f)
		}
	})

	t.Run("huge numbers are bounded", func(t *testing.T) {
		f, err := NormalizeFrame([]byte(`{"overall_total":1e300,"progress":-1e300}`), received)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *f.OverallTotal != maxFrameNumber || *f.Progress != -maxFrameNumber {
			t.Errorf("expected bounded values, got %d and %d", *f.OverallTotal, *f.Progress)
		}
	})

	t.Run("terminal detection", func(t *testing.T) {
		tests := []struct {
			payload  string
			terminal bool
			outcome  models.JobStatus
		}{
			{`{"status":"Complete"}`, true, models.JobCompleted},
			{`{"overall_total":5,"overall_completed":5}`, true, models.JobCompleted},
			{`{"overall_total":5,"overall_completed":7}`, true, models.JobCompleted},
			{`{"overall_total":0,"overall_completed":0}`, false, 0},
			{`{"phase":"Download completed"}`, true, models.JobCompleted},
			{`{"status":"processing complete"}`, true, models.JobCompleted},
			{`{"status":"incomplete"}`, false, 0},
			{`{"status":"cancelled"}`, true, models.JobCancelled},
			{`{"status":"Canceled"}`, true, models.JobCancelled},
			{`{"overall_total":5,"overall_completed":4}`, false, 0},
		}

		for _, tt := range tests {
			t.Run(tt.payload, func(t *testing.T) {
				f, err := NormalizeFrame([]byte(tt.payload), received)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if f.IsTerminal != tt.terminal {
					t.Fatalf("expected terminal=%v, got %v", tt.terminal, f.IsTerminal)
				}
				if tt.terminal && f.Terminal != tt.outcome {
					t.Errorf("expected %s, got %s", tt.outcome, f.Terminal)
				}
			})
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, payload := range []string{``, `not json`, `[1,2]`, `null`, `"text"`, `{"a":`} {
			_, err := NormalizeFrame([]byte(payload), received)
			if !errors.Is(err, shared.ErrMalformedFrame) {
				t.Errorf("%q: expected ErrMalformedFrame, got %v", payload, err)
			}
		}
	})
}

func TestFrameFromSnapshot(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
		outcome  models.JobStatus
	}{
		{"pending", false, 0},
		{"running", false, 0},
		{"completed", true, models.JobCompleted},
		{"failed", true, models.JobFailed},
		{"cancelled", true, models.JobCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f := FrameFromSnapshot(models.JobSnapshot{JobID: "j1", Status: tt.status, Error: "e"}, received)
			if f.Source != models.SourcePoll || f.JobID != "j1" || f.JobError != "e" {
				t.Errorf("unexpected frame %+v", f)
			}
			if f.IsTerminal != tt.terminal || (tt.terminal && f.Terminal != tt.outcome) {
				t.Errorf("expected terminal=%v %s, got %v %s", tt.terminal, tt.outcome, f.IsTerminal, f.Terminal)
			}
			if f.Key != "" {
				t.Error("expected poll frame without entry identity")
			}
		})
	}
}

func TestEntryComplete(t *testing.T) {
	tests := []struct {
		progress int
		status   string
		want     bool
	}{
		{100, "", true},
		{120, "downloading", true},
		{99, "", false},
		{10, "Completed", true},
		{10, "done", true},
		{10, "incomplete", false},
		{10, "error", false},
	}

	for _, tt := range tests {
		if got := EntryComplete(tt.progress, tt.status); got != tt.want {
			t.Errorf("EntryComplete(%d, %q) = %v, want %v", tt.progress, tt.status, got, tt.want)
		}
	}
}
