package formatter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/shared"
	"github.com/desertthunder/dlpanel/internal/tasks"
	th "github.com/desertthunder/dlpanel/internal/testing"
)

func strp(s string) *string { return &s }

func sampleStatus() Status {
	updated := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	return Status{
		Job: models.JobSnapshot{JobID: "job-7", Status: "running"},
		Snapshot: tasks.Snapshot{
			Overall: models.OverallProgress{Total: 10, Completed: 3, ProgressPercent: 30, StatusLabel: "Downloading"},
			Entries: []models.QueueEntry{
				{Key: "s1", DisplayName: "Song One", Status: strp("downloading"), Progress: 45, UpdatedAt: updated},
				{Key: "s2", DisplayName: "Song, Two", Progress: 0, UpdatedAt: updated, ErrorMessage: strp("not found"), Severity: models.SeverityError},
			},
			Jobs: []models.Job{
				{ID: "job-7", SourceLink: "https://open.spotify.com/album/x", Status: models.JobRunning, CancelRequested: true},
			},
			HasActiveDownload: true,
			StreamAvailable:   true,
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{" CSV ", FormatCSV, false},
		{"json", FormatJSON, false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestRender(t *testing.T) {
	st := sampleStatus()

	t.Run("Text", func(t *testing.T) {
		data, err := Render(st, FormatText)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"Job: job-7",
			"Status: running",
			"Downloading 3/10 (30%)",
			"(cancelling)",
			"Song One",
			"downloading",
			"45%",
			"Song, Two",
			"not found",
			"Active: 2",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("text output missing %q:\n%s", want, output)
			}
		}
		if strings.Contains(output, "Live updates: unavailable") {
			t.Error("expected no stream warning while stream is up")
		}
	})

	t.Run("CSV", func(t *testing.T) {
		data, err := Render(st, FormatCSV)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header and 2 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "Key,Name,Status,Progress,Severity,Error,Updated" {
			t.Errorf("unexpected headers %v", records[0])
		}
		if records[2][1] != "Song, Two" || records[2][4] != "error" || records[2][5] != "not found" {
			t.Errorf("unexpected row %v", records[2])
		}
		if records[1][6] != "2026-04-01T08:30:00Z" {
			t.Errorf("expected RFC3339 timestamp, got %s", records[1][6])
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := Render(st, FormatJSON)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}

		var decoded struct {
			Job      map[string]any `json:"job"`
			Snapshot struct {
				Overall map[string]any   `json:"overall"`
				Jobs    []map[string]any `json:"jobs"`
			} `json:"snapshot"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Snapshot.Overall["progress_percent"] != float64(30) {
			t.Errorf("unexpected overall %v", decoded.Snapshot.Overall)
		}
		if decoded.Snapshot.Jobs[0]["status"] != "running" {
			t.Errorf("expected job status as text, got %v", decoded.Snapshot.Jobs[0]["status"])
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if _, err := Render(st, Format("xml")); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSnapshotToText(t *testing.T) {
	t.Run("Idle", func(t *testing.T) {
		output := string(SnapshotToText(tasks.Snapshot{}))
		if !strings.HasPrefix(output, "Idle (0%)\n") {
			t.Errorf("unexpected idle output %q", output)
		}
		if !strings.Contains(output, "Live updates: unavailable (polling)") {
			t.Error("expected stream warning")
		}
	})

	t.Run("Failed Job Error", func(t *testing.T) {
		output := string(SnapshotToText(tasks.Snapshot{
			Jobs: []models.Job{{ID: "j1", Status: models.JobFailed, Error: "disk full"}},
		}))
		if !strings.Contains(output, "error: disk full") {
			t.Errorf("expected job error, got %q", output)
		}
	})
}

func TestWriteExport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.csv")

	if err := WriteExport([]byte("a,b\n"), path); err != nil {
		t.Fatalf("WriteExport failed: %v", err)
	}
	th.AssertFileExists(t, path)
	if got := th.MustReadFile(t, path); got != "a,b\n" {
		t.Errorf("unexpected file content %q", got)
	}

	if err := WriteExport([]byte("x"), ""); err != nil {
		t.Errorf("expected empty path to be a no-op, got %v", err)
	}
	if err := WriteExport([]byte("x"), filepath.Join(dir, "missing", "f.txt")); err == nil {
		t.Error("expected error for missing directory")
	}
}
