// package formatter renders download progress snapshots as plain text, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/shared"
	"github.com/desertthunder/dlpanel/internal/tasks"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format value. Empty selects [FormatText].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want text, csv or json)", shared.ErrInvalidArgument, s)
	}
}

// Status is the document rendered by `download status`: one poll result plus the reconciled view.
type Status struct {
	Job      models.JobSnapshot `json:"job"`
	Snapshot tasks.Snapshot     `json:"snapshot"`
}

// Render encodes st in format.
func Render(st Status, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return EntriesToCSV(st.Snapshot.Entries)
	case FormatJSON:
		return shared.MarshalJSON(st, true)
	case FormatText, "":
		return StatusToText(st), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// EntriesToCSV converts queue entries to CSV with columns: Key, Name, Status, Progress, Severity, Error, Updated
func EntriesToCSV(entries []models.QueueEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Key", "Name", "Status", "Progress", "Severity", "Error", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range entries {
		errMsg := ""
		if e.ErrorMessage != nil {
			errMsg = *e.ErrorMessage
		}
		record := []string{
			e.Key,
			e.DisplayName,
			e.StatusText(),
			strconv.Itoa(e.Progress),
			e.Severity,
			errMsg,
			e.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// StatusToText renders a job status and its snapshot for the terminal.
func StatusToText(st Status) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Job: %s\n", st.Job.JobID))
	buf.WriteString(fmt.Sprintf("Status: %s\n", st.Job.Status))
	if st.Job.Error != "" {
		buf.WriteString(fmt.Sprintf("Error: %s\n", st.Job.Error))
	}
	if len(st.Job.Result) > 0 {
		buf.WriteString(fmt.Sprintf("Result: %s\n", bytes.TrimSpace(st.Job.Result)))
	}
	buf.WriteString("\n")
	buf.Write(SnapshotToText(st.Snapshot))

	return buf.Bytes()
}

// SnapshotToText renders the overall line followed by tables of tracked jobs and active entries.
func SnapshotToText(s tasks.Snapshot) []byte {
	var buf bytes.Buffer

	buf.WriteString(OverallLine(s.Overall) + "\n")
	if !s.StreamAvailable {
		buf.WriteString("Live updates: unavailable (polling)\n")
	}

	if len(s.Jobs) > 0 {
		rows := make([][]string, 0, len(s.Jobs))
		for _, j := range s.Jobs {
			note := ""
			if j.CancelRequested && !j.Status.Terminal() {
				note = "(cancelling)"
			}
			if j.Error != "" {
				note = strings.TrimSpace(note + " error: " + j.Error)
			}
			rows = append(rows, []string{j.ID, j.Status.String(), j.SourceLink, note})
		}
		buf.WriteString(fmt.Sprintf("\nJobs: %d\n", len(s.Jobs)))
		buf.WriteString(renderTable([]string{"Job", "Status", "Link", "Note"}, rows, nil) + "\n")
	}

	if len(s.Entries) > 0 {
		rows := make([][]string, 0, len(s.Entries))
		for i, e := range s.Entries {
			name := e.DisplayName
			if name == "" {
				name = e.Key
			}
			errMsg := ""
			if e.ErrorMessage != nil {
				errMsg = *e.ErrorMessage
			}
			rows = append(rows, []string{strconv.Itoa(i + 1), name, e.StatusText(), fmt.Sprintf("%d%%", e.Progress), errMsg})
		}
		buf.WriteString(fmt.Sprintf("\nActive: %d\n", len(s.Entries)))
		buf.WriteString(renderTable(
			[]string{"#", "Name", "Status", "Progress", "Error"},
			rows,
			[]text.Align{text.AlignRight, text.AlignLeft, text.AlignLeft, text.AlignRight},
		) + "\n")
	}

	return buf.Bytes()
}

// renderTable draws rows under headers with go-pretty. aligns may be shorter than headers.
func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(aligns))
	for i, align := range aligns {
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// OverallLine summarizes aggregate progress, e.g. "Downloading 3/10 (30%)".
func OverallLine(o models.OverallProgress) string {
	label := o.StatusLabel
	if label == "" {
		label = "Idle"
	}
	if o.Total == 0 {
		return fmt.Sprintf("%s (%d%%)", label, o.ProgressPercent)
	}
	return fmt.Sprintf("%s %d/%d (%d%%)", label, o.Completed, o.Total, o.ProgressPercent)
}

// EntryLine renders one queue row, e.g. "Song A [downloading] 45%".
func EntryLine(e models.QueueEntry) string {
	name := e.DisplayName
	if name == "" {
		name = e.Key
	}

	line := name
	if status := e.StatusText(); status != "" {
		line += fmt.Sprintf(" [%s]", status)
	}
	line += fmt.Sprintf(" %d%%", e.Progress)
	if e.ErrorMessage != nil {
		line += " ! " + *e.ErrorMessage
	}
	return line
}

// WriteExport writes rendered output to path. An empty path is a no-op.
func WriteExport(data []byte, path string) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
