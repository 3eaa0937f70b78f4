package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/shared"
)

// Identity candidates in priority order.
var identityFields = []string{"song_id", "spotify_url", "song_display_name", "song_name"}

// Numeric fields are bounded before conversion so absurd payload values cannot overflow int.
const maxFrameNumber = 1 << 30

// rawFrame is the as-received payload. Values stay untyped because producers
// disagree on whether numbers arrive as numbers or strings.
type rawFrame map[string]any

// NormalizeFrame decodes one push payload and maps every field-name variant onto [models.Frame].
//
// Returns a wrapped [shared.ErrMalformedFrame] when data is not a JSON object.
func NormalizeFrame(data []byte, receivedAt time.Time) (models.Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw rawFrame
	if err := dec.Decode(&raw); err != nil {
		return models.Frame{}, fmt.Errorf("%w: %v", shared.ErrMalformedFrame, err)
	}
	if raw == nil {
		return models.Frame{}, fmt.Errorf("%w: payload is not an object", shared.ErrMalformedFrame)
	}

	frame := models.Frame{
		Source:     models.SourcePush,
		ReceivedAt: receivedAt,
		JobID:      raw.str("job_id"),
		Key:        raw.firstStr(identityFields...),
		Phase:      raw.str("phase"),
	}

	frame.DisplayName = raw.firstStr("song_display_name", "song_name")
	if frame.DisplayName == "" {
		frame.DisplayName = frame.Key
	}

	if status := raw.firstStr("song_status", "status"); status != "" {
		frame.Status = &status
	}
	frame.AggregateStatus = raw.str("status")

	if p, ok := raw.firstInt("song_progress", "progress"); ok {
		frame.Progress = &p
	}
	if msg := raw.str("error_message"); msg != "" {
		frame.ErrorMessage = &msg
	}

	if v, ok := raw.int("overall_total"); ok {
		frame.OverallTotal = &v
	}
	if v, ok := raw.int("overall_completed"); ok {
		frame.OverallCompleted = &v
	}
	if v, ok := raw.int("overall_progress"); ok {
		frame.OverallProgress = &v
	}

	switch {
	case AggregateComplete(frame):
		frame.IsTerminal = true
		frame.Terminal = models.JobCompleted
	case isCancelledText(frame.AggregateStatus):
		frame.IsTerminal = true
		frame.Terminal = models.JobCancelled
	}

	return frame, nil
}

// FrameFromSnapshot converts a status poll result into a [models.Frame].
func FrameFromSnapshot(snap models.JobSnapshot, receivedAt time.Time) models.Frame {
	frame := models.Frame{
		Source:          models.SourcePoll,
		JobID:           snap.JobID,
		AggregateStatus: snap.Status,
		JobError:        snap.Error,
		ReceivedAt:      receivedAt,
	}

	if status := models.ParseJobStatus(snap.Status); status.Terminal() {
		frame.IsTerminal = true
		frame.Terminal = status
	}
	return frame
}

// AggregateComplete applies the disjunctive completion rule: any one of an explicit
// "Complete" status, overall_completed >= overall_total > 0, or a status/phase text
// mentioning completion marks the session as done.
func AggregateComplete(f models.Frame) bool {
	if f.AggregateStatus == "Complete" {
		return true
	}
	if f.OverallTotal != nil && f.OverallCompleted != nil && *f.OverallTotal > 0 && *f.OverallCompleted >= *f.OverallTotal {
		return true
	}
	return mentionsComplete(f.AggregateStatus) || mentionsComplete(f.Phase)
}

// EntryComplete reports whether a per-entry frame finishes that entry:
// progress of at least 100 or a status mentioning complete/done.
func EntryComplete(progress int, status string) bool {
	if progress >= 100 {
		return true
	}
	s := strings.ToLower(status)
	return mentionsComplete(s) || strings.Contains(s, "done")
}

func mentionsComplete(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "complete") && !strings.Contains(s, "incomplete")
}

func isCancelledText(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "cancelled" || s == "canceled"
}

func (r rawFrame) str(key string) string {
	switch v := r[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func (r rawFrame) firstStr(keys ...string) string {
	for _, k := range keys {
		if s := r.str(k); s != "" {
			return s
		}
	}
	return ""
}

// int reads a numeric field, accepting numbers and numeric strings ("45", "45.5", "45%").
func (r rawFrame) int(key string) (int, bool) {
	var f float64
	switch v := r[key].(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Max(math.Min(f, maxFrameNumber), -maxFrameNumber)
	return int(math.Round(f)), true
}

func (r rawFrame) firstInt(keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := r.int(k); ok {
			return v, true
		}
	}
	return 0, false
}
