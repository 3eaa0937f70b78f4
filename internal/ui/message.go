package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSnapshot MsgKind = iota
	MsgFeedClosed
	MsgProgressUpdate
	MsgSubmitComplete
	MsgCancelComplete
)

type submitResult struct {
	jobs []models.Job
	err  error
}

// snapshotMsg is the constructor for [MsgSnapshot]
func snapshotMsg(s tasks.Snapshot) Msg {
	return Msg{kind: MsgSnapshot, data: s}
}

// feedClosedMsg is the constructor for [MsgFeedClosed]
func feedClosedMsg() Msg {
	return Msg{kind: MsgFeedClosed}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// submitCompleteMsg is the constructor for [MsgSubmitComplete]
func submitCompleteMsg(jobs []models.Job, err error) Msg {
	return Msg{kind: MsgSubmitComplete, data: submitResult{jobs, err}}
}

// cancelCompleteMsg is the constructor for [MsgCancelComplete]
func cancelCompleteMsg(target models.CancelTarget, err error) Msg {
	return Msg{
		kind: MsgCancelComplete,
		data: struct {
			target models.CancelTarget
			err    error
		}{target, err},
	}
}
