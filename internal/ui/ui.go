package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dlpanel/internal/formatter"
	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/panel"
	"github.com/desertthunder/dlpanel/internal/tasks"
)

const maxBarWidth = 60

// Controller is the download service behind the panel. [tasks.Tracker] implements it.
type Controller interface {
	StartAll(ctx context.Context, links []string, progress chan<- tasks.ProgressUpdate) ([]models.Job, error)
	Cancel(ctx context.Context, target models.CancelTarget) error
	Resubscribe()
	Dispatch(a panel.Action) models.PanelState
	PanelState() models.PanelState
	Snapshot() tasks.Snapshot
	Subscribe() (string, <-chan tasks.Snapshot)
	Unsubscribe(id string)
}

// Model represents the progress panel state.
type Model struct {
	ctx     context.Context
	ctrl    Controller
	links   []string
	subID   string
	updates <-chan tasks.Snapshot

	snapshot tasks.Snapshot
	panel    models.PanelState
	entries  list.Model
	bar      progress.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	progressChan chan tasks.ProgressUpdate
	submitDone   chan submitResult
	submission   tasks.ProgressUpdate
	submitted    []models.Job

	notice string
	err    error
	width  int
	height int
}

// NewModel creates the panel over ctrl. When links are given they are submitted on start.
//
// The model subscribes immediately; call [Model.Close] once the program exits.
func NewModel(ctx context.Context, ctrl Controller, links []string) *Model {
	subID, updates := ctrl.Subscribe()

	entries := list.New(nil, list.NewDefaultDelegate(), maxBarWidth, 10)
	entries.Title = "Active"
	entries.SetShowStatusBar(false)
	entries.SetFilteringEnabled(false)
	entries.SetShowHelp(false)
	entries.Styles.Title = styles.title

	return &Model{
		ctx:      ctx,
		ctrl:     ctrl,
		links:    links,
		subID:    subID,
		updates:  updates,
		snapshot: ctrl.Snapshot(),
		panel:    ctrl.PanelState(),
		entries:  entries,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.ok)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Close releases the snapshot subscription.
func (m *Model) Close() {
	m.ctrl.Unsubscribe(m.subID)
}

// Init starts the spinner, the snapshot feed and any pending submissions.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.waitForSnapshot()}
	if len(m.links) > 0 {
		cmds = append(cmds, m.startSubmission())
	}
	return tea.Batch(cmds...)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(msg.Width-8, 10), maxBarWidth)
		m.entries.SetSize(msg.Width-4, max(msg.Height-14, 4))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSnapshot:
		m.snapshot = msg.data.(tasks.Snapshot)
		m.panel = m.ctrl.PanelState()
		cmd := m.entries.SetItems(entryItems(m.snapshot.Entries))
		return m, tea.Batch(cmd, m.waitForSnapshot())

	case MsgFeedClosed:
		return m, tea.Quit

	case MsgProgressUpdate:
		m.submission = msg.data.(tasks.ProgressUpdate)
		m.notice = m.submission.Message
		return m, m.waitForProgress()

	case MsgSubmitComplete:
		result := msg.data.(submitResult)
		m.submitted = result.jobs
		m.progressChan = nil
		m.err = result.err
		if result.err == nil {
			m.notice = fmt.Sprintf("Submitted %d download(s)", len(result.jobs))
		}
		return m, nil

	case MsgCancelComplete:
		data := msg.data.(struct {
			target models.CancelTarget
			err    error
		})
		m.err = data.err
		if data.err == nil {
			m.notice = fmt.Sprintf("Cancellation requested for %s", data.target.JobID)
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.hide):
		m.panel = m.ctrl.Dispatch(panel.Hide{})
		return m, nil
	case key.Matches(msg, m.keys.show):
		m.panel = m.ctrl.Dispatch(panel.Show{})
		return m, nil
	case key.Matches(msg, m.keys.peek):
		if m.panel.IsPeeking {
			m.panel = m.ctrl.Dispatch(panel.EndPeek{})
		} else {
			m.panel = m.ctrl.Dispatch(panel.BeginPeek{})
		}
		return m, nil
	case key.Matches(msg, m.keys.cancel):
		job, ok := m.cancelTarget()
		if !ok {
			m.notice = "Nothing to cancel"
			return m, nil
		}
		m.notice = fmt.Sprintf("Cancelling %s...", job.ID)
		return m, m.cancelJob(models.CancelTarget{JobID: job.ID})
	case key.Matches(msg, m.keys.resubscribe):
		m.ctrl.Resubscribe()
		m.notice = "Reconnecting to live updates..."
		return m, nil
	}

	var cmd tea.Cmd
	m.entries, cmd = m.entries.Update(msg)
	return m, cmd
}

// cancelTarget picks the newest job that has not finished and is not already being cancelled.
func (m *Model) cancelTarget() (models.Job, bool) {
	jobs := m.snapshot.Jobs
	for i := len(jobs) - 1; i >= 0; i-- {
		if !jobs[i].Status.Terminal() && !jobs[i].CancelRequested {
			return jobs[i], true
		}
	}
	return models.Job{}, false
}

func (m *Model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updates
		if !ok {
			return feedClosedMsg()
		}
		return snapshotMsg(snap)
	}
}

func (m *Model) startSubmission() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.submitDone = make(chan submitResult, 1)

	progressChan, done, links := m.progressChan, m.submitDone, m.links
	go func() {
		jobs, err := m.ctrl.StartAll(m.ctx, links, progressChan)
		done <- submitResult{jobs: jobs, err: err}
		close(progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, done := m.progressChan, m.submitDone
	return func() tea.Msg {
		if progressChan == nil {
			return nil
		}

		update, ok := <-progressChan
		if !ok {
			result := <-done
			return submitCompleteMsg(result.jobs, result.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) cancelJob(target models.CancelTarget) tea.Cmd {
	return func() tea.Msg {
		return cancelCompleteMsg(target, m.ctrl.Cancel(m.ctx, target))
	}
}

// View renders the panel, or a single summary line while it is hidden.
func (m *Model) View() string {
	if !m.panel.Visible && !m.panel.IsPeeking {
		return m.renderCollapsed()
	}
	return m.renderPanel()
}

func (m *Model) renderCollapsed() string {
	line := styles.help.Render("Downloads hidden")
	if m.snapshot.HasActiveDownload {
		line = fmt.Sprintf("%s %s  %s", m.spinner.View(), formatter.OverallLine(m.snapshot.Overall), line)
	}
	return fmt.Sprintf("%s\n\n%s", line, m.help.ShortHelpView(m.keys.hiddenHelp()))
}

func (m *Model) renderPanel() string {
	var b strings.Builder

	title := "Downloads"
	if m.panel.IsPeeking && !m.panel.Visible {
		title += " (peek)"
	}
	b.WriteString(styles.title.Render(title) + "\n")

	overall := m.snapshot.Overall
	line := styles.overall(overall.StatusLabel).Render(formatter.OverallLine(overall))
	if m.snapshot.HasActiveDownload {
		line = m.spinner.View() + " " + line
	}
	b.WriteString(line + "\n")
	b.WriteString(m.bar.ViewAs(float64(overall.ProgressPercent)/100) + "\n")

	if !m.snapshot.StreamAvailable && (m.snapshot.HasActiveDownload || m.snapshot.Live()) {
		b.WriteString(styles.warn.Render("Live updates unavailable, polling for status. Press r to reconnect.") + "\n")
	}

	for _, j := range m.snapshot.Jobs {
		text := fmt.Sprintf("%s  %s", j.ID, j.Status)
		if j.CancelRequested && !j.Status.Terminal() {
			text += " (cancelling)"
		}
		if j.Error != "" {
			text += ": " + j.Error
		}
		b.WriteString(styles.job(j).Render(text) + "\n")
	}

	if len(m.snapshot.Entries) > 0 {
		b.WriteString("\n" + m.entries.View() + "\n")
	}

	if m.err != nil {
		b.WriteString("\n" + styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	} else if m.notice != "" {
		b.WriteString("\n" + styles.help.Render(m.notice) + "\n")
	}

	return fmt.Sprintf("%s\n%s", styles.panel.Render(strings.TrimRight(b.String(), "\n")), m.help.ShortHelpView(m.keys.ShortHelp()))
}
