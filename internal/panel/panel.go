package panel

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/shared"
)

// Action is the tagged union of panel inputs.
type Action interface {
	action()
	String() string
}

// Show is an explicit user request to open the panel.
type Show struct{}

// Hide is an explicit user dismissal.
type Hide struct{}

// SetActive reports whether any download is in flight.
type SetActive struct{ Active bool }

// BeginPeek starts a transient preview.
type BeginPeek struct{}

// EndPeek ends a transient preview.
type EndPeek struct{}

// NewJob marks the submission of a fresh job.
type NewJob struct{}

func (Show) action()      {}
func (Hide) action()      {}
func (SetActive) action() {}
func (BeginPeek) action() {}
func (EndPeek) action()   {}
func (NewJob) action()    {}

func (Show) String() string      { return "show" }
func (Hide) String() string      { return "hide" }
func (BeginPeek) String() string { return "begin_peek" }
func (EndPeek) String() string   { return "end_peek" }
func (NewJob) String() string    { return "new_job" }
func (a SetActive) String() string {
	if a.Active {
		return "set_active(true)"
	}
	return "set_active(false)"
}

// Reduce returns the state following a. It never mutates its input.
func Reduce(s models.PanelState, a Action) models.PanelState {
	switch a := a.(type) {
	case Show:
		s.Visible = true
		s.ManualHide = false
	case Hide:
		s.Visible = false
		s.ManualHide = true
		s.IsPeeking = false
	case SetActive:
		if !a.Active {
			return models.PanelState{}
		}
		s.HasActiveDownload = true
		if !s.ManualHide {
			s.Visible = true
		}
	case BeginPeek:
		s.IsPeeking = true
	case EndPeek:
		s.IsPeeking = false
	case NewJob:
		s.ManualHide = false
		s.IsPeeking = false
	}
	return s
}

// Parse maps the wire names used by the status server ("show", "hide", "peek", "unpeek")
// to an [Action].
func Parse(name string) (Action, bool) {
	switch name {
	case "show":
		return Show{}, true
	case "hide":
		return Hide{}, true
	case "peek", "begin_peek":
		return BeginPeek{}, true
	case "unpeek", "end_peek":
		return EndPeek{}, true
	default:
		return nil, false
	}
}

// Machine owns the single process-wide [models.PanelState].
type Machine struct {
	mu     sync.Mutex
	state  models.PanelState
	subs   *shared.Broadcaster[models.PanelState]
	logger *log.Logger
}

// NewMachine creates a machine in the initial state: hidden, no active download.
func NewMachine(logger *log.Logger) *Machine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Machine{
		subs:   shared.NewBroadcaster[models.PanelState](),
		logger: shared.WithLogger(logger, "component", "panel"),
	}
}

// Dispatch applies a and notifies subscribers. Returns the new state.
func (m *Machine) Dispatch(a Action) models.PanelState {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	m.state = Reduce(m.state, a)
	if m.state != prev {
		m.logger.Debug("transition", "action", a, "visible", m.state.Visible, "manual_hide", m.state.ManualHide, "peeking", m.state.IsPeeking)
	}
	m.subs.Publish(m.state)
	return m.state
}

// State returns the current state.
func (m *Machine) State() models.PanelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel receiving the state after every dispatch.
// Slow readers observe only the latest state.
func (m *Machine) Subscribe() (string, <-chan models.PanelState) {
	return m.subs.Subscribe()
}

// Unsubscribe releases a subscription.
func (m *Machine) Unsubscribe(id string) {
	m.subs.Unsubscribe(id)
}

// Close releases every subscription.
func (m *Machine) Close() {
	m.subs.Close()
}
