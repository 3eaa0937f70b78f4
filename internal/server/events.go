package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/shared"
	"github.com/desertthunder/dlpanel/internal/tasks"
)

const defaultKeepAlive = 15 * time.Second

// SnapshotFeed publishes reconciled progress.
type SnapshotFeed interface {
	Snapshot() tasks.Snapshot
	Subscribe() (string, <-chan tasks.Snapshot)
	Unsubscribe(id string)
}

// PanelFeed publishes panel visibility. [panel.Machine] implements it.
type PanelFeed interface {
	State() models.PanelState
	Subscribe() (string, <-chan models.PanelState)
	Unsubscribe(id string)
}

// EventsHandler streams `snapshot` and `panel` server-sent events so other screens can
// mirror the progress panel without polling.
//
// The current state of both is sent on connect; afterwards only changes are written.
type EventsHandler struct {
	snapshots SnapshotFeed
	panels    PanelFeed
	keepAlive time.Duration
	logger    *log.Logger
}

// NewEventsHandler creates the /api/events handler.
func NewEventsHandler(snapshots SnapshotFeed, panels PanelFeed, logger *log.Logger) *EventsHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &EventsHandler{
		snapshots: snapshots,
		panels:    panels,
		keepAlive: defaultKeepAlive,
		logger:    shared.WithLogger(logger, "component", "events"),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *EventsHandler) Routes() []string {
	return []string{"/api/events"}
}

// ServeHTTP holds the connection open until the client leaves or a feed closes.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	snapID, snapshots := h.snapshots.Subscribe()
	defer h.snapshots.Unsubscribe(snapID)
	panelID, panels := h.panels.Subscribe()
	defer h.panels.Unsubscribe(panelID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.send(w, "snapshot", h.snapshots.Snapshot()); err != nil {
		return
	}
	if err := h.send(w, "panel", h.panels.State()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-snapshots:
			if !open {
				return
			}
			err = h.send(w, "snapshot", snap)
		case state, open := <-panels:
			if !open {
				return
			}
			err = h.send(w, "panel", state)
		case <-ticker.C:
			_, err = fmt.Fprint(w, ": ping\n\n")
		}
		if err != nil {
			h.logger.Debug("event stream closed", "err", err)
			return
		}
		flusher.Flush()
	}
}

func (h *EventsHandler) send(w http.ResponseWriter, event string, v any) error {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// NewStatusRouter assembles the status server: middleware, the JSON API and the event stream.
func NewStatusRouter(ctrl Controller, panels PanelFeed, logger *log.Logger) *BasicRouter {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	router := NewBasicRouter()
	router.Use(RequestID(), Logging(logger), Recover(logger))

	NewAPI(ctrl, logger).Register(router)
	router.Handler(NewEventsHandler(ctrl, panels, logger))
	return router
}
