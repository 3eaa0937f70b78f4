package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/panel"
	"github.com/desertthunder/dlpanel/internal/shared"
	"github.com/desertthunder/dlpanel/internal/tasks"
)

const maxBodyBytes = 1 << 20

// Controller is the download service the API drives. [tasks.Tracker] implements it.
type Controller interface {
	Start(ctx context.Context, link string) (models.Job, error)
	Cancel(ctx context.Context, target models.CancelTarget) error
	Acknowledge(jobID string) bool
	Resubscribe()
	Dispatch(a panel.Action) models.PanelState
	PanelState() models.PanelState
	Snapshot() tasks.Snapshot
	Subscribe() (string, <-chan tasks.Snapshot)
	Unsubscribe(id string)
}

type panelRequest struct {
	Action string `json:"action"`
}

type startRequest struct {
	Link string `json:"link"`
}

type cancelRequest struct {
	JobID string `json:"job_id"`
	Link  string `json:"link"`
}

type ackRequest struct {
	JobID string `json:"job_id"`
}

// API serves the panel, progress and download endpoints as JSON.
type API struct {
	ctrl   Controller
	logger *log.Logger
}

// NewAPI creates the JSON API over ctrl.
func NewAPI(ctrl Controller, logger *log.Logger) *API {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &API{ctrl: ctrl, logger: shared.WithLogger(logger, "component", "api")}
}

// Register adds every API route to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodGet, "/api/panel", http.HandlerFunc(a.getPanel))
	r.Handle(http.MethodPost, "/api/panel", http.HandlerFunc(a.postPanel))
	r.Handle(http.MethodGet, "/api/progress", http.HandlerFunc(a.getProgress))
	r.Handle(http.MethodPost, "/api/downloads", http.HandlerFunc(a.startDownload))
	r.Handle(http.MethodPost, "/api/downloads/cancel", http.HandlerFunc(a.cancelDownload))
	r.Handle(http.MethodPost, "/api/downloads/ack", http.HandlerFunc(a.acknowledge))
	r.Handle(http.MethodPost, "/api/stream/resubscribe", http.HandlerFunc(a.resubscribe))
}

func (a *API) getPanel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ctrl.PanelState())
}

func (a *API) postPanel(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	action, ok := panel.Parse(strings.ToLower(strings.TrimSpace(req.Action)))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown panel action %q", req.Action))
		return
	}
	writeJSON(w, http.StatusOK, a.ctrl.Dispatch(action))
}

func (a *API) getProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ctrl.Snapshot())
}

func (a *API) startDownload(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := a.ctrl.Start(r.Context(), req.Link)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	a.logger.Info("download submitted", "job", job.ID, "link", job.SourceLink)
	writeJSON(w, http.StatusAccepted, job)
}

func (a *API) cancelDownload(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target := models.CancelTarget{JobID: strings.TrimSpace(req.JobID), Link: strings.TrimSpace(req.Link)}
	if err := a.ctrl.Cancel(r.Context(), target); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

func (a *API) acknowledge(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"acknowledged": a.ctrl.Acknowledge(req.JobID)})
}

func (a *API) resubscribe(w http.ResponseWriter, r *http.Request) {
	a.ctrl.Resubscribe()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "resubscribing"})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrSubmission), errors.Is(err, shared.ErrCancel):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

// writeError responds with {"detail": msg}, the shape the download service uses.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
