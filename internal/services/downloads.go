// Download service [JobClient] implementation
//
// Wraps the lifecycle endpoints of the external download service:
// POST /download, POST /download/cancel and GET /download/jobs/{job_id}.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/shared"
)

type startRequest struct {
	SpotifyLink string `json:"spotify_link"`
	Async       bool   `json:"async"`
}

type startResponse struct {
	JobID string `json:"job_id"`
}

type cancelRequest struct {
	JobID string `json:"job_id,omitempty"`
	Link  string `json:"link,omitempty"`
}

type jobStatusResponse struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// DownloadService implements [JobClient] on top of [APIService].
type DownloadService struct {
	api *APIService
	now func() time.Time
}

// NewDownloadService creates a lifecycle client using api for transport.
func NewDownloadService(api *APIService) *DownloadService {
	if api == nil {
		api = NewAPIService("", nil)
	}
	return &DownloadService{api: api, now: time.Now}
}

// Start submits link for asynchronous download.
//
// Calls POST /download with {spotify_link, async: true} and expects {job_id}.
func (d *DownloadService) Start(ctx context.Context, link string) (models.Job, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return models.Job{}, fmt.Errorf("%w: %w: link is empty", shared.ErrSubmission, shared.ErrInvalidInput)
	}

	resp, err := d.api.PostJSON(ctx, "/download", startRequest{SpotifyLink: link, Async: true})
	if err != nil {
		return models.Job{}, fmt.Errorf("%w: %v", shared.ErrSubmission, err)
	}
	if !resp.OK() {
		return models.Job{}, fmt.Errorf("%w: status %d: %s", shared.ErrSubmission, resp.StatusCode, resp.Detail())
	}

	var body startResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return models.Job{}, fmt.Errorf("%w: failed to decode response: %v", shared.ErrSubmission, err)
	}
	if body.JobID == "" {
		return models.Job{}, fmt.Errorf("%w: response carried no job_id", shared.ErrSubmission)
	}

	return models.Job{
		ID:         body.JobID,
		SourceLink: link,
		Status:     models.JobPending,
		CreatedAt:  d.now(),
	}, nil
}

// Cancel requests cancellation by job id (preferred) or by link.
//
// Calls POST /download/cancel. 404, 409 and 410 mean the job is already gone or finished
// and are treated as success.
func (d *DownloadService) Cancel(ctx context.Context, target models.CancelTarget) error {
	if target.Empty() {
		return fmt.Errorf("%w: job id or link is required", shared.ErrInvalidInput)
	}

	body := cancelRequest{JobID: strings.TrimSpace(target.JobID)}
	if body.JobID == "" {
		body.Link = strings.TrimSpace(target.Link)
	}

	resp, err := d.api.PostJSON(ctx, "/download/cancel", body)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCancel, err)
	}

	switch {
	case resp.OK():
		return nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusGone:
		return nil
	default:
		return fmt.Errorf("%w: status %d: %s", shared.ErrCancel, resp.StatusCode, resp.Detail())
	}
}

// PollStatus fetches one job's status.
//
// Calls GET /download/jobs/{job_id}.
func (d *DownloadService) PollStatus(ctx context.Context, jobID string) (models.JobSnapshot, error) {
	if jobID == "" {
		return models.JobSnapshot{}, fmt.Errorf("%w: %w: job id is empty", shared.ErrTransientPoll, shared.ErrInvalidInput)
	}

	resp, err := d.api.Get(ctx, "/download/jobs/"+url.PathEscape(jobID))
	if err != nil {
		return models.JobSnapshot{}, fmt.Errorf("%w: %v", shared.ErrTransientPoll, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return models.JobSnapshot{}, fmt.Errorf("%w: %w: %s", shared.ErrTransientPoll, shared.ErrJobNotFound, jobID)
	}
	if !resp.OK() {
		return models.JobSnapshot{}, fmt.Errorf("%w: status %d: %s", shared.ErrTransientPoll, resp.StatusCode, resp.Detail())
	}

	var body jobStatusResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return models.JobSnapshot{}, fmt.Errorf("%w: failed to decode response: %v", shared.ErrTransientPoll, err)
	}

	return models.JobSnapshot{
		JobID:  jobID,
		Status: body.Status,
		Result: body.Result,
		Error:  body.Error,
	}, nil
}
