package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dlpanel/internal/models"
	"github.com/desertthunder/dlpanel/internal/services"
	"github.com/desertthunder/dlpanel/internal/shared"
	"github.com/desertthunder/dlpanel/internal/tasks"
	tu "github.com/desertthunder/dlpanel/internal/testing"
)

func newTestTracker(t *testing.T, fake *tu.FakeService) *tasks.Tracker {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	api := services.NewAPIService(fake.URL(), &http.Client{Timeout: 5 * time.Second})
	stream := services.NewProgressStream(fake.URL(), &http.Client{}, logger)

	tr := tasks.NewTracker(services.NewDownloadService(api), stream, tasks.TrackerOptions{
		PollInterval: 10 * time.Millisecond,
		Logger:       logger,
	})
	t.Cleanup(func() { tr.Close() })
	return tr
}

func newTestServer(t *testing.T, tr *tasks.Tracker) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewStatusRouter(tr, tr.Panel(), shared.NewLogger(io.Discard)))
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestAPI(t *testing.T) {
	t.Run("Panel", func(t *testing.T) {
		fake := tu.NewFakeService(t)
		server := newTestServer(t, newTestTracker(t, fake))

		resp, body := do(t, http.MethodGet, server.URL+"/api/panel", "")
		if resp.StatusCode != http.StatusOK || body["visible"] != false {
			t.Fatalf("expected hidden panel, got %d %v", resp.StatusCode, body)
		}

		resp, body = do(t, http.MethodPost, server.URL+"/api/panel", `{"action":"Show"}`)
		if resp.StatusCode != http.StatusOK || body["visible"] != true {
			t.Errorf("expected visible panel, got %d %v", resp.StatusCode, body)
		}

		resp, body = do(t, http.MethodPost, server.URL+"/api/panel", `{"action":"peek"}`)
		if body["is_peeking"] != true {
			t.Errorf("expected peeking, got %v", body)
		}

		resp, body = do(t, http.MethodPost, server.URL+"/api/panel", `{"action":"hide"}`)
		if body["visible"] != false || body["manual_hide"] != true || body["is_peeking"] != false {
			t.Errorf("expected manual hide, got %v", body)
		}

		resp, body = do(t, http.MethodPost, server.URL+"/api/panel", `{"action":"explode"}`)
		if resp.StatusCode != http.StatusBadRequest || !strings.Contains(body["detail"].(string), "explode") {
			t.Errorf("expected 400 for unknown action, got %d %v", resp.StatusCode, body)
		}

		resp, _ = do(t, http.MethodPost, server.URL+"/api/panel", `{`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for bad body, got %d", resp.StatusCode)
		}
	})

	t.Run("Start Download", func(t *testing.T) {
		fake := tu.NewFakeService(t)
		fake.ScriptStatus("job-1", "running")
		fake.ScriptStream("job-1", `{"overall_total":3,"overall_completed":1}`)
		tr := newTestTracker(t, fake)
		server := newTestServer(t, tr)

		resp, body := do(t, http.MethodPost, server.URL+"/api/downloads", `{"link":"https://open.spotify.com/track/1"}`)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d %v", resp.StatusCode, body)
		}
		if body["id"] != "job-1" || body["status"] != "pending" {
			t.Errorf("unexpected job %v", body)
		}
		if resp.Header.Get(RequestIDHeader) == "" {
			t.Error("expected request id header")
		}

		waitFor(t, "first total", func() bool { return tr.Snapshot().HasActiveDownload })
		resp, body = do(t, http.MethodGet, server.URL+"/api/progress", "")
		if resp.StatusCode != http.StatusOK || body["has_active_download"] != true {
			t.Errorf("expected active snapshot, got %v", body)
		}
		if !tr.PanelState().Visible {
			t.Error("expected panel to open for the new job")
		}
	})

	t.Run("Start Errors", func(t *testing.T) {
		fake := tu.NewFakeService(t)
		server := newTestServer(t, newTestTracker(t, fake))

		resp, _ := do(t, http.MethodPost, server.URL+"/api/downloads", `{"link":"  "}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for empty link, got %d", resp.StatusCode)
		}

		fake.FailStart(http.StatusInternalServerError)
		resp, body := do(t, http.MethodPost, server.URL+"/api/downloads", `{"link":"x"}`)
		if resp.StatusCode != http.StatusBadGateway || body["detail"] == nil {
			t.Errorf("expected 502 with detail, got %d %v", resp.StatusCode, body)
		}
	})

	t.Run("Cancel", func(t *testing.T) {
		fake := tu.NewFakeService(t)
		server := newTestServer(t, newTestTracker(t, fake))

		resp, body := do(t, http.MethodPost, server.URL+"/api/downloads/cancel", `{"link":"https://x"}`)
		if resp.StatusCode != http.StatusAccepted || body["status"] != "cancel_requested" {
			t.Errorf("expected 202, got %d %v", resp.StatusCode, body)
		}
		if cancels := fake.Cancels(); len(cancels) != 1 || cancels[0]["link"] != "https://x" {
			t.Errorf("expected cancel by link, got %v", cancels)
		}

		resp, _ = do(t, http.MethodPost, server.URL+"/api/downloads/cancel", `{}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for empty target, got %d", resp.StatusCode)
		}

		fake.FailCancel(http.StatusInternalServerError)
		resp, _ = do(t, http.MethodPost, server.URL+"/api/downloads/cancel", `{"job_id":"job-9"}`)
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", resp.StatusCode)
		}
	})

	t.Run("Acknowledge", func(t *testing.T) {
		fake := tu.NewFakeService(t)
		fake.ScriptStatus("job-1", "failed")
		tr := newTestTracker(t, fake)
		server := newTestServer(t, tr)

		resp, _ := do(t, http.MethodPost, server.URL+"/api/downloads", `{"link":"x"}`)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", resp.StatusCode)
		}
		waitFor(t, "job to fail", func() bool {
			return len(tr.Snapshot().Jobs) == 1 && tr.Snapshot().Jobs[0].Status == models.JobFailed
		})

		_, body := do(t, http.MethodPost, server.URL+"/api/downloads/ack", `{"job_id":"job-1"}`)
		if body["acknowledged"] != true {
			t.Errorf("expected acknowledged, got %v", body)
		}
		if len(tr.Snapshot().Jobs) != 0 {
			t.Error("expected job dropped after acknowledge")
		}

		resp, _ = do(t, http.MethodPost, server.URL+"/api/downloads/ack", `{"job_id":""}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Resubscribe", func(t *testing.T) {
		fake := tu.NewFakeService(t)
		server := newTestServer(t, newTestTracker(t, fake))

		resp, body := do(t, http.MethodPost, server.URL+"/api/stream/resubscribe", "")
		if resp.StatusCode != http.StatusAccepted || body["status"] != "resubscribing" {
			t.Errorf("expected 202, got %d %v", resp.StatusCode, body)
		}
	})

	t.Run("Method Not Allowed", func(t *testing.T) {
		fake := tu.NewFakeService(t)
		server := newTestServer(t, newTestTracker(t, fake))

		resp, _ := do(t, http.MethodDelete, server.URL+"/api/progress", "")
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", resp.StatusCode)
		}
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
