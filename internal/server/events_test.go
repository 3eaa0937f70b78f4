package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/dlpanel/internal/panel"
	"github.com/desertthunder/dlpanel/internal/shared"
	"github.com/desertthunder/dlpanel/internal/tasks"
	tu "github.com/desertthunder/dlpanel/internal/testing"
)

type sseEvent struct {
	name string
	data map[string]any
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.data); err != nil {
				t.Fatalf("invalid event data %q: %v", line, err)
			}
		}
	}
}

func TestEventsHandler(t *testing.T) {
	t.Run("Streams Snapshot And Panel", func(t *testing.T) {
		fake := tu.NewFakeService(t)
		tr := newTestTracker(t, fake)
		server := newTestServer(t, tr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/events", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
			t.Fatalf("expected event stream, got %q", ct)
		}

		reader := bufio.NewReader(resp.Body)
		if ev := readEvent(t, reader); ev.name != "snapshot" || ev.data["has_active_download"] != false {
			t.Errorf("expected initial snapshot, got %+v", ev)
		}
		if ev := readEvent(t, reader); ev.name != "panel" || ev.data["visible"] != false {
			t.Errorf("expected initial panel state, got %+v", ev)
		}

		tr.Dispatch(panel.Show{})
		if ev := readEvent(t, reader); ev.name != "panel" || ev.data["visible"] != true {
			t.Errorf("expected panel update, got %+v", ev)
		}
	})

	t.Run("Keep Alive", func(t *testing.T) {
		fake := tu.NewFakeService(t)
		tr := newTestTracker(t, fake)

		h := NewEventsHandler(tr, tr.Panel(), shared.NewLogger(io.Discard))
		h.keepAlive = 10 * time.Millisecond
		server := httptest.NewServer(h)
		t.Cleanup(server.Close)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		readEvent(t, reader)
		readEvent(t, reader)

		line, err := reader.ReadString('\n')
		if err != nil || line != ": ping\n" {
			t.Errorf("expected keep-alive comment, got %q (%v)", line, err)
		}
	})

	t.Run("Rejects Non-GET", func(t *testing.T) {
		fake := tu.NewFakeService(t)
		tr := newTestTracker(t, fake)

		rec := httptest.NewRecorder()
		NewEventsHandler(tr, tr.Panel(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("Ends When Feed Closes", func(t *testing.T) {
		feed := &stubFeed{ch: make(chan tasks.Snapshot), subscribed: make(chan struct{})}
		machine := panel.NewMachine(shared.NewLogger(io.Discard))

		done := make(chan struct{})
		go func() {
			defer close(done)
			NewEventsHandler(feed, machine, shared.NewLogger(io.Discard)).
				ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/events", nil))
		}()

		<-feed.subscribed
		close(feed.ch)

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not return after feed closed")
		}
	})
}

type stubFeed struct {
	ch         chan tasks.Snapshot
	subscribed chan struct{}
}

func (f *stubFeed) Snapshot() tasks.Snapshot { return tasks.Snapshot{} }

func (f *stubFeed) Subscribe() (string, <-chan tasks.Snapshot) {
	close(f.subscribed)
	return "stub", f.ch
}

func (f *stubFeed) Unsubscribe(string) {}
