// package testing contains shared testing utilities
package testing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// FakeService is an in-process stand-in for the external download service.
//
// Job statuses are scripted per job id: each poll consumes the next status and the last one
// repeats. Stream events are written once per connection, after which the connection is held
// open until the client goes away unless [FakeService.CloseStreamAfterEvents] was called.
type FakeService struct {
	Server *httptest.Server

	done        chan struct{}
	mu          sync.Mutex
	nextID      int
	statuses    map[string][]string
	events      map[string][]string
	startCode   int
	cancelCode  int
	streamCode  int
	closeStream bool
	polls       map[string]int
	cancels     []map[string]string
	starts      []map[string]any
	streamHits  []string
}

// NewFakeService starts a fake service. It is shut down when the test ends.
func NewFakeService(t *testing.T) *FakeService {
	t.Helper()

	f := &FakeService{
		done:       make(chan struct{}),
		statuses:   make(map[string][]string),
		events:     make(map[string][]string),
		polls:      make(map[string]int),
		startCode:  http.StatusOK,
		cancelCode: http.StatusOK,
		streamCode: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /download", f.handleStart)
	mux.HandleFunc("POST /download/cancel", f.handleCancel)
	mux.HandleFunc("GET /download/jobs/{id}", f.handleStatus)
	mux.HandleFunc("GET /progress/stream", f.handleStream)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		close(f.done)
		f.Server.Close()
	})
	return f
}

// URL returns the base URL of the fake service.
func (f *FakeService) URL() string {
	return f.Server.URL
}

// ScriptStatus sets the status sequence returned for jobID.
func (f *FakeService) ScriptStatus(jobID string, statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[jobID] = statuses
}

// ScriptStream sets the event payloads sent to subscribers of jobID ("" for account scope).
func (f *FakeService) ScriptStream(jobID string, payloads ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[jobID] = payloads
}

// FailStart makes POST /download answer with code.
func (f *FakeService) FailStart(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCode = code
}

// FailCancel makes POST /download/cancel answer with code.
func (f *FakeService) FailCancel(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCode = code
}

// FailStream makes GET /progress/stream answer with code.
func (f *FakeService) FailStream(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCode = code
}

// CloseStreamAfterEvents ends each stream connection once its events are written.
func (f *FakeService) CloseStreamAfterEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeStream = true
}

// Starts returns the decoded bodies of every submission.
func (f *FakeService) Starts() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.starts...)
}

// Cancels returns the decoded bodies of every cancel request.
func (f *FakeService) Cancels() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.cancels...)
}

// Polls returns how many times jobID was polled.
func (f *FakeService) Polls(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[jobID]
}

// StreamHits returns the job_id query of every stream connection, "" for account scope.
func (f *FakeService) StreamHits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.streamHits...)
}

func (f *FakeService) handleStart(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.starts = append(f.starts, body)
	code := f.startCode
	f.nextID++
	id := fmt.Sprintf("job-%d", f.nextID)
	f.mu.Unlock()

	if code != http.StatusOK {
		writeJSON(w, code, map[string]string{"detail": "submission rejected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

func (f *FakeService) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.cancels = append(f.cancels, body)
	code := f.cancelCode
	f.mu.Unlock()

	if code != http.StatusOK {
		writeJSON(w, code, map[string]string{"detail": "cancel rejected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (f *FakeService) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f.mu.Lock()
	script, ok := f.statuses[id]
	n := f.polls[id]
	f.polls[id] = n + 1
	f.mu.Unlock()

	if !ok || len(script) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "job not found"})
		return
	}

	status := script[min(n, len(script)-1)]
	resp := map[string]string{"status": status}
	if status == "failed" {
		resp["error"] = "download failed"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeService) handleStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")

	f.mu.Lock()
	f.streamHits = append(f.streamHits, jobID)
	code := f.streamCode
	events := append([]string(nil), f.events[jobID]...)
	closeAfter := f.closeStream
	f.mu.Unlock()

	if code != http.StatusOK {
		http.Error(w, "stream unavailable", code)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for _, e := range events {
		fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(e))
		if flusher != nil {
			flusher.Flush()
		}
	}
	if flusher != nil {
		flusher.Flush()
	}
	if closeAfter {
		return
	}
	select {
	case <-r.Context().Done():
	case <-f.done:
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
