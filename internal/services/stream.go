// Progress push stream [FrameSource] implementation
//
// GET /progress/stream delivers Server-Sent Events whose data lines are JSON progress
// payloads. Bare JSON lines (newline-delimited JSON) are accepted as well.
package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/dlpanel/internal/shared"
)

const maxFrameSize = 1 << 20

// ProgressStream implements [FrameSource] over the service's push endpoint.
type ProgressStream struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time
}

// NewProgressStream creates a push stream client.
//
// The client must not carry a timeout: the connection stays open until the caller cancels.
func NewProgressStream(baseURL string, client *http.Client, logger *log.Logger) *ProgressStream {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &ProgressStream{
		baseURL:    baseURL,
		httpClient: client,
		logger:     shared.WithLogger(logger, "component", "stream"),
		now:        time.Now,
	}
}

// Subscribe opens one connection for scope and feeds normalized frames to sink.
//
// Returns nil when ctx is cancelled or sink asks to stop. Any transport failure, including
// the server closing the connection, closes the stream and returns a wrapped
// [shared.ErrStreamUnavailable]. Malformed frames are logged and skipped.
func (s *ProgressStream) Subscribe(ctx context.Context, scope Scope, sink FrameSink) error {
	endpoint := s.baseURL + "/progress/stream"
	if !scope.Account() {
		endpoint += "?" + url.Values{"job_id": {scope.JobID}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", shared.ErrStreamUnavailable, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(RequestIDHeader, shared.GenerateID())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %v", shared.ErrStreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", shared.ErrStreamUnavailable, resp.StatusCode)
	}

	s.logger.Debug("stream opened", "scope", scope)

	stopped, err := s.read(resp.Body, sink)
	switch {
	case stopped || ctx.Err() != nil:
		return nil
	case err != nil:
		return fmt.Errorf("%w: %v", shared.ErrStreamUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", shared.ErrStreamUnavailable, io.EOF)
	}
}

// read consumes SSE events until EOF, a read error, or sink returning false (stopped).
func (s *ProgressStream) read(r io.Reader, sink FrameSink) (stopped bool, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var data []string
	flush := func() bool {
		if len(data) == 0 {
			return true
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		return s.deliver(payload, sink)
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case line == "":
			if !flush() {
				return true, nil
			}
		case strings.HasPrefix(line, ":"):
			// Comment / keep-alive.
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "{") && len(data) == 0:
			if !s.deliver(line, sink) {
				return true, nil
			}
		default:
			// event:, id:, retry: carry nothing the reconciler uses.
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	if !flush() {
		return true, nil
	}
	return false, nil
}

func (s *ProgressStream) deliver(payload string, sink FrameSink) bool {
	frame, err := NormalizeFrame([]byte(payload), s.now())
	if err != nil {
		s.logger.Warn("dropping frame", "err", err)
		return true
	}
	s.logger.Debug("frame", "job", frame.JobID, "key", frame.Key, "terminal", frame.IsTerminal)
	return sink(frame)
}
