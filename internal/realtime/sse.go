package realtime

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxFrameSize bounds a single SSE line.
const maxFrameSize = 1 << 20

// Source delivers raw frames for one board until ctx ends or the transport fails.
type Source interface {
	Stream(ctx context.Context, boardID string, deliver func(Frame)) error
}

// SSE subscribes to GET /api/board/:id/events.
type SSE struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewSSE returns an SSE source for the backend at baseURL.
func NewSSE(baseURL, token string) *SSE {
	return &SSE{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, Client: &http.Client{}}
}

// Stream opens the event stream and delivers every dispatched frame. Comment
// lines (heartbeats) are skipped. It returns nil once ctx is cancelled.
func (s *SSE) Stream(ctx context.Context, boardID string, deliver func(Frame)) error {
	target := s.BaseURL + "/api/board/" + url.PathEscape(boardID) + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to open event stream: status %d", resp.StatusCode)
	}

	err = scanFrames(resp.Body, deliver)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("event stream failed: %w", err)
	}
	return ErrStreamClosed
}

// scanFrames parses text/event-stream framing: "event:" names the frame,
// "data:" lines accumulate, a blank line dispatches, ":" starts a comment.
func scanFrames(r io.Reader, deliver func(Frame)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var (
		name string
		data bytes.Buffer
		has  bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if has {
				if name == "" {
					name = "message"
				}
				deliver(Frame{Name: name, Data: append([]byte(nil), data.Bytes()...)})
			}
			name, has = "", false
			data.Reset()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
			has = true
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			has = true
		}
	}
	return scanner.Err()
}
