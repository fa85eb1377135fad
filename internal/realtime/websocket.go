package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// wsMessage is the JSON envelope of every WebSocket text frame.
type wsMessage struct {
	Type string                 `json:"type"`
	Data sonic.NoCopyRawMessage `json:"data,omitempty"`
}

// EncodeMessage renders a frame as a WebSocket envelope.
func EncodeMessage(f Frame) ([]byte, error) {
	return sonic.Marshal(wsMessage{Type: f.Name, Data: f.Data})
}

// DecodeMessage parses a WebSocket envelope into a frame.
func DecodeMessage(data []byte) (Frame, error) {
	var msg wsMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return Frame{}, fmt.Errorf("failed to decode websocket message: %w", err)
	}
	return Frame{Name: msg.Type, Data: append([]byte(nil), msg.Data...)}, nil
}

// WebSocket subscribes to /ws/board/:id.
type WebSocket struct {
	BaseURL string
	Token   string
	Dialer  *websocket.Dialer
}

// NewWebSocket returns a WebSocket source for the backend at baseURL. http
// and https schemes are mapped to ws and wss.
func NewWebSocket(baseURL, token string) *WebSocket {
	return &WebSocket{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, Dialer: websocket.DefaultDialer}
}

func (w *WebSocket) endpoint(boardID string) string {
	base := w.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/board/" + url.PathEscape(boardID)
}

// Stream dials the board socket and delivers every envelope. Pings sent by
// the server are answered by the default ping handler. It returns nil once
// ctx is cancelled, after sending a normal close frame.
func (w *WebSocket) Stream(ctx context.Context, boardID string, deliver func(Frame)) error {
	header := http.Header{}
	if w.Token != "" {
		header.Set("Authorization", "Bearer "+w.Token)
	}
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, w.endpoint(boardID), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to dial board socket: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "cleanup"),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrStreamClosed
			}
			return fmt.Errorf("board socket failed: %w", err)
		}
		frame, err := DecodeMessage(data)
		if err != nil {
			deliver(Frame{Name: "", Data: data})
			continue
		}
		deliver(frame)
	}
}
