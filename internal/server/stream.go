package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/h0rv/kanban/internal/realtime"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func connectedFrame(boardID string) realtime.Frame {
	frame, _ := realtime.Encode(realtime.Connected{BoardID: boardID})
	return frame
}

// streamEvents serves GET /api/board/:id/events as text/event-stream.
func (s *Server) streamEvents(c echo.Context) error {
	boardID := c.Param("id")
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}

	ctx := c.Request().Context()
	frames, cancel, err := s.broker.Subscribe(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to subscribe stream")
		return errorJSON(c, http.StatusServiceUnavailable, "event stream unavailable")
	}
	defer cancel()

	entry := s.log.WithField("board", boardID)
	entry.Debug("sse client connected")
	defer entry.Debug("sse client disconnected")

	res.WriteHeader(http.StatusOK)
	if err := writeSSE(res, connectedFrame(boardID)); err != nil {
		return nil
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := writeSSE(res, frame); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if _, err := res.Write([]byte(": keep-alive\n\n")); err != nil {
				return nil
			}
		}
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, f realtime.Frame) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Name, f.Data)
	return err
}

// streamSocket serves GET /ws/board/:id. Frames are sent as {type, data}
// envelopes and the connection is kept alive with pings.
func (s *Server) streamSocket(c echo.Context) error {
	boardID := c.Param("id")
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.log.WithError(err).Warn("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	ctx := c.Request().Context()
	frames, cancel, err := s.broker.Subscribe(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to subscribe socket")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "event stream unavailable"),
			time.Now().Add(wsWriteWait))
		return nil
	}
	defer cancel()

	entry := s.log.WithField("board", boardID)
	entry.Debug("websocket client connected")
	defer entry.Debug("websocket client disconnected")

	// The read loop only exists to process control frames and notice when
	// the client goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(f realtime.Frame) error {
		data, err := realtime.EncodeMessage(f)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}
	if err := send(connectedFrame(boardID)); err != nil {
		return nil
	}

	ping := time.NewTicker(s.cfg.Heartbeat)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return nil
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := send(frame); err != nil {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		}
	}
}
