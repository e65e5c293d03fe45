package api

import (
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leapstack-labs/meshflow/internal/status"
	"github.com/leapstack-labs/meshflow/pkg/core"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// StatusMessage is one frame of the status WebSocket stream.
type StatusMessage struct {
	Status core.RunStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// handleStatusSocket streams the live status as JSON text frames: once on
// connect, then after every change to the file. Client frames are ignored;
// the stream ends when the client goes away.
func (s *Server) handleStatusSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	updates := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(updates)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !s.writeStatusFrame(conn) {
		return
	}
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-updates:
			if !s.writeStatusFrame(conn) {
				return
			}
		}
	}
}

// writeStatusFrame sends the current status and reports whether the
// connection is still usable.
func (s *Server) writeStatusFrame(conn *websocket.Conn) bool {
	msg := StatusMessage{}
	st, err := status.ReadStatus(s.statusPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		msg.Status = core.RunStatus{}
	case err != nil:
		msg.Error = err.Error()
	default:
		msg.Status = st
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug("failed to send status frame", "error", err)
		return false
	}
	return true
}
