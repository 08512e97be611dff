package httpserver

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/karnali/wildguard-go/internal/session"
)

// handleViewerSocket registers one viewer for a camera's stream. A ticker
// goroutine sends keepalives over the idle window while the read loop
// consumes performance feedback.
func (s *Server) handleViewerSocket(c echo.Context) error {
	token := c.Param("token")

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	transport := session.NewWebSocketTransport(conn, s.sendTimeout())
	s.registry.ConnectViewer(token, transport)

	done := make(chan struct{})
	defer func() {
		close(done)
		s.registry.DisconnectViewer(token, transport)
	}()

	go s.keepaliveLoop(token, transport, done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("viewer read loop ended", "token", token, "error", err)
			return nil
		}

		if messageType != websocket.TextMessage {
			continue
		}
		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("malformed viewer message discarded", "token", token, "error", err)
			continue
		}
		if msg.Type == "performance_feedback" {
			s.answerFeedback(token, transport, msg)
		}
	}
}

// keepaliveMessage is sent to idle viewers so intermediaries keep the
// connection open.
type keepaliveMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// keepaliveLoop sends a keepalive when the connection has been idle for the
// whole window, until the viewer goes away or the session ends. Broadcast
// traffic counts as liveness, so a viewer on an active stream is never
// pinged.
func (s *Server) keepaliveLoop(token string, transport session.Transport, done <-chan struct{}) {
	idleWindow := time.Duration(s.settings.Stream.KeepaliveSeconds) * time.Second
	ticker := time.NewTicker(idleWindow)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !keepaliveDue(transport, idleWindow) {
				continue
			}
			payload, err := json.Marshal(keepaliveMessage{
				Type:      "keepalive",
				Timestamp: time.Now().UnixMilli(),
			})
			if err != nil {
				return
			}
			if err := transport.Send(payload, false); err != nil {
				s.logger.Debug("keepalive send failed", "token", token, "error", err)
				return
			}
			if s.metrics != nil {
				s.metrics.Session.IncrementKeepalivesSent()
			}
		}
	}
}

// keepaliveDue reports whether the connection has been quiet for the idle
// window. Transports that do not track sends are always due.
func keepaliveDue(transport session.Transport, idleWindow time.Duration) bool {
	clock, ok := transport.(session.SendClock)
	if !ok {
		return true
	}
	return time.Since(clock.LastSendAt()) >= idleWindow
}
