package httpserver

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/karnali/wildguard-go/internal/datastore"
	"github.com/karnali/wildguard-go/internal/errors"
	"github.com/karnali/wildguard-go/internal/session"
	"github.com/karnali/wildguard-go/internal/throttle"
)

// handleCameraSocket runs the read loop for one camera connection: frame
// metadata plus binary frames, the chunked clip protocol, and performance
// feedback.
func (s *Server) handleCameraSocket(c echo.Context) error {
	token := c.Param("token")

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	if !s.tokenKnown(token) {
		message := websocket.FormatCloseMessage(session.CloseNotFound, "unknown camera token")
		_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(s.sendTimeout()))
		_ = conn.Close()
		s.logger.Warn("camera rejected, unknown token", "token", token)
		return nil
	}

	transport := session.NewWebSocketTransport(conn, s.sendTimeout())
	s.registry.ConnectCamera(token, transport)

	defer func() {
		// Pipeline state belongs to whichever connection is registered. A
		// superseded connection must not wipe its replacement's state.
		if s.registry.DisconnectCamera(token, transport) {
			s.assembler.Discard(token)
			s.throttle.Remove(token)
		}
	}()

	var pendingFrame *controlMessage
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("camera read loop ended", "token", token, "error", err)
			return nil
		}

		switch messageType {
		case websocket.TextMessage:
			pendingFrame = s.handleCameraControl(token, transport, data, pendingFrame)
		case websocket.BinaryMessage:
			pendingFrame = s.handleCameraBinary(token, data, pendingFrame)
		}
	}
}

// tokenKnown consults the camera directory when one is configured. Without
// a directory every token is accepted.
func (s *Server) tokenKnown(token string) bool {
	if s.directory == nil {
		return true
	}
	_, err := s.directory.CameraByToken(token)
	if err == nil {
		return true
	}
	if !errors.Is(err, datastore.ErrCameraNotFound) {
		s.logger.Error("camera directory lookup failed", "token", token, "error", err)
	}
	return false
}

// handleCameraControl dispatches one JSON control message. It returns the
// new pending frame metadata, if any.
func (s *Server) handleCameraControl(token string, transport session.Transport, data []byte, pendingFrame *controlMessage) *controlMessage {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("malformed control message discarded", "token", token, "error", err)
		return pendingFrame
	}

	switch msg.Type {
	case "frame_metadata":
		// The next binary message is the frame these fields describe
		return &msg
	case "clip_begin":
		s.assembler.Begin(token, msg.ClipNumber, msg.Size)
	case "clip_chunk_count":
		s.assembler.DeclareChunkCount(token, msg.ClipNumber, msg.TotalChunks)
	case "clip_end":
		if err := s.assembler.End(token, msg.ClipNumber); err != nil {
			s.logger.Warn("clip completion failed", "token", token, "error", err)
		}
	case "performance_feedback":
		s.answerFeedback(token, transport, msg)
	default:
		s.logger.Debug("unknown control message ignored", "token", token, "type", msg.Type)
	}
	return pendingFrame
}

// handleCameraBinary routes one binary message: the frame announced by the
// preceding metadata, or a clip chunk while assembly is open.
func (s *Server) handleCameraBinary(token string, data []byte, pendingFrame *controlMessage) *controlMessage {
	if pendingFrame != nil {
		s.handleFrame(token, *pendingFrame, data)
		return nil
	}
	if s.assembler.Receiving(token) {
		if err := s.assembler.AppendChunk(token, data); err != nil {
			s.logger.Warn("clip chunk rejected", "token", token, "error", err)
		}
		return nil
	}
	s.logger.Warn("binary message with no open clip or frame metadata, discarded",
		"token", token, "bytes", len(data))
	return nil
}

// handleFrame gates one frame through the throttle: either it is submitted
// for inference or the cached detections are re-rendered onto it.
func (s *Server) handleFrame(token string, meta controlMessage, frame []byte) {
	if s.throttle.Gate(token) == throttle.Run {
		s.pool.SubmitFrame(token, frame, meta.FrameNumber)
		return
	}

	cached, ok := s.throttle.Cached(token)
	if !ok {
		// Nothing to overlay, relay the frame as-is
		s.broadcastCachedFrame(token, meta, frame, 0)
		return
	}

	annotated, _, _, err := s.annotator.Annotate(frame, cached.Detections)
	if err != nil {
		s.logger.Warn("cached overlay failed, relaying raw frame",
			"token", token, "error", err)
		annotated = frame
	}
	s.broadcastCachedFrame(token, meta, annotated, len(cached.Detections))
}

// broadcastCachedFrame sends a cache-served frame to the camera's viewers.
func (s *Server) broadcastCachedFrame(token string, meta controlMessage, frame []byte, detections int) {
	broadcastMeta := frameBroadcastMeta{
		Type:          "frame_metadata",
		FrameNumber:   meta.FrameNumber,
		Width:         meta.Width,
		Height:        meta.Height,
		Format:        "jpeg",
		Detections:    detections,
		YoloProcessed: false,
		Cached:        true,
	}
	payload, err := json.Marshal(broadcastMeta)
	if err != nil {
		s.logger.Error("marshal frame metadata failed", "token", token, "error", err)
		return
	}
	s.registry.Broadcast(token, payload, false)
	s.registry.Broadcast(token, frame, true)
}

// answerFeedback replies to a performance report with capture suggestions.
func (s *Server) answerFeedback(token string, transport session.Transport, msg controlMessage) {
	feedback := performanceFeedback{
		Type:       msg.Type,
		LatencyMs:  msg.LatencyMs,
		FPS:        msg.FPS,
		FrameDrops: msg.FrameDrops,
		QueueDepth: msg.QueueDepth,
	}
	s.throttle.ApplyViewerFeedback(token, feedback.LatencyMs, feedback.FrameDrops)

	reply := suggestStreaming(feedback, s.throttle.Interval(token))
	payload, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("marshal adaptive reply failed", "token", token, "error", err)
		return
	}
	if err := transport.Send(payload, false); err != nil {
		s.logger.Debug("adaptive reply send failed", "token", token, "error", err)
	}
}
