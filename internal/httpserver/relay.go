package httpserver

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/karnali/wildguard-go/internal/artifact"
	"github.com/karnali/wildguard-go/internal/inference"
	"github.com/karnali/wildguard-go/internal/session"
	"github.com/karnali/wildguard-go/internal/throttle"
	"github.com/karnali/wildguard-go/internal/triage"
)

// Relay receives completed inference results and distributes them: annotated
// frames stream to viewers and the artifact buffer, clip detections go to
// alert triage, and the throttle learns the measured latency.
type Relay struct {
	registry  *session.Registry
	throttle  *throttle.Controller
	artifacts *artifact.Buffer
	engine    *triage.Engine
	logger    *slog.Logger
}

// NewRelay wires the relay. engine may be nil when alerting is disabled.
func NewRelay(registry *session.Registry, controller *throttle.Controller, artifacts *artifact.Buffer, engine *triage.Engine) *Relay {
	return &Relay{
		registry:  registry,
		throttle:  controller,
		artifacts: artifacts,
		engine:    engine,
		logger:    serviceLogger("relay"),
	}
}

// HandleResult implements the inference result sink.
func (r *Relay) HandleResult(result inference.Result) {
	token := result.Task.CameraToken

	r.throttle.RecordInference(token, result.Latency, result.Detections, result.Width, result.Height)

	contentType := "image/jpeg"
	if result.Task.Kind == inference.TaskClip {
		contentType = "video/mp4"
	}
	r.artifacts.Add(token, artifact.Artifact{
		Sequence:    result.Task.Sequence,
		ContentType: contentType,
		SizeBytes:   len(result.Annotated),
		Detections:  len(result.Detections),
		ProducedAt:  time.Now(),
		Payload:     result.Annotated,
	})

	switch result.Task.Kind {
	case inference.TaskFrame:
		r.broadcastFrame(token, result)
	case inference.TaskClip:
		// Alerting keys off bounded clips so there is video evidence
		if r.engine != nil {
			r.engine.Submit(token, result.Detections, result.Annotated)
		}
	}
}

// broadcastFrame sends enhanced metadata plus the annotated frame bytes to
// every viewer of the camera.
func (r *Relay) broadcastFrame(token string, result inference.Result) {
	meta := frameBroadcastMeta{
		Type:             "frame_metadata",
		FrameNumber:      result.Task.Sequence,
		Width:            result.Width,
		Height:           result.Height,
		Format:           "jpeg",
		Detections:       len(result.Detections),
		YoloProcessed:    true,
		Cached:           false,
		ProcessingTimeMs: float64(result.Latency.Microseconds()) / 1000.0,
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		r.logger.Error("marshal frame metadata failed", "token", token, "error", err)
		return
	}

	r.registry.Broadcast(token, payload, false)
	r.registry.Broadcast(token, result.Annotated, true)
}

// frameBroadcastMeta is the metadata message preceding each binary frame
// sent to viewers.
type frameBroadcastMeta struct {
	Type             string  `json:"type"`
	FrameNumber      int     `json:"frameNumber"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Format           string  `json:"format"`
	Detections       int     `json:"detections"`
	YoloProcessed    bool    `json:"yolo_processed"`
	Cached           bool    `json:"cached"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}
