// Package throttle decides, per camera and per frame, whether to run
// inference now or reuse the last cached detections, and adapts the
// inference interval to observed latency.
package throttle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/karnali/wildguard-go/internal/conf"
	"github.com/karnali/wildguard-go/internal/inference"
	"github.com/karnali/wildguard-go/internal/logging"
	"github.com/karnali/wildguard-go/internal/observability/metrics"
)

// Viewer feedback perturbation steps. Distinct from the latency-driven
// grow/shrink steps in the settings.
const (
	feedbackGrowStep   = 3
	feedbackShrinkStep = 1
	feedbackMaxDrops   = 5
)

// Decision is the outcome of one frame gate.
type Decision int

const (
	// Run submits the frame for inference.
	Run Decision = iota
	// Cache reuses the last detection set for this camera.
	Cache
)

// CachedDetections is the most recent completed inference for one camera.
type CachedDetections struct {
	Detections []inference.Detection
	ProducedAt time.Time
	Width      int
	Height     int
}

// CameraStats is a snapshot of one camera's throttle state for the status
// endpoint.
type CameraStats struct {
	FrameCount           int  `json:"frame_count"`
	InferenceInterval    int  `json:"inference_interval"`
	FramesSinceInference int  `json:"frames_since_inference"`
	Active               bool `json:"active"`
}

// cameraState is owned by one camera's processing path; the containing map
// is what needs locking.
type cameraState struct {
	interval             int
	frameCounter         int
	framesSinceInference int
	lastInference        time.Time
	hasRun               bool
	cache                *CachedDetections
}

// Controller holds per-camera throttle state keyed by camera token.
type Controller struct {
	mu       sync.Mutex
	cameras  map[string]*cameraState
	settings conf.ThrottleSettings
	logger   *slog.Logger
	metrics  *metrics.PipelineMetrics
}

// NewController creates a controller with the given bounds and thresholds.
// pipelineMetrics may be nil in tests.
func NewController(settings conf.ThrottleSettings, pipelineMetrics *metrics.PipelineMetrics) *Controller {
	return &Controller{
		cameras:  make(map[string]*cameraState),
		settings: settings,
		logger:   logging.ForService("throttle"),
		metrics:  pipelineMetrics,
	}
}

// Gate counts one incoming frame for token and decides whether to run
// inference or serve the cached overlay. Inference runs when the frame
// counter lands on the interval, when the forced maximum elapsed time has
// passed, or when no inference has ever run for this camera.
func (c *Controller) Gate(token string) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.stateLocked(token)
	state.frameCounter++
	state.framesSinceInference++

	forceAfter := time.Duration(c.settings.ForceAfterMs) * time.Millisecond
	switch {
	case !state.hasRun:
		return Run
	case state.frameCounter%state.interval == 0:
		return Run
	case time.Since(state.lastInference) > forceAfter:
		return Run
	default:
		if c.metrics != nil {
			c.metrics.IncrementFramesSkipped()
		}
		return Cache
	}
}

// RecordInference stores the completed detection set for token and adjusts
// the interval from the measured latency: slow inference widens the
// interval, fast inference tightens it, always inside [min, max].
func (c *Controller) RecordInference(token string, latency time.Duration, detections []inference.Detection, width, height int) {
	latencyMs := float64(latency.Milliseconds())

	c.mu.Lock()
	state := c.stateLocked(token)
	state.hasRun = true
	state.lastInference = time.Now()
	state.framesSinceInference = 0
	state.cache = &CachedDetections{
		Detections: detections,
		ProducedAt: state.lastInference,
		Width:      width,
		Height:     height,
	}

	previous := state.interval
	if latencyMs > c.settings.SlowThresholdMs {
		state.interval += c.settings.GrowStep
	} else if latencyMs < c.settings.FastThresholdMs {
		state.interval -= c.settings.ShrinkStep
	}
	state.interval = c.clamp(state.interval)
	interval := state.interval
	c.mu.Unlock()

	if interval != previous {
		c.logDebug("inference interval adjusted", "token", token,
			"interval", interval, "previous", previous, "latency_ms", latencyMs)
	}
	if c.metrics != nil {
		c.metrics.UpdateThrottleInterval(token, interval)
	}
}

// ApplyViewerFeedback perturbs the interval from viewer-reported latency and
// frame drops: a struggling viewer widens the interval, a healthy one
// tightens it.
func (c *Controller) ApplyViewerFeedback(token string, latencyMs float64, frameDrops int) {
	c.mu.Lock()
	state := c.stateLocked(token)
	switch {
	case latencyMs > c.settings.ViewerLatencyHigh:
		state.interval = c.clamp(state.interval + feedbackGrowStep)
	case latencyMs < c.settings.ViewerLatencyLow && frameDrops < feedbackMaxDrops:
		state.interval = c.clamp(state.interval - feedbackShrinkStep)
	}
	interval := state.interval
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.UpdateThrottleInterval(token, interval)
	}
}

// Cached returns the last detection set for token, if any.
func (c *Controller) Cached(token string) (*CachedDetections, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.cameras[token]
	if state == nil || state.cache == nil {
		return nil, false
	}
	return state.cache, true
}

// Interval returns the current inference interval for token.
func (c *Controller) Interval(token string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(token).interval
}

// Stats returns a snapshot of token's throttle state. active reflects
// whether the camera currently holds a live connection.
func (c *Controller) Stats(token string, active bool) CameraStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.cameras[token]
	if state == nil {
		return CameraStats{InferenceInterval: c.settings.InitialInterval, Active: active}
	}
	return CameraStats{
		FrameCount:           state.frameCounter,
		InferenceInterval:    state.interval,
		FramesSinceInference: state.framesSinceInference,
		Active:               active,
	}
}

// Remove drops all throttle state for a disconnected camera.
func (c *Controller) Remove(token string) {
	c.mu.Lock()
	delete(c.cameras, token)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RemoveThrottleInterval(token)
	}
}

// stateLocked returns the state for token, creating it at the initial
// interval. Caller holds the mutex.
func (c *Controller) stateLocked(token string) *cameraState {
	state := c.cameras[token]
	if state == nil {
		state = &cameraState{interval: c.settings.InitialInterval}
		c.cameras[token] = state
	}
	return state
}

func (c *Controller) clamp(interval int) int {
	if interval < c.settings.MinInterval {
		return c.settings.MinInterval
	}
	if interval > c.settings.MaxInterval {
		return c.settings.MaxInterval
	}
	return interval
}

func (c *Controller) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
