// Package metrics provides custom Prometheus metrics for the wildguard
// streaming pipeline components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics contains all Prometheus metrics related to camera and viewer sessions.
type SessionMetrics struct {
	ActiveCameras     prometheus.Gauge
	ActiveViewers     prometheus.Gauge
	CamerasSuperseded prometheus.Counter
	FramesRelayed     prometheus.Counter
	BroadcastFailures prometheus.Counter
	KeepalivesSent    prometheus.Counter
	registry          *prometheus.Registry
}

// NewSessionMetrics creates a new instance of SessionMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewSessionMetrics(registry *prometheus.Registry) (*SessionMetrics, error) {
	m := &SessionMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize session metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for SessionMetrics.
func (m *SessionMetrics) initMetrics() error {
	m.ActiveCameras = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wildguard_active_cameras",
		Help: "Number of camera sessions currently registered",
	})

	m.ActiveViewers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wildguard_active_viewers",
		Help: "Number of viewer sessions currently registered across all cameras",
	})

	m.CamerasSuperseded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildguard_cameras_superseded_total",
		Help: "Total number of camera sessions closed because a newer session claimed the token",
	})

	m.FramesRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildguard_frames_relayed_total",
		Help: "Total number of frames relayed from cameras to viewers",
	})

	m.BroadcastFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildguard_broadcast_failures_total",
		Help: "Total number of viewer sends that failed and removed the viewer",
	})

	m.KeepalivesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildguard_keepalives_sent_total",
		Help: "Total number of keepalive messages sent to idle viewers",
	})

	return nil
}

// UpdateActiveCameras sets the current number of registered camera sessions.
func (m *SessionMetrics) UpdateActiveCameras(count int) {
	m.ActiveCameras.Set(float64(count))
}

// UpdateActiveViewers sets the current number of registered viewer sessions.
func (m *SessionMetrics) UpdateActiveViewers(count int) {
	m.ActiveViewers.Set(float64(count))
}

// IncrementCamerasSuperseded increments the count of superseded camera sessions.
func (m *SessionMetrics) IncrementCamerasSuperseded() {
	m.CamerasSuperseded.Inc()
}

// IncrementFramesRelayed increments the count of relayed frames.
func (m *SessionMetrics) IncrementFramesRelayed() {
	m.FramesRelayed.Inc()
}

// IncrementBroadcastFailures increments the count of failed viewer sends.
func (m *SessionMetrics) IncrementBroadcastFailures() {
	m.BroadcastFailures.Inc()
}

// IncrementKeepalivesSent increments the count of keepalives sent to viewers.
func (m *SessionMetrics) IncrementKeepalivesSent() {
	m.KeepalivesSent.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ActiveCameras
	ch <- m.ActiveViewers
	ch <- m.CamerasSuperseded
	ch <- m.FramesRelayed
	ch <- m.BroadcastFailures
	ch <- m.KeepalivesSent
}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.ActiveCameras.Desc()
	ch <- m.ActiveViewers.Desc()
	ch <- m.CamerasSuperseded.Desc()
	ch <- m.FramesRelayed.Desc()
	ch <- m.BroadcastFailures.Desc()
	ch <- m.KeepalivesSent.Desc()
}
