package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains all Prometheus metrics related to clip assembly,
// the inference worker pool, and adaptive throttling.
type PipelineMetrics struct {
	QueueDepth         prometheus.Gauge
	InferenceDuration  prometheus.Histogram
	InferenceTotal     prometheus.Counter
	InferenceFailures  *prometheus.CounterVec
	ClipsAssembled     prometheus.Counter
	ClipsDiscarded     *prometheus.CounterVec
	ClipSize           prometheus.Histogram
	ThrottleInterval   *prometheus.GaugeVec
	FramesSkipped      prometheus.Counter
	registry           *prometheus.Registry
}

// NewPipelineMetrics creates a new instance of PipelineMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for PipelineMetrics.
func (m *PipelineMetrics) initMetrics() error {
	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wildguard_inference_queue_depth",
		Help: "Number of tasks waiting for an inference worker",
	})

	m.InferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wildguard_inference_duration_seconds",
		Help:    "Time taken for one detection backend round trip",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
	})

	m.InferenceTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildguard_inference_total",
		Help: "Total number of inference tasks processed",
	})

	m.InferenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildguard_inference_failures_total",
			Help: "Total number of failed inference tasks partitioned by reason",
		},
		[]string{"reason"},
	)

	m.ClipsAssembled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildguard_clips_assembled_total",
		Help: "Total number of clips assembled from camera chunks",
	})

	m.ClipsDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildguard_clips_discarded_total",
			Help: "Total number of clips discarded during assembly partitioned by reason",
		},
		[]string{"reason"},
	)

	m.ClipSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wildguard_clip_size_bytes",
		Help:    "Size of assembled clips in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB to ~256MiB
	})

	m.ThrottleInterval = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wildguard_throttle_interval_frames",
			Help: "Current adaptive inference interval in frames partitioned by camera token",
		},
		[]string{"camera"},
	)

	m.FramesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildguard_frames_skipped_total",
		Help: "Total number of frames answered from the detection cache instead of running inference",
	})

	return nil
}

// UpdateQueueDepth sets the current inference queue depth.
func (m *PipelineMetrics) UpdateQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// ObserveInferenceDuration records one detection backend round trip.
func (m *PipelineMetrics) ObserveInferenceDuration(seconds float64) {
	m.InferenceDuration.Observe(seconds)
	m.InferenceTotal.Inc()
}

// IncrementInferenceFailures increments the failure counter for a reason.
func (m *PipelineMetrics) IncrementInferenceFailures(reason string) {
	m.InferenceFailures.WithLabelValues(reason).Inc()
}

// RecordClipAssembled records a completed clip and its size.
func (m *PipelineMetrics) RecordClipAssembled(sizeBytes int) {
	m.ClipsAssembled.Inc()
	m.ClipSize.Observe(float64(sizeBytes))
}

// IncrementClipsDiscarded increments the discard counter for a reason.
func (m *PipelineMetrics) IncrementClipsDiscarded(reason string) {
	m.ClipsDiscarded.WithLabelValues(reason).Inc()
}

// UpdateThrottleInterval records the current frame interval for a camera.
func (m *PipelineMetrics) UpdateThrottleInterval(camera string, interval int) {
	m.ThrottleInterval.WithLabelValues(camera).Set(float64(interval))
}

// RemoveThrottleInterval drops the gauge series for a disconnected camera.
func (m *PipelineMetrics) RemoveThrottleInterval(camera string) {
	m.ThrottleInterval.DeleteLabelValues(camera)
}

// IncrementFramesSkipped increments the count of cache-served frames.
func (m *PipelineMetrics) IncrementFramesSkipped() {
	m.FramesSkipped.Inc()
}

// StartInferenceTimer starts a timer for measuring an inference round trip.
// It returns an InferenceTimer that should be used to record the duration.
func (m *PipelineMetrics) StartInferenceTimer() *InferenceTimer {
	return &InferenceTimer{
		startTime: time.Now(),
		metrics:   m,
	}
}

// InferenceTimer is a helper struct for measuring inference latency.
type InferenceTimer struct {
	startTime time.Time
	metrics   *PipelineMetrics
}

// ObserveDuration stops the timer and records the duration.
func (it *InferenceTimer) ObserveDuration() {
	duration := time.Since(it.startTime).Seconds()
	it.metrics.ObserveInferenceDuration(duration)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.QueueDepth
	ch <- m.InferenceDuration
	ch <- m.InferenceTotal
	m.InferenceFailures.Collect(ch)
	ch <- m.ClipsAssembled
	m.ClipsDiscarded.Collect(ch)
	ch <- m.ClipSize
	m.ThrottleInterval.Collect(ch)
	ch <- m.FramesSkipped
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.QueueDepth.Desc()
	ch <- m.InferenceDuration.Desc()
	ch <- m.InferenceTotal.Desc()
	m.InferenceFailures.Describe(ch)
	ch <- m.ClipsAssembled.Desc()
	m.ClipsDiscarded.Describe(ch)
	ch <- m.ClipSize.Desc()
	m.ThrottleInterval.Describe(ch)
	ch <- m.FramesSkipped.Desc()
}
