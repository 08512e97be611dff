package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AlertMetrics contains all Prometheus metrics related to alert triage and dispatch.
type AlertMetrics struct {
	DispatchAttempts   *prometheus.CounterVec
	CooldownSuppressed prometheus.Counter
	DispatchDuration   prometheus.Histogram
	EvidenceBytes      prometheus.Histogram
	TranscodeRetries   prometheus.Counter
	registry           *prometheus.Registry
}

// NewAlertMetrics creates a new instance of AlertMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewAlertMetrics(registry *prometheus.Registry) (*AlertMetrics, error) {
	m := &AlertMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize alert metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register alert metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for AlertMetrics.
func (m *AlertMetrics) initMetrics() error {
	m.DispatchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wildguard_alert_dispatch_attempts_total",
			Help: "Total number of alert dispatch attempts partitioned by channel and result",
		},
		[]string{"channel", "result"},
	)

	m.CooldownSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildguard_alerts_cooldown_suppressed_total",
		Help: "Total number of alerts suppressed by the per-channel cooldown",
	})

	m.DispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wildguard_alert_dispatch_duration_seconds",
		Help:    "Time taken to dispatch one alert across all channels",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	})

	m.EvidenceBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wildguard_alert_evidence_bytes",
		Help:    "Size of stored evidence clips in bytes",
		Buckets: prometheus.ExponentialBuckets(64*1024, 2, 12), // 64KiB to ~128MiB
	})

	m.TranscodeRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wildguard_alert_transcode_retries_total",
		Help: "Total number of quality back-off re-encodes for oversized evidence",
	})

	return nil
}

// RecordDispatchAttempt records one channel dispatch outcome.
func (m *AlertMetrics) RecordDispatchAttempt(channel string, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	m.DispatchAttempts.WithLabelValues(channel, result).Inc()
}

// IncrementCooldownSuppressed increments the count of cooldown-suppressed alerts.
func (m *AlertMetrics) IncrementCooldownSuppressed() {
	m.CooldownSuppressed.Inc()
}

// ObserveDispatchDuration records the total dispatch time for one alert.
func (m *AlertMetrics) ObserveDispatchDuration(seconds float64) {
	m.DispatchDuration.Observe(seconds)
}

// ObserveEvidenceBytes records the size of a stored evidence clip.
func (m *AlertMetrics) ObserveEvidenceBytes(sizeBytes int64) {
	m.EvidenceBytes.Observe(float64(sizeBytes))
}

// IncrementTranscodeRetries increments the count of evidence re-encodes.
func (m *AlertMetrics) IncrementTranscodeRetries() {
	m.TranscodeRetries.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *AlertMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DispatchAttempts.Collect(ch)
	ch <- m.CooldownSuppressed
	ch <- m.DispatchDuration
	ch <- m.EvidenceBytes
	ch <- m.TranscodeRetries
}

// Describe implements the prometheus.Collector interface.
func (m *AlertMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DispatchAttempts.Describe(ch)
	ch <- m.CooldownSuppressed.Desc()
	ch <- m.DispatchDuration.Desc()
	ch <- m.EvidenceBytes.Desc()
	ch <- m.TranscodeRetries.Desc()
}
