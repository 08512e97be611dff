// Package observability provides metrics and monitoring capabilities for the
// wildguard streaming relay.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/karnali/wildguard-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Session  *metrics.SessionMetrics
	Pipeline *metrics.PipelineMetrics
	Alert    *metrics.AlertMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	sessionMetrics, err := metrics.NewSessionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create session metrics: %w", err)
	}

	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	alertMetrics, err := metrics.NewAlertMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert metrics: %w", err)
	}

	m := &Metrics{
		registry: registry,
		Session:  sessionMetrics,
		Pipeline: pipelineMetrics,
		Alert:    alertMetrics,
	}

	return m, nil
}

// Handler returns the HTTP handler serving the metrics registry, for mounting
// on the web server.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
