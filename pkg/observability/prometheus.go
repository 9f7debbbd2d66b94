// Package observability provides Prometheus metrics for the mount supervisor.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// namespace is the Prometheus metric namespace prefix for all supervisor metrics.
	namespace = "mountsup"
)

// Metrics holds all Prometheus metrics for the mount supervisor.
type Metrics struct {
	registry *prometheus.Registry

	// Check metrics
	checksTotal   *prometheus.CounterVec
	checkDuration prometheus.Histogram
	mountState    *prometheus.GaugeVec
	lastCheckTime *prometheus.GaugeVec

	// Mount operation metrics
	mountOpsTotal *prometheus.CounterVec

	// Repair metrics
	repairsTotal *prometheus.CounterVec

	// Security events
	securityEventsTotal *prometheus.CounterVec
}

// States reported by the mount_state gauge, one series per state
var mountStates = []string{"unmounted", "mounted", "degraded"}

// NewMetrics creates a new Metrics instance with all metrics registered.
// Uses a custom registry so repeated construction in one process cannot panic.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_checks_total",
				Help:      "Total number of health checks by observed state and reason",
			},
			[]string{"state", "reason"},
		),

		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_and_repair_duration_seconds",
			Help:      "Duration of check-and-repair invocations in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		mountState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mount_state",
				Help:      "Last observed state of the mount point (1 for the current state, 0 otherwise)",
			},
			[]string{"mount_point", "state"},
		),

		lastCheckTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_check_timestamp_seconds",
				Help:      "Unix time of the last completed check-and-repair by result",
			},
			[]string{"result"},
		),

		mountOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mount_operations_total",
				Help:      "Total number of mount/unmount operations by type and status",
			},
			[]string{"operation", "status"},
		),

		repairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repairs_total",
				Help:      "Total number of repair attempts by result (success or error kind)",
			},
			[]string{"result"},
		),

		securityEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "security_events_total",
				Help:      "Total number of security events by category and outcome",
			},
			[]string{"category", "outcome"},
		),
	}

	reg.MustRegister(
		m.checksTotal,
		m.checkDuration,
		m.mountState,
		m.lastCheckTime,
		m.mountOpsTotal,
		m.repairsTotal,
		m.securityEventsTotal,
	)

	return m
}

// Registry exposes the underlying registry for tests and textfile export.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// WriteTextfile writes all metrics to path in the text exposition format,
// for the node_exporter textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

// RecordHealthCheck records the state observed by a health check.
// state should be one of: unmounted, mounted, degraded.
func (m *Metrics) RecordHealthCheck(mountPoint, state, reason string) {
	m.checksTotal.WithLabelValues(state, reason).Inc()
	for _, s := range mountStates {
		value := 0.0
		if s == state {
			value = 1
		}
		m.mountState.WithLabelValues(mountPoint, s).Set(value)
	}
}

// RecordCheckAndRepair records a completed check-and-repair invocation.
// result is "success" or the error kind.
func (m *Metrics) RecordCheckAndRepair(result string, duration time.Duration) {
	m.checkDuration.Observe(duration.Seconds())
	m.lastCheckTime.WithLabelValues(result).SetToCurrentTime()
}

// RecordMountOp records a mount or unmount operation.
// operation should be one of: mount, unmount.
func (m *Metrics) RecordMountOp(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.mountOpsTotal.WithLabelValues(operation, status).Inc()
}

// RecordRepair records a repair attempt.
// result is "success" or the error kind.
func (m *Metrics) RecordRepair(result string) {
	m.repairsTotal.WithLabelValues(result).Inc()
}

// RecordSecurityEvent records a security event.
func (m *Metrics) RecordSecurityEvent(category, outcome string) {
	m.securityEventsTotal.WithLabelValues(category, outcome).Inc()
}
