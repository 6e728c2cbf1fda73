// Package metrics exposes Prometheus collectors for scenario executions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the execution collectors. A nil *Metrics records nothing.
type Metrics struct {
	executions      *prometheus.CounterVec
	activeRuns      prometheus.Gauge
	executionTime   *prometheus.HistogramVec
	nodeDuration    *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	recoveryActions *prometheus.CounterVec
	checkpoints     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_executions_total",
				Help: "Total number of finalized executions",
			},
			[]string{"status", "trigger_type"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_executions_running",
				Help: "Executions currently running in this process",
			},
		),
		executionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_execution_duration_seconds",
				Help:    "Duration of finalized executions",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"status"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_node_duration_seconds",
				Help:    "Duration of node executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node_type", "status"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_node_retries_total",
				Help: "Total number of node retries",
			},
			[]string{"node_type", "category"},
		),
		recoveryActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_recovery_actions_total",
				Help: "Recovery actions chosen for failed nodes",
			},
			[]string{"action", "category"},
		),
		checkpoints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_checkpoints_total",
				Help: "Checkpoints written",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(m.executions, m.activeRuns, m.executionTime, m.nodeDuration, m.retries, m.recoveryActions, m.checkpoints)

	return m
}

func (m *Metrics) ExecutionStarted() {
	if m == nil {
		return
	}

	m.activeRuns.Inc()
}

func (m *Metrics) ExecutionFinished(status, triggerType string, duration time.Duration) {
	if m == nil {
		return
	}

	m.activeRuns.Dec()
	m.executions.WithLabelValues(status, triggerType).Inc()
	m.executionTime.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Metrics) NodeFinished(nodeType, status string, duration time.Duration) {
	if m == nil {
		return
	}

	m.nodeDuration.WithLabelValues(nodeType, status).Observe(duration.Seconds())
}

func (m *Metrics) Retry(nodeType, category string) {
	if m == nil {
		return
	}

	m.retries.WithLabelValues(nodeType, category).Inc()
}

func (m *Metrics) RecoveryAction(action, category string) {
	if m == nil {
		return
	}

	m.recoveryActions.WithLabelValues(action, category).Inc()
}

func (m *Metrics) CheckpointSaved(reason string) {
	if m == nil {
		return
	}

	m.checkpoints.WithLabelValues(reason).Inc()
}
