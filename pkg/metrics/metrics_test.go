package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ExecutionStarted()
	m.ExecutionStarted()
	m.ExecutionFinished("completed", "manual", time.Second)
	m.Retry("action", "network")
	m.Retry("action", "network")
	m.RecoveryAction("abort", "validation")
	m.CheckpointSaved("retry")

	assert.InDelta(t, 1, testutil.ToFloat64(m.activeRuns), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.executions.WithLabelValues("completed", "manual")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.retries.WithLabelValues("action", "network")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.recoveryActions.WithLabelValues("abort", "validation")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.checkpoints.WithLabelValues("retry")), 0)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ExecutionStarted()
		m.ExecutionFinished("failed", "webhook", time.Second)
		m.NodeFinished("action", "completed", time.Millisecond)
		m.Retry("action", "server")
		m.RecoveryAction("skip", "validation")
		m.CheckpointSaved("abort")
	})
}
