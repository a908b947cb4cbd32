package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordigilh/taskforge/pkg/task"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	require.NoError(t, (<-ch).Write(m))
	return m.GetCounter().GetValue()
}

func TestRecorder_TaskSubmitted(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.TaskSubmitted(task.DomainBackend)
	r.TaskSubmitted(task.DomainBackend)

	pr := r.(*promRecorder)
	assert.Equal(t, float64(2), counterValue(t, pr.submitted.WithLabelValues("backend")))
}

func TestRecorder_TaskFailedLabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	r.TaskFailed(task.DomainMemory, "safety_violation")

	pr := r.(*promRecorder)
	assert.Equal(t, float64(1), counterValue(t, pr.failed.WithLabelValues("memory", "safety_violation")))
}

func TestNoop_NeverPanics(t *testing.T) {
	var n Noop
	n.TaskSubmitted(task.DomainFrontend)
	n.TaskCompleted(task.DomainFrontend, 1)
	n.TaskFailed(task.DomainFrontend, "x")
	n.TaskRetried(task.DomainFrontend, 1)
	n.VerificationDuration(task.DomainFrontend, 0.1)
	n.DispatchDuration(task.DomainFrontend, 0.1)
	n.ActiveTasks(1)
}
