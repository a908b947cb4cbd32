// Package metrics exposes Prometheus instrumentation for the
// orchestrator, gated by the enable_metrics configuration toggle
// (spec §6). When disabled, Recorder is a no-op so callers never need
// to branch on whether metrics are on.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jordigilh/taskforge/pkg/task"
)

// Recorder records orchestrator lifecycle events as Prometheus metrics.
type Recorder interface {
	TaskSubmitted(domain task.Domain)
	TaskCompleted(domain task.Domain, attempt int)
	TaskFailed(domain task.Domain, reason string)
	TaskRetried(domain task.Domain, attempt int)
	VerificationDuration(domain task.Domain, seconds float64)
	DispatchDuration(domain task.Domain, seconds float64)
	ActiveTasks(delta int)
}

// promRecorder is the live Prometheus-backed Recorder.
type promRecorder struct {
	submitted        *prometheus.CounterVec
	completed        *prometheus.CounterVec
	failed           *prometheus.CounterVec
	retried          *prometheus.CounterVec
	verifyDuration   *prometheus.HistogramVec
	dispatchDuration *prometheus.HistogramVec
	active           prometheus.Gauge
}

// New registers and returns a Prometheus-backed Recorder against reg.
func New(reg prometheus.Registerer) Recorder {
	r := &promRecorder{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskforge", Name: "tasks_submitted_total",
			Help: "Total tasks submitted, by domain.",
		}, []string{"domain"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskforge", Name: "tasks_completed_total",
			Help: "Total tasks verified completed, by domain.",
		}, []string{"domain"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskforge", Name: "tasks_failed_total",
			Help: "Total tasks that terminated failed, by domain and reason.",
		}, []string{"domain", "reason"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskforge", Name: "tasks_retried_total",
			Help: "Total retry dispatches, by domain.",
		}, []string{"domain"}),
		verifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskforge", Name: "verification_duration_seconds",
			Help:    "Time spent in the completion verification pipeline.",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskforge", Name: "dispatch_duration_seconds",
			Help:    "Time spent waiting on an adapter's WaitForCompletion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"domain"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskforge", Name: "tasks_active",
			Help: "Tasks currently in a non-terminal status.",
		}),
	}
	reg.MustRegister(r.submitted, r.completed, r.failed, r.retried, r.verifyDuration, r.dispatchDuration, r.active)
	return r
}

func (r *promRecorder) TaskSubmitted(domain task.Domain) {
	r.submitted.WithLabelValues(string(domain)).Inc()
}

func (r *promRecorder) TaskCompleted(domain task.Domain, attempt int) {
	r.completed.WithLabelValues(string(domain)).Inc()
}

func (r *promRecorder) TaskFailed(domain task.Domain, reason string) {
	r.failed.WithLabelValues(string(domain), reason).Inc()
}

func (r *promRecorder) TaskRetried(domain task.Domain, attempt int) {
	r.retried.WithLabelValues(string(domain)).Inc()
}

func (r *promRecorder) VerificationDuration(domain task.Domain, seconds float64) {
	r.verifyDuration.WithLabelValues(string(domain)).Observe(seconds)
}

func (r *promRecorder) DispatchDuration(domain task.Domain, seconds float64) {
	r.dispatchDuration.WithLabelValues(string(domain)).Observe(seconds)
}

func (r *promRecorder) ActiveTasks(delta int) {
	r.active.Add(float64(delta))
}

// Noop is the Recorder used when enable_metrics is false.
type Noop struct{}

func (Noop) TaskSubmitted(task.Domain)                    {}
func (Noop) TaskCompleted(task.Domain, int)                {}
func (Noop) TaskFailed(task.Domain, string)                 {}
func (Noop) TaskRetried(task.Domain, int)                   {}
func (Noop) VerificationDuration(task.Domain, float64)      {}
func (Noop) DispatchDuration(task.Domain, float64)          {}
func (Noop) ActiveTasks(int)                                {}

var _ Recorder = Noop{}
var _ Recorder = (*promRecorder)(nil)
