// Package metrics declares the Prometheus collectors shared by the
// Coordinator, AgentHarness, and ControlAPI: stage latency/outcome
// histograms, queue depth gauges, and task lifecycle counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mcp"

// Metrics bundles every collector this process registers. A nil *Metrics
// is valid everywhere it's accepted: all record methods are nil-receiver
// safe, so wiring metrics in is optional for callers that don't care.
type Metrics struct {
	stageDuration   *prometheus.HistogramVec
	stageRetries    *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	tasksCreated    *prometheus.CounterVec
	tasksCompleted  *prometheus.CounterVec
	tasksActive     prometheus.Gauge
	queueDepth      *prometheus.GaugeVec
	agentHeartbeats *prometheus.CounterVec
}

// MustNewMetrics registers every collector against reg and panics on a
// duplicate-registration error, the way a process that can't observe
// itself correctly shouldn't start.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent executing one DAG stage, labeled by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		stageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_retries_total",
			Help:      "Count of stage executions that were retried after a transient failure or timeout.",
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Count of stage executions that ended in terminal failure, labeled by reason.",
		}, []string{"stage", "reason"}),
		tasksCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Count of tasks created, labeled by DAG template.",
		}, []string{"template"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Count of tasks that reached a terminal status.",
		}, []string{"status"}),
		tasksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_active",
			Help:      "Number of tasks currently in_progress.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Last observed message count for a stage queue.",
		}, []string{"queue"}),
		agentHeartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_heartbeats_total",
			Help:      "Count of health heartbeats emitted by an agent identity.",
		}, []string{"agent"}),
	}

	reg.MustRegister(
		m.stageDuration, m.stageRetries, m.stageFailures,
		m.tasksCreated, m.tasksCompleted, m.tasksActive,
		m.queueDepth, m.agentHeartbeats,
	)
	return m
}

// ObserveStageDuration records how long one stage execution took and how
// it ended.
func (m *Metrics) ObserveStageDuration(stage, status string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(seconds)
}

// IncStageRetry records a stage execution that is being retried.
func (m *Metrics) IncStageRetry(stage string) {
	if m == nil {
		return
	}
	m.stageRetries.WithLabelValues(stage).Inc()
}

// IncStageFailure records a stage execution that ended in terminal failure.
func (m *Metrics) IncStageFailure(stage, reason string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage, reason).Inc()
}

// IncTaskCreated records a newly created task and bumps the active gauge.
func (m *Metrics) IncTaskCreated(template string) {
	if m == nil {
		return
	}
	m.tasksCreated.WithLabelValues(template).Inc()
	m.tasksActive.Inc()
}

// IncTaskCompleted records a task reaching a terminal status and drops the
// active gauge.
func (m *Metrics) IncTaskCompleted(status string) {
	if m == nil {
		return
	}
	m.tasksCompleted.WithLabelValues(status).Inc()
	m.tasksActive.Dec()
}

// SetQueueDepth records the last observed depth for a stage queue.
func (m *Metrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// IncHeartbeat records one health heartbeat from an agent identity.
func (m *Metrics) IncHeartbeat(agent string) {
	if m == nil {
		return
	}
	m.agentHeartbeats.WithLabelValues(agent).Inc()
}
