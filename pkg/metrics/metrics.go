package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Coordinator / MasterAction metrics

	MasterActionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitekeeper_master_actions_active",
			Help: "Number of MasterActions currently in a non-terminal state",
		},
	)

	MasterActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitekeeper_master_actions_total",
			Help: "Total MasterActions finalized, by operation type and overall status",
		},
		[]string{"operation_type", "status"},
	)

	MasterActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitekeeper_master_action_duration_seconds",
			Help:    "Wall-clock duration of a MasterAction from submit to finalize",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"operation_type"},
	)

	MasterActionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitekeeper_master_actions_rejected_total",
			Help: "Total MasterAction submissions rejected, by reason",
		},
		[]string{"reason"},
	)

	// Dispatcher (C6) metrics

	DispatcherPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitekeeper_dispatcher_phase_duration_seconds",
			Help:    "Duration of a NodeActionDispatcher phase, by task type and phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type", "phase"},
	)

	NodeTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitekeeper_node_tasks_total",
			Help: "Total NodeTasks reaching a terminal state, by task type and final status",
		},
		[]string{"task_type", "status"},
	)

	NodeActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitekeeper_node_actions_total",
			Help: "Total NodeActions reaching a terminal state, by task type and outcome",
		},
		[]string{"task_type", "outcome"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitekeeper_task_retries_total",
			Help: "Total task retries issued, by task type",
		},
		[]string{"task_type"},
	)

	// Connection / health (C2, C3) metrics

	ConnectedAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitekeeper_connected_agents",
			Help: "Number of slaves currently connected",
		},
	)

	AgentsByConnectivity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sitekeeper_agents_by_connectivity",
			Help: "Number of known nodes by derived connectivity status",
		},
		[]string{"status"},
	)

	HealthSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitekeeper_health_sweep_duration_seconds",
			Help:    "Duration of one NodeHealthMonitor sweep cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	HeartbeatsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitekeeper_heartbeats_received_total",
			Help: "Total heartbeats received from any slave",
		},
	)

	// Journal (C4) metrics

	JournalWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitekeeper_journal_write_duration_seconds",
			Help:    "Duration of a Journal write-then-rename operation, by artifact kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"artifact"},
	)

	JournalRetentionPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitekeeper_journal_retention_pruned_total",
			Help: "Total archived MasterAction directories removed by the retention sweep",
		},
	)

	// Transport (C1) metrics

	TransportMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitekeeper_transport_messages_total",
			Help: "Total transport messages exchanged, by direction and message kind",
		},
		[]string{"direction", "kind"},
	)

	TransportSendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitekeeper_transport_send_failures_total",
			Help: "Total send failures, by message kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		MasterActionsActive,
		MasterActionsTotal,
		MasterActionDuration,
		MasterActionsRejected,
		DispatcherPhaseDuration,
		NodeTasksTotal,
		NodeActionsTotal,
		RetriesTotal,
		ConnectedAgents,
		AgentsByConnectivity,
		HealthSweepDuration,
		HeartbeatsReceivedTotal,
		JournalWriteDuration,
		JournalRetentionPrunedTotal,
		TransportMessagesTotal,
		TransportSendFailuresTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
