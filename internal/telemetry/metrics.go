package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency, shared across every
// route the chi mux serves.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "fleetforge",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// CommandsEnqueuedTotal counts commands appended to a host's FIFO queue, by
// command type.
var CommandsEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fleetforge",
		Subsystem: "commands",
		Name:      "enqueued_total",
		Help:      "Total number of commands enqueued, by command type.",
	},
	[]string{"cmd_type"},
)

// CommandsAckedTotal counts agent acks, by command type.
var CommandsAckedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fleetforge",
		Subsystem: "commands",
		Name:      "acked_total",
		Help:      "Total number of commands acked by an agent, by command type.",
	},
	[]string{"cmd_type"},
)

// CommandsExitTotal counts reported exit codes, bucketed into success/
// failure so a dashboard does not need to enumerate every exit code value.
var CommandsExitTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fleetforge",
		Subsystem: "commands",
		Name:      "exit_total",
		Help:      "Total number of command exit-code reports, by command type and outcome.",
	},
	[]string{"cmd_type", "outcome"},
)

// CommandsStaleRecoveredTotal counts commands the reconciler force-recovered
// for exceeding the staleness window.
var CommandsStaleRecoveredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "fleetforge",
		Subsystem: "commands",
		Name:      "stale_recovered_total",
		Help:      "Total number of commands force-recovered by the reconciler for exceeding the staleness window.",
	},
)

// SchedulerCandidatesTotal records how many placement candidates a
// SelectCandidates call returned (0, 1, or 2).
var SchedulerCandidatesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fleetforge",
		Subsystem: "scheduler",
		Name:      "candidates_total",
		Help:      "Total number of placement candidate sets returned, bucketed by candidate count.",
	},
	[]string{"count"},
)

// NodeLifecycleTransitionsTotal counts node status transitions, by the
// resulting status.
var NodeLifecycleTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fleetforge",
		Subsystem: "nodes",
		Name:      "lifecycle_transitions_total",
		Help:      "Total number of node lifecycle status transitions, by resulting status.",
	},
	[]string{"status"},
)

// AuthFailuresTotal counts claims.Authorize failures, by error kind.
var AuthFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fleetforge",
		Subsystem: "auth",
		Name:      "failures_total",
		Help:      "Total number of authorization failures, by error kind.",
	},
	[]string{"kind"},
)

// NotificationsSentTotal counts best-effort external notifications, by
// provider.
var NotificationsSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "fleetforge",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Total number of external notifications sent, by provider.",
	},
	[]string{"provider"},
)

// All returns every control-plane-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		CommandsEnqueuedTotal,
		CommandsAckedTotal,
		CommandsExitTotal,
		CommandsStaleRecoveredTotal,
		SchedulerCandidatesTotal,
		NodeLifecycleTransitionsTotal,
		AuthFailuresTotal,
		NotificationsSentTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors, the shared HTTPRequestDuration metric, and any additional
// collectors passed as arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
