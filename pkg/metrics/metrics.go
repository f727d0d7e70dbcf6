package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster/node inventory

	ClustersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetengine_clusters_total",
			Help: "Total number of clusters by status",
		},
		[]string{"status"},
	)

	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetengine_nodes_total",
			Help: "Total number of nodes by status",
		},
		[]string{"status"},
	)

	// Raft coordination

	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetengine_raft_is_leader",
			Help: "Whether this engine is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetengine_raft_peers_total",
			Help: "Total number of Raft peers in the coordination group",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetengine_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetengine_raft_apply_duration_seconds",
			Help:    "Time taken for raft.Apply to return in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Action dispatch

	ActionsClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetengine_actions_claimed_total",
			Help: "Total number of actions claimed by this engine, by kind",
		},
		[]string{"kind"},
	)

	ActionClaimLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetengine_action_claim_latency_seconds",
			Help:    "Time from an action becoming READY to being claimed",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetengine_action_duration_seconds",
			Help:    "Time taken to execute an action, by kind and terminal status",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600},
		},
		[]string{"kind", "status"},
	)

	ActionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetengine_actions_in_flight",
			Help: "Number of actions currently RUNNING on this engine",
		},
	)

	ActionQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetengine_action_queue_depth",
			Help: "Number of READY actions waiting to be claimed",
		},
	)

	// Locking

	LockWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetengine_lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire a lock, by scope",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scope"}, // "cluster" or "node"
	)

	LockContentionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetengine_lock_contention_total",
			Help: "Total number of lock acquisition attempts that found the lock held",
		},
		[]string{"scope"},
	)

	LockStolenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetengine_lock_stolen_total",
			Help: "Total number of locks forcibly stolen by another action",
		},
		[]string{"scope"},
	)

	// Dependency graph

	DependencyCascadeSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetengine_dependency_cascade_size",
			Help:    "Number of actions touched by a single failure/cancel cascade",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// Health registry

	HealthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetengine_health_checks_total",
			Help: "Total number of cluster health checks originated, by outcome",
		},
		[]string{"outcome"}, // "healthy", "recovered", "error"
	)

	// Engine liveness

	EnginesAliveTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetengine_engines_alive_total",
			Help: "Number of engine processes considered alive by the liveness sweep",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ClustersTotal,
		NodesTotal,
		RaftLeader,
		RaftPeers,
		RaftAppliedIndex,
		RaftApplyDuration,
		ActionsClaimedTotal,
		ActionClaimLatency,
		ActionDuration,
		ActionsInFlight,
		ActionQueueDepth,
		LockWaitDuration,
		LockContentionTotal,
		LockStolenTotal,
		DependencyCascadeSize,
		HealthChecksTotal,
		EnginesAliveTotal,
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
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
