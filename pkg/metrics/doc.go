/*
Package metrics provides Prometheus metrics collection and exposition for
fleetengine.

The metrics package defines and registers every fleetengine metric using the
Prometheus client library, giving observability into cluster/node inventory,
Raft coordination health, action dispatch throughput, lock contention, and
dependency-graph cascade size. Metrics are exposed via an HTTP endpoint for
scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                  │          │
	│  │                                              │          │
	│  │  Inventory: clusters, nodes by status       │          │
	│  │  Raft: leader, peers, applied index         │          │
	│  │  Dispatch: claims, duration, queue depth    │          │
	│  │  Locking: wait time, contention, steals     │          │
	│  │  Dependency graph: cascade size             │          │
	│  │  Health registry: checks by outcome         │          │
	│  │  Engine liveness: alive engine count        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition        │          │
	│  │  - Handler: promhttp.Handler()               │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

# Collection

Most counters and histograms are incremented inline by the package that owns
the transition they describe (pkg/dispatcher increments ActionsClaimedTotal
and observes ActionDuration when an action finishes; pkg/lock observes
LockWaitDuration and increments LockContentionTotal around its CAS acquire
and LockStolenTotal on a forced steal). ActionClaimLatency and
HealthChecksTotal are defined and registered, but no package records them.
Gauges that reflect current store state rather than a
transition — cluster/node counts by status, the READY queue depth, Raft
leadership and log position, alive engine count — are sampled on an interval
by Collector, since nothing else touches them on every tick.

# Metrics Catalog

Inventory:

fleetengine_clusters_total{status}:
  - Type: Gauge
  - Description: Total clusters by status (INIT, ACTIVE, ERROR, ...)

fleetengine_nodes_total{status}:
  - Type: Gauge
  - Description: Total nodes by status

Raft:

fleetengine_raft_is_leader:
  - Type: Gauge
  - Description: Whether this engine is the Raft leader (1/0)

fleetengine_raft_peers_total:
  - Type: Gauge
  - Description: Total Raft peers in the coordination group

fleetengine_raft_applied_index:
  - Type: Gauge
  - Description: Last applied Raft log index

fleetengine_raft_apply_duration_seconds:
  - Type: Histogram
  - Description: Time taken for raft.Apply to return

Action dispatch:

fleetengine_actions_claimed_total{kind}:
  - Type: Counter
  - Description: Actions claimed by this engine, by kind

fleetengine_action_claim_latency_seconds:
  - Type: Histogram
  - Description: Time from an action becoming READY to being claimed

fleetengine_action_duration_seconds{kind,status}:
  - Type: Histogram
  - Description: Time to execute an action, by kind and terminal status

fleetengine_actions_in_flight:
  - Type: Gauge
  - Description: Actions currently RUNNING on this engine

fleetengine_action_queue_depth:
  - Type: Gauge
  - Description: READY actions waiting to be claimed

Locking:

fleetengine_lock_wait_duration_seconds{scope}:
  - Type: Histogram
  - Description: Time spent waiting to acquire a lock ("cluster" or "node")

fleetengine_lock_contention_total{scope}:
  - Type: Counter
  - Description: Acquisition attempts that found the lock already held

fleetengine_lock_stolen_total{scope}:
  - Type: Counter
  - Description: Locks forcibly taken over by StealClusterLock/StealNodeLock

Dependency graph:

fleetengine_dependency_cascade_size:
  - Type: Histogram
  - Description: Number of actions touched by a single failure/cancel cascade

Health registry:

fleetengine_health_checks_total{outcome}:
  - Type: Counter
  - Description: Cluster health checks originated, by outcome ("healthy",
    "recovered", "error")

Engine liveness:

fleetengine_engines_alive_total:
  - Type: Gauge
  - Description: Engine processes not disabled whose liveness record was
    updated within the last hour

# Usage

Updating gauges directly:

	metrics.ActionQueueDepth.Set(float64(depth))
	metrics.ActionsInFlight.Inc()
	metrics.ActionsInFlight.Dec()

Incrementing counters:

	metrics.ActionsClaimedTotal.WithLabelValues(string(action.Action)).Inc()
	metrics.LockStolenTotal.WithLabelValues("cluster").Inc()

Recording histogram observations with the Timer helper:

	timer := metrics.NewTimer()
	err := engine.Execute(ctx, action)
	timer.ObserveDurationVec(metrics.ActionDuration, string(action.Action), terminalStatus(err))

Running the periodic sampler:

	collector := metrics.NewCollector(coord)
	collector.Start()
	defer collector.Stop()

Exposing the endpoint:

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - pkg/dispatcher: increments dispatch counters, observes action duration
  - pkg/lock: observes wait duration, increments contention/steal counters
  - pkg/depgraph: observes cascade size on failure/cancel propagation
  - pkg/coordinator: observes raft.Apply duration
  - pkg/coordinator: Collector samples Store() and raft Stats() on an interval
  - Prometheus: scrapes /metrics

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration

Label Discipline:
  - Labels are bounded enums (status, kind, scope, outcome), never IDs
  - Keep label count low per metric

Timer Pattern:
  - Create timer at operation start
  - Call ObserveDuration/ObserveDurationVec when the operation finishes

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
