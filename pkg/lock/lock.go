// Package lock implements the two-scope locking policy that serializes
// membership-changing operations on a cluster and identity-changing
// operations on a node, on top of the atomic acquire/release/steal
// primitives in pkg/storage and pkg/coordinator.
package lock

import (
	"time"

	"github.com/nodeforge/fleetengine/pkg/apierror"
	"github.com/nodeforge/fleetengine/pkg/log"
	"github.com/nodeforge/fleetengine/pkg/metrics"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/rs/zerolog"
)

// coordinator is the subset of *coordinator.Coordinator the lock manager
// needs; kept narrow so tests can fake it without a real Raft group.
type coordinator interface {
	AcquireClusterLock(clusterID, actionID string, scope types.LockScope) ([]string, error)
	ReleaseClusterLock(clusterID, actionID string) (bool, error)
	StealClusterLock(clusterID, newActionID string) error
	AcquireNodeLock(nodeID, actionID string) (string, error)
	ReleaseNodeLock(nodeID, actionID string) (bool, error)
	StealNodeLock(nodeID, newActionID string) error
	GCByEngine(engineID string) (int, int, error)
}

// Manager enforces cluster/node lock acquisition with bounded retry, and
// drives the dead-engine recovery sweep.
type Manager struct {
	coord         coordinator
	retryTimes    int
	retryInterval time.Duration
	logger        zerolog.Logger
}

// New builds a Manager. retryTimes and retryInterval come straight from
// config.Config's lock_retry_times/lock_retry_interval.
func New(coord coordinator, retryTimes int, retryInterval time.Duration) *Manager {
	return &Manager{
		coord:         coord,
		retryTimes:    retryTimes,
		retryInterval: retryInterval,
		logger:        log.WithComponent("lock"),
	}
}

// AcquireClusterLock blocks with bounded retry until actionID holds a
// compatible cluster lock, or returns a LockContentionError once retries
// are exhausted.
func (m *Manager) AcquireClusterLock(clusterID, actionID string, scope types.LockScope) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.LockWaitDuration, "cluster")

	var lastHolders []string
	for attempt := 0; attempt <= m.retryTimes; attempt++ {
		holders, err := m.coord.AcquireClusterLock(clusterID, actionID, scope)
		if err != nil {
			return err
		}
		if contains(holders, actionID) {
			return nil
		}
		lastHolders = holders
		metrics.LockContentionTotal.WithLabelValues("cluster").Inc()
		if attempt < m.retryTimes {
			m.logger.Debug().Str("cluster_id", clusterID).Str("action_id", actionID).
				Int("attempt", attempt+1).Msg("cluster lock contended, retrying")
			time.Sleep(m.retryInterval)
		}
	}

	holder := ""
	if len(lastHolders) > 0 {
		holder = lastHolders[0]
	}
	return &apierror.LockContentionError{Kind: "cluster", ID: clusterID, Holder: holder}
}

// ReleaseClusterLock releases actionID's hold on clusterID, a no-op if it
// was not a holder.
func (m *Manager) ReleaseClusterLock(clusterID, actionID string) error {
	_, err := m.coord.ReleaseClusterLock(clusterID, actionID)
	return err
}

// StealClusterLock forcibly installs newActionID as the sole exclusive
// holder, used only by admin/forced operations.
func (m *Manager) StealClusterLock(clusterID, newActionID string) error {
	metrics.LockStolenTotal.WithLabelValues("cluster").Inc()
	return m.coord.StealClusterLock(clusterID, newActionID)
}

// AcquireNodeLock blocks with bounded retry until actionID holds nodeID's
// lock, or returns a LockContentionError.
func (m *Manager) AcquireNodeLock(nodeID, actionID string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.LockWaitDuration, "node")

	var lastHolder string
	for attempt := 0; attempt <= m.retryTimes; attempt++ {
		holder, err := m.coord.AcquireNodeLock(nodeID, actionID)
		if err != nil {
			return err
		}
		if holder == actionID {
			return nil
		}
		lastHolder = holder
		metrics.LockContentionTotal.WithLabelValues("node").Inc()
		if attempt < m.retryTimes {
			m.logger.Debug().Str("node_id", nodeID).Str("action_id", actionID).
				Int("attempt", attempt+1).Msg("node lock contended, retrying")
			time.Sleep(m.retryInterval)
		}
	}
	return &apierror.LockContentionError{Kind: "node", ID: nodeID, Holder: lastHolder}
}

// ReleaseNodeLock releases actionID's hold on nodeID, a no-op if it was not
// the holder.
func (m *Manager) ReleaseNodeLock(nodeID, actionID string) error {
	_, err := m.coord.ReleaseNodeLock(nodeID, actionID)
	return err
}

// StealNodeLock forcibly installs newActionID as nodeID's holder.
func (m *Manager) StealNodeLock(nodeID, newActionID string) error {
	metrics.LockStolenTotal.WithLabelValues("node").Inc()
	return m.coord.StealNodeLock(nodeID, newActionID)
}

// ReapEngine releases every lock held by engineID and fails its RUNNING
// actions (and their downstream closure), the recovery half of a
// dead-engine sweep. Returns the number of locks released and actions
// failed.
func (m *Manager) ReapEngine(engineID string) (int, int, error) {
	locks, actions, err := m.coord.GCByEngine(engineID)
	if err != nil {
		return 0, 0, err
	}
	if locks > 0 || actions > 0 {
		m.logger.Warn().Err(&apierror.EngineFailureError{EngineID: engineID}).
			Int("locks_released", locks).Int("actions_failed", actions).
			Msg("reaped dead engine")
	}
	return locks, actions, nil
}

// IsDead applies the liveness rule shared by LockManager GC and the health
// registry's claim-stealing: an engine is dead once its last heartbeat is
// older than 2x the periodic interval.
func IsDead(svc *types.Service, periodicInterval time.Duration, now time.Time) bool {
	if svc.Disabled {
		return true
	}
	return now.Sub(svc.UpdatedAt) > 2*periodicInterval
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
