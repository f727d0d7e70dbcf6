package storage

import (
	"time"

	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// engineFailureReason is the fixed status_reason every action reaped from a
// dead engine gets, matched verbatim by callers that branch on it.
const engineFailureReason = "Engine failure"

// GCByEngine releases every lock held by engineID, marks every action it had
// RUNNING FAILED (reason "Engine failure"), and cascades that failure to the
// action's entire downstream closure. This is the store-level half of the
// dead-engine recovery sweep pkg/lock drives from the Service liveness
// records; the cascade is done here, in the same transaction as the lock
// release, rather than through pkg/depgraph, since depgraph itself depends
// on this package and cannot be called back into from it.
func (s *BoltStore) GCByEngine(engineID string) (int, int, error) {
	releasedLocks := 0
	releasedActions := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		var clusterLocks []*types.ClusterLock
		if err := forEachJSON(tx, bucketClusterLocks, func(_ string, l *types.ClusterLock) error {
			held := false
			remaining := l.ActionIDs[:0]
			for _, aid := range l.ActionIDs {
				var a types.Action
				ok, err := getJSON(tx, bucketActions, aid, &a)
				if err != nil {
					return err
				}
				if ok && a.Owner == engineID {
					held = true
					continue
				}
				remaining = append(remaining, aid)
			}
			if held {
				l.ActionIDs = remaining
				clusterLocks = append(clusterLocks, l)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, l := range clusterLocks {
			releasedLocks++
			if len(l.ActionIDs) == 0 {
				if err := del(tx, bucketClusterLocks, l.ClusterID); err != nil {
					return err
				}
				continue
			}
			if err := putJSON(tx, bucketClusterLocks, l.ClusterID, l); err != nil {
				return err
			}
		}

		var nodeLocksToDelete []string
		if err := forEachJSON(tx, bucketNodeLocks, func(key string, l *types.NodeLock) error {
			var a types.Action
			ok, err := getJSON(tx, bucketActions, l.ActionID, &a)
			if err != nil {
				return err
			}
			if ok && a.Owner == engineID {
				nodeLocksToDelete = append(nodeLocksToDelete, key)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, key := range nodeLocksToDelete {
			releasedLocks++
			if err := del(tx, bucketNodeLocks, key); err != nil {
				return err
			}
		}

		var stuck []*types.Action
		if err := forEachJSON(tx, bucketActions, func(_ string, a *types.Action) error {
			if a.Status == types.ActionRunning && a.Owner == engineID {
				stuck = append(stuck, a)
			}
			return nil
		}); err != nil {
			return err
		}

		now := clock()
		seen := map[string]bool{}
		for _, root := range stuck {
			n, err := cascadeFailLocked(tx, root, now, seen)
			if err != nil {
				return err
			}
			releasedActions += n
		}
		return nil
	})

	return releasedLocks, releasedActions, err
}

// cascadeFailLocked marks root and its entire DependedBy closure FAILED with
// engineFailureReason, within tx, the same work-queue walk
// pkg/depgraph.Graph.MarkFailed does over a live Store — duplicated here
// because depgraph cannot be imported back into storage. seen is shared
// across calls in the same GCByEngine transaction so two reaped actions
// with overlapping descendants only fail each shared descendant once.
func cascadeFailLocked(tx *bolt.Tx, root *types.Action, ts time.Time, seen map[string]bool) (int, error) {
	queue := []*types.Action{root}
	failed := 0

	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true

		a.Status = types.ActionFailed
		a.StatusReason = engineFailureReason
		a.Owner = ""
		a.EndTime = ts
		if err := putJSON(tx, bucketActions, a.ID, a); err != nil {
			return failed, err
		}
		failed++

		for depID := range a.DependedBy {
			var dep types.Action
			ok, err := getJSON(tx, bucketActions, depID, &dep)
			if err != nil {
				return failed, err
			}
			if ok {
				queue = append(queue, &dep)
			}
		}
	}
	return failed, nil
}
