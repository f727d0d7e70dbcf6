package storage

import (
	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func (s *BoltStore) GetClusterLock(clusterID string) (*types.ClusterLock, error) {
	var l types.ClusterLock
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketClusterLocks, clusterID, &l)
		found = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &l, nil
}

func (s *BoltStore) PutClusterLock(l *types.ClusterLock) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketClusterLocks, l.ClusterID, l)
	})
}

func (s *BoltStore) DeleteClusterLock(clusterID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketClusterLocks, clusterID)
	})
}

// AcquireClusterLock attempts to add actionID to clusterID's holder set
// under scope, in a single transaction so two concurrent callers never both
// believe they won an exclusive lock. Compatibility rule: EXCLUSIVE denies
// any existing holder; SHARED denies only an existing EXCLUSIVE holder.
// Returns the resulting holder set; actionID is absent from it iff
// acquisition failed.
func (s *BoltStore) AcquireClusterLock(clusterID, actionID string, scope types.LockScope) ([]string, error) {
	var holders []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		var l types.ClusterLock
		ok, err := getJSON(tx, bucketClusterLocks, clusterID, &l)
		if err != nil {
			return err
		}
		if !ok {
			l = types.ClusterLock{ClusterID: clusterID, Scope: scope, ActionIDs: []string{actionID}}
			holders = append([]string{}, l.ActionIDs...)
			return putJSON(tx, bucketClusterLocks, clusterID, &l)
		}

		compatible := l.Scope == types.ScopeShared && scope == types.ScopeShared
		if !compatible {
			holders = append([]string{}, l.ActionIDs...)
			return nil
		}
		l.ActionIDs = append(l.ActionIDs, actionID)
		holders = append([]string{}, l.ActionIDs...)
		return putJSON(tx, bucketClusterLocks, clusterID, &l)
	})
	return holders, err
}

// ReleaseClusterLock removes actionID from clusterID's holder set, deleting
// the row once empty. Returns true iff actionID was actually a holder.
func (s *BoltStore) ReleaseClusterLock(clusterID, actionID string) (bool, error) {
	var removed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		var l types.ClusterLock
		ok, err := getJSON(tx, bucketClusterLocks, clusterID, &l)
		if err != nil || !ok {
			return err
		}
		idx := indexOf(l.ActionIDs, actionID)
		if idx < 0 {
			return nil
		}
		removed = true
		l.ActionIDs = append(l.ActionIDs[:idx], l.ActionIDs[idx+1:]...)
		if len(l.ActionIDs) == 0 {
			return del(tx, bucketClusterLocks, clusterID)
		}
		return putJSON(tx, bucketClusterLocks, clusterID, &l)
	})
	return removed, err
}

// StealClusterLock unconditionally replaces clusterID's holders with
// {newActionID} in EXCLUSIVE scope. Used only by admin/forced operations;
// prior holders are not notified and must detect the loss at their next
// lock-aware checkpoint.
func (s *BoltStore) StealClusterLock(clusterID, newActionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		l := types.ClusterLock{ClusterID: clusterID, Scope: types.ScopeExclusive, ActionIDs: []string{newActionID}}
		return putJSON(tx, bucketClusterLocks, clusterID, &l)
	})
}

func (s *BoltStore) GetNodeLock(nodeID string) (*types.NodeLock, error) {
	var l types.NodeLock
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketNodeLocks, nodeID, &l)
		found = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &l, nil
}

func (s *BoltStore) PutNodeLock(l *types.NodeLock) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketNodeLocks, l.NodeID, l)
	})
}

func (s *BoltStore) DeleteNodeLock(nodeID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketNodeLocks, nodeID)
	})
}

// AcquireNodeLock is a CAS-style insert: if nodeID has no holder, actionID
// becomes the holder; either way, the current holder is returned, so the
// caller compares it against actionID to know whether it won.
func (s *BoltStore) AcquireNodeLock(nodeID, actionID string) (string, error) {
	var holder string
	err := s.db.Update(func(tx *bolt.Tx) error {
		var l types.NodeLock
		ok, err := getJSON(tx, bucketNodeLocks, nodeID, &l)
		if err != nil {
			return err
		}
		if ok {
			holder = l.ActionID
			return nil
		}
		l = types.NodeLock{NodeID: nodeID, ActionID: actionID}
		holder = actionID
		return putJSON(tx, bucketNodeLocks, nodeID, &l)
	})
	return holder, err
}

// ReleaseNodeLock deletes the lock iff actionID is the current holder.
func (s *BoltStore) ReleaseNodeLock(nodeID, actionID string) (bool, error) {
	var removed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		var l types.NodeLock
		ok, err := getJSON(tx, bucketNodeLocks, nodeID, &l)
		if err != nil || !ok || l.ActionID != actionID {
			return err
		}
		removed = true
		return del(tx, bucketNodeLocks, nodeID)
	})
	return removed, err
}

// StealNodeLock unconditionally installs newActionID as the holder.
func (s *BoltStore) StealNodeLock(nodeID, newActionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		l := types.NodeLock{NodeID: nodeID, ActionID: newActionID}
		return putJSON(tx, bucketNodeLocks, nodeID, &l)
	})
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}
