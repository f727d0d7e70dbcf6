package lock

import (
	"testing"
	"time"

	"github.com/nodeforge/fleetengine/pkg/apierror"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCoordinator is an in-memory stand-in implementing exactly the
// coordinator interface, so lock policy can be tested without Raft.
type fakeCoordinator struct {
	clusterHolders map[string][]string
	clusterScope   map[string]types.LockScope
	nodeHolders    map[string]string
	gcLocks        int
	gcActions      int
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		clusterHolders: map[string][]string{},
		clusterScope:   map[string]types.LockScope{},
		nodeHolders:    map[string]string{},
	}
}

func (f *fakeCoordinator) AcquireClusterLock(clusterID, actionID string, scope types.LockScope) ([]string, error) {
	holders, ok := f.clusterHolders[clusterID]
	if !ok {
		f.clusterHolders[clusterID] = []string{actionID}
		f.clusterScope[clusterID] = scope
		return []string{actionID}, nil
	}
	if f.clusterScope[clusterID] == types.ScopeShared && scope == types.ScopeShared {
		holders = append(holders, actionID)
		f.clusterHolders[clusterID] = holders
		return append([]string{}, holders...), nil
	}
	return append([]string{}, holders...), nil
}

func (f *fakeCoordinator) ReleaseClusterLock(clusterID, actionID string) (bool, error) {
	holders := f.clusterHolders[clusterID]
	for i, h := range holders {
		if h == actionID {
			f.clusterHolders[clusterID] = append(holders[:i], holders[i+1:]...)
			if len(f.clusterHolders[clusterID]) == 0 {
				delete(f.clusterHolders, clusterID)
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCoordinator) StealClusterLock(clusterID, newActionID string) error {
	f.clusterHolders[clusterID] = []string{newActionID}
	f.clusterScope[clusterID] = types.ScopeExclusive
	return nil
}

func (f *fakeCoordinator) AcquireNodeLock(nodeID, actionID string) (string, error) {
	if holder, ok := f.nodeHolders[nodeID]; ok {
		return holder, nil
	}
	f.nodeHolders[nodeID] = actionID
	return actionID, nil
}

func (f *fakeCoordinator) ReleaseNodeLock(nodeID, actionID string) (bool, error) {
	if f.nodeHolders[nodeID] == actionID {
		delete(f.nodeHolders, nodeID)
		return true, nil
	}
	return false, nil
}

func (f *fakeCoordinator) StealNodeLock(nodeID, newActionID string) error {
	f.nodeHolders[nodeID] = newActionID
	return nil
}

func (f *fakeCoordinator) GCByEngine(engineID string) (int, int, error) {
	return f.gcLocks, f.gcActions, nil
}

func TestClusterLockExclusiveContention(t *testing.T) {
	coord := newFakeCoordinator()
	m := New(coord, 2, time.Millisecond)

	require.NoError(t, m.AcquireClusterLock("c1", "a1", types.ScopeExclusive))

	err := m.AcquireClusterLock("c1", "a2", types.ScopeExclusive)
	var lc *apierror.LockContentionError
	require.ErrorAs(t, err, &lc)
	assert.Equal(t, "a1", lc.Holder)
}

func TestClusterLockSharedCoexists(t *testing.T) {
	coord := newFakeCoordinator()
	m := New(coord, 0, time.Millisecond)

	require.NoError(t, m.AcquireClusterLock("c1", "a1", types.ScopeShared))
	require.NoError(t, m.AcquireClusterLock("c1", "a2", types.ScopeShared))
	assert.ElementsMatch(t, []string{"a1", "a2"}, coord.clusterHolders["c1"])
}

func TestNodeLockReleaseAllowsReacquire(t *testing.T) {
	coord := newFakeCoordinator()
	m := New(coord, 0, time.Millisecond)

	require.NoError(t, m.AcquireNodeLock("n1", "a1"))
	require.NoError(t, m.ReleaseNodeLock("n1", "a1"))
	require.NoError(t, m.AcquireNodeLock("n1", "a2"))
}

func TestIsDead(t *testing.T) {
	now := time.Now()
	alive := &types.Service{UpdatedAt: now.Add(-1 * time.Second)}
	dead := &types.Service{UpdatedAt: now.Add(-30 * time.Second)}

	assert.False(t, IsDead(alive, 10*time.Second, now))
	assert.True(t, IsDead(dead, 10*time.Second, now))
	assert.True(t, IsDead(&types.Service{Disabled: true, UpdatedAt: now}, 10*time.Second, now))
}

func TestReapEngine(t *testing.T) {
	coord := newFakeCoordinator()
	coord.gcLocks = 2
	coord.gcActions = 1
	m := New(coord, 0, time.Millisecond)

	locks, actions, err := m.ReapEngine("dead-engine")
	require.NoError(t, err)
	assert.Equal(t, 2, locks)
	assert.Equal(t, 1, actions)
}
