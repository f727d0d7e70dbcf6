package depgraph

import (
	"testing"
	"time"

	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mkAction(t *testing.T, s storage.Store, id string, status types.ActionStatus) *types.Action {
	t.Helper()
	a := &types.Action{ID: id, Status: status, CreatedAt: time.Now()}
	require.NoError(t, s.CreateAction(a))
	return a
}

func TestFanInBecomesReadyOnlyWhenAllParentsSucceed(t *testing.T) {
	s := newTestStore(t)
	g := New(s, nil)

	p1 := mkAction(t, s, "p1", types.ActionRunning)
	p2 := mkAction(t, s, "p2", types.ActionRunning)
	child := mkAction(t, s, "child", types.ActionInit)

	require.NoError(t, g.AddDependency([]*types.Action{p1, p2}, child))
	child, _ = s.GetAction("child")
	require.Equal(t, types.ActionWaiting, child.Status)

	require.NoError(t, g.MarkSucceeded(p1, time.Now()))
	child, _ = s.GetAction("child")
	require.Equal(t, types.ActionWaiting, child.Status, "still waiting on p2")

	require.NoError(t, g.MarkSucceeded(p2, time.Now()))
	child, _ = s.GetAction("child")
	require.Equal(t, types.ActionReady, child.Status)
	require.Equal(t, "dependencies satisfied", child.StatusReason)
}

func TestSingleFailedParentFailsDownstreamClosure(t *testing.T) {
	s := newTestStore(t)
	g := New(s, nil)

	root := mkAction(t, s, "root", types.ActionRunning)
	mid := mkAction(t, s, "mid", types.ActionWaiting)
	leaf := mkAction(t, s, "leaf", types.ActionWaiting)

	require.NoError(t, g.AddDependency([]*types.Action{root}, mid))
	root, _ = s.GetAction("root")
	mid, _ = s.GetAction("mid")
	require.NoError(t, g.AddDependency([]*types.Action{mid}, leaf))
	root, _ = s.GetAction("root")

	require.NoError(t, g.MarkFailed(root, time.Now(), "boom"))

	mid, _ = s.GetAction("mid")
	leaf, _ = s.GetAction("leaf")
	require.Equal(t, types.ActionFailed, mid.Status)
	require.Equal(t, types.ActionFailed, leaf.Status)
	require.Equal(t, "boom", leaf.StatusReason)
}

func TestDelDependencyIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	g := New(s, nil)

	p := mkAction(t, s, "p", types.ActionRunning)
	child := mkAction(t, s, "child", types.ActionInit)
	require.NoError(t, g.AddDependency([]*types.Action{p}, child))

	child, _ = s.GetAction("child")
	p, _ = s.GetAction("p")
	require.NoError(t, g.DelDependency([]*types.Action{p}, child))
	require.NoError(t, g.DelDependency([]*types.Action{p}, child))

	child, _ = s.GetAction("child")
	require.Equal(t, types.ActionReady, child.Status)
}
