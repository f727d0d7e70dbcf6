package storage

import (
	"testing"
	"time"

	"github.com/nodeforge/fleetengine/pkg/apierror"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClusterCRUD(t *testing.T) {
	s := newTestStore(t)

	c := &types.Cluster{ID: "c1", Name: "web", Project: "p1", Status: types.ClusterActive, CreatedAt: time.Now()}
	require.NoError(t, s.CreateCluster(c))

	got, err := s.GetCluster("c1")
	require.NoError(t, err)
	assert.Equal(t, "web", got.Name)

	_, err = s.GetCluster("missing")
	assert.Error(t, err)

	require.NoError(t, s.DeleteCluster("c1"))
	_, err = s.GetCluster("c1")
	assert.Error(t, err)
}

func TestListClustersProjectScoping(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateCluster(&types.Cluster{ID: "c1", Name: "a", Project: "p1", CreatedAt: time.Now()}))
	require.NoError(t, s.CreateCluster(&types.Cluster{ID: "c2", Name: "b", Project: "p2", CreatedAt: time.Now()}))

	scoped, err := s.ListClusters(ListOptions{Project: "p1"})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "c1", scoped[0].ID)

	admin, err := s.ListClusters(ListOptions{IsAdmin: true})
	require.NoError(t, err)
	assert.Len(t, admin, 2)
}

func TestListClustersPagination(t *testing.T) {
	s := newTestStore(t)

	names := []string{"c", "a", "b"}
	for i, n := range names {
		require.NoError(t, s.CreateCluster(&types.Cluster{
			ID: string(rune('0' + i)), Name: n, Project: "p1",
			CreatedAt: time.Now(),
		}))
	}

	all, err := s.ListClusters(ListOptions{IsAdmin: true, Sort: "name:asc"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].Name, all[1].Name, all[2].Name})

	page, err := s.ListClusters(ListOptions{IsAdmin: true, Sort: "name:asc", Limit: 1, Marker: all[0].ID})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Name)
}

func TestResolveShortID(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateCluster(&types.Cluster{ID: "abcdef01", Name: "x", CreatedAt: time.Now()}))
	require.NoError(t, s.CreateCluster(&types.Cluster{ID: "abcdef02", Name: "y", CreatedAt: time.Now()}))

	_, err := s.ResolveShortID("cluster", "abcdef")
	var mc *apierror.MultipleChoicesError
	assert.ErrorAs(t, err, &mc)

	id, err := s.ResolveShortID("cluster", "abcdef01")
	require.NoError(t, err)
	assert.Equal(t, "abcdef01", id)

	_, err = s.ResolveShortID("cluster", "nope")
	require.Error(t, err)
}

func TestClaimReadyActionIsAtMostOnce(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateAction(&types.Action{ID: "a1", Status: types.ActionReady, CreatedAt: time.Now()}))

	claimed, err := s.ClaimReadyAction("engine-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "engine-1", claimed.Owner)
	assert.Equal(t, types.ActionRunning, claimed.Status)

	again, err := s.ClaimReadyAction("engine-2")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestGCByEngineFailsOwnedActionsAndCascade(t *testing.T) {
	s := newTestStore(t)

	root := &types.Action{ID: "a1", Target: "c1", Status: types.ActionRunning, Owner: "dead-engine", CreatedAt: time.Now()}
	dependent := &types.Action{ID: "a2", Target: "c1", Status: types.ActionWaiting, DependsOn: map[string]bool{"a1": true}, CreatedAt: time.Now()}
	root.DependedBy = map[string]bool{"a2": true}
	require.NoError(t, s.CreateAction(root))
	require.NoError(t, s.CreateAction(dependent))
	_, err := s.AcquireClusterLock("c1", "a1", types.ScopeExclusive)
	require.NoError(t, err)

	locks, actions, err := s.GCByEngine("dead-engine")
	require.NoError(t, err)
	assert.Equal(t, 1, locks)
	assert.Equal(t, 2, actions)

	gotRoot, err := s.GetAction("a1")
	require.NoError(t, err)
	assert.Equal(t, types.ActionFailed, gotRoot.Status)
	assert.Equal(t, "Engine failure", gotRoot.StatusReason)
	assert.Empty(t, gotRoot.Owner)

	gotDependent, err := s.GetAction("a2")
	require.NoError(t, err)
	assert.Equal(t, types.ActionFailed, gotDependent.Status)
	assert.Equal(t, "Engine failure", gotDependent.StatusReason)

	gotLock, err := s.GetClusterLock("c1")
	require.NoError(t, err)
	assert.Nil(t, gotLock)
}

func TestPruneEventsNeverPurgesByDefault(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendEvent(&types.Event{ClusterID: "c1", OType: "cluster"}))
	}

	n, err := s.PruneEvents("c1", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	events, err := s.ListEventsByCluster("c1", ListOptions{})
	require.NoError(t, err)
	assert.Len(t, events, 5)

	n, err = s.PruneEvents("c1", 2, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	events, err = s.ListEventsByCluster("c1", ListOptions{})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
