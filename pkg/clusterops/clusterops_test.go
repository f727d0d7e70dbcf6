package clusterops

import (
	"testing"
	"time"

	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/stretchr/testify/require"
)

// directCoordinator satisfies the Coordinator interface by calling straight
// through to a local Store, standing in for pkg/coordinator's replicated
// writes in tests that don't need a raft cluster.
type directCoordinator struct {
	store storage.Store
}

func (d *directCoordinator) Store() storage.Store                { return d.store }
func (d *directCoordinator) CreateCluster(c *types.Cluster) error { return d.store.CreateCluster(c) }
func (d *directCoordinator) CreateAction(a *types.Action) error   { return d.store.CreateAction(a) }

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(&directCoordinator{store: store}), store
}

func mustProfile(t *testing.T, store storage.Store) *types.Profile {
	t.Helper()
	p := &types.Profile{ID: "profile-1", Name: "web", Type: "os.nova.server-1.0", CreatedAt: time.Now()}
	require.NoError(t, store.CreateProfile(p))
	return p
}

func TestCreateClusterOriginatesRootAction(t *testing.T) {
	svc, store := newTestService(t)
	profile := mustProfile(t, store)

	c, action, err := svc.CreateCluster(CreateClusterRequest{
		Name:            "web-cluster",
		ProfileID:       profile.ID,
		MinSize:         1,
		MaxSize:         5,
		DesiredCapacity: 3,
	})
	require.NoError(t, err)
	require.Equal(t, types.ClusterInit, c.Status)
	require.Equal(t, types.ClusterCreate, action.Action)
	require.Equal(t, c.ID, action.Target)
	require.Equal(t, types.ActionReady, action.Status)

	persisted, err := store.GetCluster(c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, persisted.ID)
}

func TestCreateClusterRejectsInvalidSize(t *testing.T) {
	svc, store := newTestService(t)
	profile := mustProfile(t, store)

	_, _, err := svc.CreateCluster(CreateClusterRequest{
		Name: "bad", ProfileID: profile.ID, MinSize: 5, MaxSize: 10, DesiredCapacity: 1,
	})
	require.Error(t, err)
}

func TestScaleInRejectsNonPositiveCount(t *testing.T) {
	svc, store := newTestService(t)
	profile := mustProfile(t, store)
	c, _, err := svc.CreateCluster(CreateClusterRequest{Name: "c", ProfileID: profile.ID, MaxSize: 5, DesiredCapacity: 2})
	require.NoError(t, err)
	_ = store

	_, err = svc.ScaleIn(c.ID, 0)
	require.Error(t, err)
}

func TestUpdateClusterBuildsWavePlan(t *testing.T) {
	svc, store := newTestService(t)
	profile := mustProfile(t, store)
	c, _, err := svc.CreateCluster(CreateClusterRequest{Name: "c", ProfileID: profile.ID, MaxSize: 5, DesiredCapacity: 2})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, store.CreateNode(&types.Node{
			ID: c.ID + "-n" + string(rune('0'+i)), ClusterID: c.ID, ProfileID: profile.ID,
			Index: i, Status: types.NodeActive, CreatedAt: time.Now(),
		}))
	}
	newProfile := &types.Profile{ID: "profile-2", Name: "web-v2", Type: "os.nova.server-1.0", CreatedAt: time.Now()}
	require.NoError(t, store.CreateProfile(newProfile))

	action, err := svc.UpdateCluster(c.ID, UpdateRequest{NewProfileID: newProfile.ID, BatchSize: 1})
	require.NoError(t, err)
	plan, ok := action.Inputs["update_plan"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, plan, 2)
}

func TestDeleteClusterNotFoundAfterSoftDelete(t *testing.T) {
	svc, store := newTestService(t)
	profile := mustProfile(t, store)
	c, _, err := svc.CreateCluster(CreateClusterRequest{Name: "c", ProfileID: profile.ID, MaxSize: 5, DesiredCapacity: 0})
	require.NoError(t, err)

	now := time.Now()
	c.DeletedAt = &now
	require.NoError(t, store.UpdateCluster(c))

	_, err = svc.DeleteCluster(c.ID)
	require.Error(t, err)
}
