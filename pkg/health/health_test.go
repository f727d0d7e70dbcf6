package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/stretchr/testify/require"
)

// directCoordinator satisfies the Coordinator interface over a local Store,
// standing in for pkg/coordinator's replicated writes in tests that don't
// need a raft cluster. Mirrors pkg/clusterops's test helper of the same name.
type directCoordinator struct {
	store storage.Store
}

func (d *directCoordinator) Store() storage.Store { return d.store }

func (d *directCoordinator) ClaimRegistryEntry(clusterID, engineID string, now time.Time) (*types.RegistryEntry, error) {
	return d.store.ClaimRegistryEntry(clusterID, engineID, now)
}

func (d *directCoordinator) StealRegistryEntry(clusterID, engineID string, now time.Time) error {
	return d.store.StealRegistryEntry(clusterID, engineID, now)
}

func newTestCoord(t *testing.T) *directCoordinator {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &directCoordinator{store: store}
}

type fakeOriginator struct {
	mu     sync.Mutex
	checks []string
}

func (o *fakeOriginator) Check(clusterID string) (*types.Action, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checks = append(o.checks, clusterID)
	return &types.Action{ID: "a1", Action: types.ClusterCheck, Target: clusterID}, nil
}

func (o *fakeOriginator) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.checks)
}

func TestSweepClaimsUnclaimedEnabledEntry(t *testing.T) {
	coord := newTestCoord(t)
	require.NoError(t, coord.store.PutRegistryEntry(&types.RegistryEntry{ClusterID: "c1", Enabled: true, Interval: time.Hour}))
	orig := &fakeOriginator{}

	r := New(coord, orig, "engine-1", time.Hour, time.Minute)
	r.sweep(context.Background())

	require.Equal(t, 1, orig.count())
	entry, err := coord.store.GetRegistryEntry("c1")
	require.NoError(t, err)
	require.Equal(t, "engine-1", entry.EngineID)
}

func TestSweepSkipsDisabledEntry(t *testing.T) {
	coord := newTestCoord(t)
	require.NoError(t, coord.store.PutRegistryEntry(&types.RegistryEntry{ClusterID: "c1", Enabled: false, Interval: time.Hour}))
	orig := &fakeOriginator{}

	r := New(coord, orig, "engine-1", time.Hour, time.Minute)
	r.sweep(context.Background())

	require.Equal(t, 0, orig.count())
}

func TestSweepStealsFromDeadEngine(t *testing.T) {
	coord := newTestCoord(t)
	require.NoError(t, coord.store.PutRegistryEntry(&types.RegistryEntry{ClusterID: "c1", Enabled: true, Interval: time.Hour, EngineID: "dead-engine"}))
	require.NoError(t, coord.store.CreateService(&types.Service{ID: "dead-engine", UpdatedAt: time.Now().Add(-time.Hour)}))
	orig := &fakeOriginator{}

	r := New(coord, orig, "engine-1", time.Hour, time.Minute)
	r.sweep(context.Background())

	entry, err := coord.store.GetRegistryEntry("c1")
	require.NoError(t, err)
	require.Equal(t, "engine-1", entry.EngineID)
	require.Equal(t, 1, orig.count())
}

func TestSweepLeavesEntryWithLiveHolderAlone(t *testing.T) {
	coord := newTestCoord(t)
	require.NoError(t, coord.store.PutRegistryEntry(&types.RegistryEntry{ClusterID: "c1", Enabled: true, Interval: time.Hour, EngineID: "other-engine"}))
	require.NoError(t, coord.store.CreateService(&types.Service{ID: "other-engine", UpdatedAt: time.Now()}))
	orig := &fakeOriginator{}

	r := New(coord, orig, "engine-1", time.Hour, time.Minute)
	r.sweep(context.Background())

	entry, err := coord.store.GetRegistryEntry("c1")
	require.NoError(t, err)
	require.Equal(t, "other-engine", entry.EngineID)
	require.Equal(t, 0, orig.count())
}

func TestSweepRespectsIntervalOnSecondTick(t *testing.T) {
	coord := newTestCoord(t)
	require.NoError(t, coord.store.PutRegistryEntry(&types.RegistryEntry{ClusterID: "c1", Enabled: true, Interval: time.Hour}))
	orig := &fakeOriginator{}

	r := New(coord, orig, "engine-1", time.Hour, time.Minute)
	r.sweep(context.Background())
	r.sweep(context.Background())

	require.Equal(t, 1, orig.count())
}
