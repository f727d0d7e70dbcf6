package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeCoord struct {
	mu      sync.Mutex
	pending []*types.Action
	claimed int32
}

func (f *fakeCoord) ClaimReadyAction(engineID string) (*types.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	a := f.pending[0]
	f.pending = f.pending[1:]
	atomic.AddInt32(&f.claimed, 1)
	return a, nil
}

func (f *fakeCoord) CreateService(s *types.Service) error { return nil }
func (f *fakeCoord) UpdateService(s *types.Service) error { return nil }
func (f *fakeCoord) Store() storage.Store                 { return nil }

type fakeEngine struct {
	executed int32
}

func (f *fakeEngine) Execute(ctx context.Context, action *types.Action) error {
	atomic.AddInt32(&f.executed, 1)
	return nil
}

func TestDispatcherClaimsAndExecutesAllPending(t *testing.T) {
	coord := &fakeCoord{pending: []*types.Action{
		{ID: "a1", Action: types.NodeCreate},
		{ID: "a2", Action: types.NodeCreate},
		{ID: "a3", Action: types.NodeCreate},
	}}
	engine := &fakeEngine{}

	d := New(coord, engine, "engine-1", 2, 50*time.Millisecond)
	require.NoError(t, d.Start(context.Background()))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&engine.executed) == 3
	}, time.Second, 10*time.Millisecond)

	d.Stop()
}
