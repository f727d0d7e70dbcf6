package policy

import (
	"testing"
	"time"

	"github.com/nodeforge/fleetengine/pkg/policy/testpolicy"
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

func TestCheckerRunsEnabledBindingPreOp(t *testing.T) {
	s := newTestStore(t)
	pol := testpolicy.Register("test.scaling", 2)

	require.NoError(t, s.CreatePolicy(&types.Policy{ID: "pol1", Type: "test.scaling", CreatedAt: time.Now()}))
	require.NoError(t, s.CreateBinding(&types.ClusterPolicyBinding{
		ClusterID: "c1", PolicyID: "pol1", Priority: 10, Enabled: true,
	}))

	checker := NewChecker(s)
	action := &types.Action{
		ID: "a1", Action: types.ClusterScaleIn,
		Inputs: map[string]any{"count": 3},
		Data:   map[string]any{},
	}
	require.NoError(t, checker.PreOp("c1", action))

	deletion, ok := action.Data["deletion"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 2, deletion["batch_size"])
	require.Equal(t, 1, pol.FireCount())
}

func TestCheckerSkipsDisabledBindings(t *testing.T) {
	s := newTestStore(t)
	testpolicy.Register("test.scaling2", 5)

	require.NoError(t, s.CreatePolicy(&types.Policy{ID: "pol2", Type: "test.scaling2", CreatedAt: time.Now()}))
	require.NoError(t, s.CreateBinding(&types.ClusterPolicyBinding{
		ClusterID: "c1", PolicyID: "pol2", Priority: 10, Enabled: false,
	}))

	checker := NewChecker(s)
	action := &types.Action{ID: "a2", Action: types.ClusterScaleIn, Data: map[string]any{}}
	require.NoError(t, checker.PreOp("c1", action))
	require.NotContains(t, action.Data, "deletion")
}
