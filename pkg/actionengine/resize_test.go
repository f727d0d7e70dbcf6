package actionengine

import (
	"testing"

	"github.com/nodeforge/fleetengine/pkg/apierror"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeResizeStrictBelowClusterMinSize(t *testing.T) {
	cluster := &types.Cluster{DesiredCapacity: 3, MinSize: 2, MaxSize: 10}

	_, err := ComputeResize(cluster, ResizeParams{
		AdjustmentType: ChangeInCapacity,
		Number:         -5,
		Strict:         true,
	})

	require.Error(t, err)
	var bad *apierror.BadRequestError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "The target capacity (-2) is less than the cluster's min_size (2).", bad.Reason)
}

func TestComputeResizeStrictBelowSpecifiedMinSize(t *testing.T) {
	cluster := &types.Cluster{DesiredCapacity: 3, MinSize: 1, MaxSize: 10}
	min := 2

	_, err := ComputeResize(cluster, ResizeParams{
		AdjustmentType: ChangeInCapacity,
		Number:         -5,
		MinSize:        &min,
		Strict:         true,
	})

	require.Error(t, err)
	var bad *apierror.BadRequestError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "The target capacity (-2) is less than the specified min_size (2).", bad.Reason)
}

func TestComputeResizeStrictAboveClusterMaxSize(t *testing.T) {
	cluster := &types.Cluster{DesiredCapacity: 5, MinSize: 1, MaxSize: 8}

	_, err := ComputeResize(cluster, ResizeParams{
		AdjustmentType: ChangeInCapacity,
		Number:         10,
		Strict:         true,
	})

	require.Error(t, err)
	var bad *apierror.BadRequestError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "The target capacity (15) is greater than the cluster's max_size (8).", bad.Reason)
}

func TestComputeResizeStrictAboveSpecifiedMaxSize(t *testing.T) {
	cluster := &types.Cluster{DesiredCapacity: 5, MinSize: 1, MaxSize: 20}
	max := 8

	_, err := ComputeResize(cluster, ResizeParams{
		AdjustmentType: ChangeInCapacity,
		Number:         10,
		MaxSize:        &max,
		Strict:         true,
	})

	require.Error(t, err)
	var bad *apierror.BadRequestError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "The target capacity (15) is greater than the specified max_size (8).", bad.Reason)
}

func TestComputeResizeNonStrictClampsSilently(t *testing.T) {
	cluster := &types.Cluster{DesiredCapacity: 3, MinSize: 2, MaxSize: 10}

	result, err := ComputeResize(cluster, ResizeParams{
		AdjustmentType: ChangeInCapacity,
		Number:         -5,
		Strict:         false,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.NewDesired)
}
