package actionengine

import (
	"fmt"
	"math"

	"github.com/nodeforge/fleetengine/pkg/apierror"
	"github.com/nodeforge/fleetengine/pkg/types"
)

// AdjustmentType selects how ResizeParams.Number is interpreted.
type AdjustmentType string

const (
	ExactCapacity       AdjustmentType = "EXACT_CAPACITY"
	ChangeInCapacity     AdjustmentType = "CHANGE_IN_CAPACITY"
	ChangeInPercentage   AdjustmentType = "CHANGE_IN_PERCENTAGE"
)

// ResizeParams is CLUSTER_RESIZE's input, read from Action.Inputs.
type ResizeParams struct {
	AdjustmentType AdjustmentType
	Number         float64
	MinStep        int // default 1 when zero
	MinSize        *int
	MaxSize        *int // -1 == unbounded
	Strict         bool
}

// ResizeResult is what the resize arithmetic produces: the new desired
// capacity plus whether min_size/max_size should be overridden alongside it.
type ResizeResult struct {
	NewDesired int
	AdjustMin  *int
	AdjustMax  *int
}

// ComputeResize computes a raw target
// from (adjustment_type, number, min_step), then clamp to the effective
// [min, max] bounds, failing loudly if Strict is set and clamping would
// otherwise silently occur.
func ComputeResize(cluster *types.Cluster, p ResizeParams) (ResizeResult, error) {
	desired := cluster.DesiredCapacity

	var target int
	switch p.AdjustmentType {
	case ExactCapacity:
		target = int(p.Number)
	case ChangeInCapacity:
		target = desired + int(p.Number)
	case ChangeInPercentage:
		minStep := p.MinStep
		if minStep == 0 {
			minStep = 1
		}
		raw := float64(desired) * (1 + p.Number/100)
		step := int(math.Ceil(math.Abs(raw - float64(desired))))
		if step < minStep {
			step = minStep
		}
		if p.Number < 0 {
			target = desired - step
		} else {
			target = desired + step
		}
	default:
		return ResizeResult{}, fmt.Errorf("actionengine: unknown adjustment type %q", p.AdjustmentType)
	}

	effMin := cluster.MinSize
	if p.MinSize != nil {
		effMin = *p.MinSize
	}
	effMax := cluster.MaxSize
	if p.MaxSize != nil {
		effMax = *p.MaxSize
	}

	clamped := target
	if clamped < effMin {
		clamped = effMin
	}
	if effMax != -1 && clamped > effMax {
		clamped = effMax
	}

	if p.Strict && clamped != target {
		if target < effMin {
			qualifier := "cluster's"
			if p.MinSize != nil {
				qualifier = "specified"
			}
			return ResizeResult{}, &apierror.BadRequestError{
				Reason: fmt.Sprintf("The target capacity (%d) is less than the %s min_size (%d).", target, qualifier, effMin),
			}
		}
		qualifier := "cluster's"
		if p.MaxSize != nil {
			qualifier = "specified"
		}
		return ResizeResult{}, &apierror.BadRequestError{
			Reason: fmt.Sprintf("The target capacity (%d) is greater than the %s max_size (%d).", target, qualifier, effMax),
		}
	}

	result := ResizeResult{NewDesired: clamped}
	if p.MinSize != nil {
		result.AdjustMin = p.MinSize
	}
	if p.MaxSize != nil {
		result.AdjustMax = p.MaxSize
	}
	return result, nil
}
