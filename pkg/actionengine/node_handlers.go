package actionengine

import (
	"context"
	"fmt"
	"time"

	"github.com/nodeforge/fleetengine/pkg/driver"
	"github.com/nodeforge/fleetengine/pkg/types"
)

// nodeCreate drives a node through CREATING -> ACTIVE, writing the driver's
// physical_id on success or ERROR on failure.
func (e *Engine) nodeCreate(ctx context.Context, action *types.Action) (bool, error) {
	return e.withNodeLock(action, func(n *types.Node) (bool, error) {
		d, profile, err := e.driverFor(n)
		if err != nil {
			return false, err
		}
		n.Status = types.NodeCreating
		if err := e.store.UpdateNode(n); err != nil {
			return false, err
		}

		physicalID, err := d.Create(ctx, n, profile)
		if err != nil {
			n.Status = types.NodeError
			n.StatusReason = err.Error()
			_ = e.store.UpdateNode(n)
			return false, err
		}

		n.PhysicalID = physicalID
		n.Status = types.NodeActive
		n.StatusReason = ""
		return true, e.store.UpdateNode(n)
	})
}

// nodeDelete tears down the driver resource and soft-deletes the row.
func (e *Engine) nodeDelete(ctx context.Context, action *types.Action) (bool, error) {
	return e.withNodeLock(action, func(n *types.Node) (bool, error) {
		d, _, err := e.driverFor(n)
		if err != nil {
			return false, err
		}
		n.Status = types.NodeDeleting
		if err := e.store.UpdateNode(n); err != nil {
			return false, err
		}
		if err := d.Delete(ctx, n); err != nil {
			return false, err
		}
		now := time.Now()
		n.DeletedAt = &now
		return true, e.store.UpdateNode(n)
	})
}

// nodeUpdate reconciles a node onto a new profile, using the driver's
// replace/rebuild path when an in-place update isn't possible.
func (e *Engine) nodeUpdate(ctx context.Context, action *types.Action) (bool, error) {
	return e.withNodeLock(action, func(n *types.Node) (bool, error) {
		newProfileID, _ := action.Inputs["profile_id"].(string)
		if newProfileID == "" {
			return false, fmt.Errorf("actionengine: NODE_UPDATE requires inputs.profile_id")
		}
		newProfile, err := e.store.GetProfile(newProfileID)
		if err != nil {
			return false, err
		}
		d, ok := driver.ForProfile(newProfile)
		if !ok {
			return false, fmt.Errorf("actionengine: no driver registered for profile type %s", newProfile.Type)
		}

		n.Status = types.NodeUpdating
		if err := e.store.UpdateNode(n); err != nil {
			return false, err
		}

		if _, err := d.Update(ctx, n, newProfile); err != nil {
			n.Status = types.NodeError
			n.StatusReason = err.Error()
			_ = e.store.UpdateNode(n)
			return false, err
		}

		n.ProfileID = newProfileID
		n.Status = types.NodeActive
		n.StatusReason = ""
		return true, e.store.UpdateNode(n)
	})
}

// nodeCheck refreshes a node's status from the driver's own health report.
func (e *Engine) nodeCheck(ctx context.Context, action *types.Action) (bool, error) {
	return e.withNodeLock(action, func(n *types.Node) (bool, error) {
		d, _, err := e.driverFor(n)
		if err != nil {
			return false, err
		}
		health, err := d.Check(ctx, n)
		if err != nil {
			return false, err
		}
		if health.Healthy {
			if n.Status == types.NodeError || n.Status == types.NodeWarning {
				n.Status = types.NodeActive
				n.StatusReason = ""
			}
		} else {
			n.Status = types.NodeError
			n.StatusReason = health.Reason
		}
		return true, e.store.UpdateNode(n)
	})
}

// nodeRecover runs a policy-chosen recovery operation, clearing ERROR on
// success.
func (e *Engine) nodeRecover(ctx context.Context, action *types.Action) (bool, error) {
	return e.withNodeLock(action, func(n *types.Node) (bool, error) {
		d, _, err := e.driverFor(n)
		if err != nil {
			return false, err
		}
		op, _ := action.Data["operation"].(string)
		if op == "" {
			op = string(driver.RecoverRecreate)
		}
		n.Status = types.NodeRecovering
		if err := e.store.UpdateNode(n); err != nil {
			return false, err
		}

		params, _ := action.Data["params"].(map[string]any)
		if err := d.Recover(ctx, n, driver.RecoverOp(op), params); err != nil {
			n.Status = types.NodeError
			n.StatusReason = err.Error()
			_ = e.store.UpdateNode(n)
			return false, err
		}

		n.Status = types.NodeActive
		n.StatusReason = ""
		return true, e.store.UpdateNode(n)
	})
}

// nodeOperation runs a caller-named, profile-specific action through the
// driver's optional Operator hook.
func (e *Engine) nodeOperation(ctx context.Context, action *types.Action) (bool, error) {
	return e.withNodeLock(action, func(n *types.Node) (bool, error) {
		d, _, err := e.driverFor(n)
		if err != nil {
			return false, err
		}
		op, ok := d.(driver.Operator)
		if !ok {
			return false, fmt.Errorf("actionengine: driver for node %s does not support NODE_OPERATION", n.ID)
		}
		name, _ := action.Inputs["operation"].(string)
		if name == "" {
			return false, fmt.Errorf("actionengine: NODE_OPERATION requires inputs.operation")
		}
		params, _ := action.Inputs["params"].(map[string]any)
		return true, op.Operation(ctx, n, name, params)
	})
}

// withNodeLock acquires the exclusive node lock for action.Target, runs
// body, and always releases the lock regardless of outcome.
func (e *Engine) withNodeLock(action *types.Action, body func(n *types.Node) (bool, error)) (bool, error) {
	if err := e.locks.AcquireNodeLock(action.Target, action.ID); err != nil {
		return false, err
	}
	defer e.locks.ReleaseNodeLock(action.Target, action.ID)

	n, err := e.store.GetNode(action.Target)
	if err != nil {
		return false, err
	}
	return body(n)
}
