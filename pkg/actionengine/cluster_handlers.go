package actionengine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nodeforge/fleetengine/pkg/types"
)

// clusterCreate fans out one NODE_CREATE per desired_capacity slot on its
// first pass, then on the finalize pass flips the cluster ACTIVE or ERROR.
func (e *Engine) clusterCreate(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		if !isSpawned(action) {
			c.Status = types.ClusterCreating
			if err := e.store.UpdateCluster(c); err != nil {
				return false, err
			}

			var children []*types.Action
			for i := 0; i < c.DesiredCapacity; i++ {
				idx, err := e.store.NextNodeIndex(c.ID)
				if err != nil {
					return false, err
				}
				n := &types.Node{
					ID: fmt.Sprintf("%s-node-%d", c.ID, idx), ClusterID: c.ID, ProfileID: c.ProfileID,
					Index: idx, Status: types.NodeInit, Project: c.Project, CreatedAt: time.Now(),
				}
				if err := e.store.CreateNode(n); err != nil {
					return false, err
				}
				child, err := e.spawnChild(action, types.NodeCreate, n.ID, nil)
				if err != nil {
					return false, err
				}
				children = append(children, child)
			}
			if len(children) == 0 {
				c.Status = types.ClusterActive
				return true, e.store.UpdateCluster(c)
			}
			return false, e.waitOnChildren(action, children)
		}

		children, err := e.spawnedChildren(action)
		if err != nil {
			return false, err
		}
		if anyChildFailed(children) {
			c.Status = types.ClusterError
			c.StatusReason = "one or more nodes failed to create"
		} else {
			c.Status = types.ClusterActive
			c.StatusReason = ""
		}
		return true, e.store.UpdateCluster(c)
	})
}

// clusterDelete fans out NODE_DELETE for every live node, then soft-deletes
// the cluster row itself (but never its profile or policies).
func (e *Engine) clusterDelete(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		if !isSpawned(action) {
			c.Status = types.ClusterDeleting
			if err := e.store.UpdateCluster(c); err != nil {
				return false, err
			}
			nodes, err := e.store.ListNodesByCluster(c.ID)
			if err != nil {
				return false, err
			}
			var children []*types.Action
			for _, n := range nodes {
				child, err := e.spawnChild(action, types.NodeDelete, n.ID, nil)
				if err != nil {
					return false, err
				}
				children = append(children, child)
			}
			if len(children) == 0 {
				now := time.Now()
				c.DeletedAt = &now
				return true, e.store.UpdateCluster(c)
			}
			return false, e.waitOnChildren(action, children)
		}

		now := time.Now()
		c.DeletedAt = &now
		return true, e.store.UpdateCluster(c)
	})
}

// clusterAddNodes validates each target node is an orphan of the right
// profile type and ACTIVE, then migrates it into the cluster.
func (e *Engine) clusterAddNodes(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		nodeIDs, _ := action.Inputs["node_ids"].([]string)
		for _, id := range nodeIDs {
			n, err := e.store.GetNode(id)
			if err != nil {
				return false, err
			}
			if n.ClusterID != "" {
				return false, fmt.Errorf("actionengine: node %s is not an orphan", id)
			}
			if n.ProfileID != c.ProfileID {
				np, err := e.store.GetProfile(n.ProfileID)
				if err != nil {
					return false, err
				}
				cp, err := e.store.GetProfile(c.ProfileID)
				if err != nil {
					return false, err
				}
				if np.Type != cp.Type {
					return false, fmt.Errorf("actionengine: node %s has the wrong profile type for this cluster", id)
				}
			}
			if n.Status != types.NodeActive {
				return false, fmt.Errorf("actionengine: node %s is not ACTIVE", id)
			}
			if err := e.locks.AcquireNodeLock(id, action.ID); err != nil {
				return false, err
			}
			idx, err := e.store.NextNodeIndex(c.ID)
			if err != nil {
				e.locks.ReleaseNodeLock(id, action.ID)
				return false, err
			}
			err = e.store.MigrateNode(id, c.ID, idx)
			e.locks.ReleaseNodeLock(id, action.ID)
			if err != nil {
				return false, err
			}
		}
		c.DesiredCapacity += len(nodeIDs)
		return true, e.store.UpdateCluster(c)
	})
}

// clusterDelNodes fans out one NODE_DELETE (or NODE_LEAVE-equivalent
// orphaning) per target node, selected by inputs.destroy_after_delete.
func (e *Engine) clusterDelNodes(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		nodeIDs, _ := action.Inputs["node_ids"].([]string)
		destroy, _ := action.Inputs["destroy_after_delete"].(bool)

		if !isSpawned(action) {
			var children []*types.Action
			for _, id := range nodeIDs {
				if destroy {
					child, err := e.spawnChild(action, types.NodeDelete, id, nil)
					if err != nil {
						return false, err
					}
					children = append(children, child)
				} else {
					if err := e.store.MigrateNode(id, "", 0); err != nil {
						return false, err
					}
				}
			}
			c.DesiredCapacity -= len(nodeIDs)
			if err := e.store.UpdateCluster(c); err != nil {
				return false, err
			}
			if len(children) == 0 {
				return true, nil
			}
			return false, e.waitOnChildren(action, children)
		}
		return true, nil
	})
}

// clusterResize computes the new desired_capacity and spawns a
// CLUSTER_SCALE_IN or CLUSTER_SCALE_OUT child to carry it out.
func (e *Engine) clusterResize(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		if isSpawned(action) {
			children, err := e.spawnedChildren(action)
			if err != nil {
				return false, err
			}
			if anyChildFailed(children) {
				c.Status = types.ClusterError
				return true, e.store.UpdateCluster(c)
			}
			c.Status = types.ClusterActive
			return true, e.store.UpdateCluster(c)
		}

		params := ResizeParams{Strict: boolInput(action, "strict")}
		if v, ok := action.Inputs["adjustment_type"].(string); ok {
			params.AdjustmentType = AdjustmentType(v)
		}
		if v, ok := action.Inputs["number"].(float64); ok {
			params.Number = v
		}
		if v, ok := action.Inputs["min_step"].(int); ok {
			params.MinStep = v
		}

		result, err := ComputeResize(c, params)
		if err != nil {
			return false, err
		}

		c.Status = types.ClusterResizing
		if err := e.store.UpdateCluster(c); err != nil {
			return false, err
		}

		var child *types.Action
		if result.NewDesired < c.DesiredCapacity {
			child, err = e.spawnChild(action, types.ClusterScaleIn, c.ID, map[string]any{"count": c.DesiredCapacity - result.NewDesired})
		} else if result.NewDesired > c.DesiredCapacity {
			child, err = e.spawnChild(action, types.ClusterScaleOut, c.ID, map[string]any{"count": result.NewDesired - c.DesiredCapacity})
		}
		if err != nil {
			return false, err
		}
		if child == nil {
			return true, nil
		}
		return false, e.waitOnChildren(action, []*types.Action{child})
	})
}

// clusterScaleIn selects victims (policy-driven deletion.candidates if
// present, else oldest-active-first) and fans out NODE_DELETE in waves.
func (e *Engine) clusterScaleIn(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		if isSpawned(action) {
			children, err := e.spawnedChildren(action)
			if err != nil {
				return false, err
			}
			return true, boolErr(anyChildFailed(children))
		}

		count, _ := action.Inputs["count"].(int)
		batchSize := -1
		var candidates []string
		if deletion, ok := action.Data["deletion"].(map[string]any); ok {
			if bs, ok := deletion["batch_size"].(int); ok {
				batchSize = bs
			}
			if cand, ok := deletion["candidates"].([]string); ok {
				candidates = cand
			}
		}

		victims := candidates
		if len(victims) == 0 {
			nodes, err := e.store.ListNodesByCluster(c.ID)
			if err != nil {
				return false, err
			}
			sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].CreatedAt.Before(nodes[j].CreatedAt) })
			for _, n := range nodes {
				if n.Status == types.NodeActive {
					victims = append(victims, n.ID)
				}
			}
			if len(victims) > count {
				victims = victims[:count]
			}
		}

		waves, err := Waves(len(victims), batchSize)
		if err != nil {
			return false, err
		}

		var children []*types.Action
		offset := 0
		var prevWave []*types.Action
		for _, n := range waves {
			wave := victims[offset : offset+n]
			offset += n
			var waveChildren []*types.Action
			for _, id := range wave {
				child, err := e.spawnChild(action, types.NodeDelete, id, nil)
				if err != nil {
					return false, err
				}
				waveChildren = append(waveChildren, child)
			}
			if len(prevWave) > 0 {
				for _, wc := range waveChildren {
					if err := e.graph.AddDependency(prevWave, wc); err != nil {
						return false, err
					}
				}
			}
			children = append(children, waveChildren...)
			prevWave = waveChildren
		}
		c.DesiredCapacity -= len(victims)
		if err := e.store.UpdateCluster(c); err != nil {
			return false, err
		}
		if len(children) == 0 {
			return true, nil
		}
		return false, e.waitOnChildren(action, children)
	})
}

// clusterScaleOut spawns N NODE_CREATE children in waves of batch_size,
// each wave waiting on the previous.
func (e *Engine) clusterScaleOut(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		if isSpawned(action) {
			children, err := e.spawnedChildren(action)
			if err != nil {
				return false, err
			}
			return true, boolErr(anyChildFailed(children))
		}

		count, _ := action.Inputs["count"].(int)
		batchSize := -1
		if creation, ok := action.Data["creation"].(map[string]any); ok {
			if bs, ok := creation["batch_size"].(int); ok {
				batchSize = bs
			}
		}
		waves, err := Waves(count, batchSize)
		if err != nil {
			return false, err
		}

		var children []*types.Action
		var prevWave []*types.Action
		for _, n := range waves {
			var waveChildren []*types.Action
			for i := 0; i < n; i++ {
				idx, err := e.store.NextNodeIndex(c.ID)
				if err != nil {
					return false, err
				}
				node := &types.Node{
					ID: fmt.Sprintf("%s-node-%d", c.ID, idx), ClusterID: c.ID, ProfileID: c.ProfileID,
					Index: idx, Status: types.NodeInit, Project: c.Project, CreatedAt: time.Now(),
				}
				if err := e.store.CreateNode(node); err != nil {
					return false, err
				}
				child, err := e.spawnChild(action, types.NodeCreate, node.ID, nil)
				if err != nil {
					return false, err
				}
				waveChildren = append(waveChildren, child)
			}
			if len(prevWave) > 0 {
				for _, wc := range waveChildren {
					if err := e.graph.AddDependency(prevWave, wc); err != nil {
						return false, err
					}
				}
			}
			children = append(children, waveChildren...)
			prevWave = waveChildren
		}
		c.DesiredCapacity += count
		if err := e.store.UpdateCluster(c); err != nil {
			return false, err
		}
		if len(children) == 0 {
			return true, nil
		}
		return false, e.waitOnChildren(action, children)
	})
}

// clusterUpdate spawns NODE_UPDATE children in waves per
// inputs.update_plan, each wave depending on the previous one; no pause is
// inserted between waves.
func (e *Engine) clusterUpdate(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		if isSpawned(action) {
			children, err := e.spawnedChildren(action)
			if err != nil {
				return false, err
			}
			c.Status = types.ClusterActive
			if anyChildFailed(children) {
				c.Status = types.ClusterError
			}
			return true, e.store.UpdateCluster(c)
		}

		plan, _ := action.Inputs["update_plan"].([]map[string]any)
		newProfileID, _ := action.Inputs["new_profile_id"].(string)

		c.Status = types.ClusterUpdating
		if err := e.store.UpdateCluster(c); err != nil {
			return false, err
		}

		var children []*types.Action
		var prevWave []*types.Action
		for _, wave := range plan {
			nodeIDs, _ := wave["node_ids"].([]string)
			var waveChildren []*types.Action
			for _, id := range nodeIDs {
				child, err := e.spawnChild(action, types.NodeUpdate, id, map[string]any{"profile_id": newProfileID})
				if err != nil {
					return false, err
				}
				waveChildren = append(waveChildren, child)
			}
			if len(prevWave) > 0 {
				for _, wc := range waveChildren {
					if err := e.graph.AddDependency(prevWave, wc); err != nil {
						return false, err
					}
				}
			}
			children = append(children, waveChildren...)
			prevWave = waveChildren
		}
		if len(children) == 0 {
			c.Status = types.ClusterActive
			return true, e.store.UpdateCluster(c)
		}
		return false, e.waitOnChildren(action, children)
	})
}

// clusterCheck fans out NODE_CHECK under a shared cluster lock, per node
// under its own exclusive node lock.
func (e *Engine) clusterCheck(ctx context.Context, action *types.Action) (bool, error) {
	return e.fanOutPerNode(action, types.NodeCheck)
}

// clusterRecover fans out NODE_RECOVER the same way clusterCheck fans out
// NODE_CHECK.
func (e *Engine) clusterRecover(ctx context.Context, action *types.Action) (bool, error) {
	return e.fanOutPerNode(action, types.NodeRecover)
}

func (e *Engine) fanOutPerNode(action *types.Action, kind types.ActionKind) (bool, error) {
	return e.fanOutPerNodeWithInputs(action, kind, nil)
}

func (e *Engine) fanOutPerNodeWithInputs(action *types.Action, kind types.ActionKind, inputs map[string]any) (bool, error) {
	return e.withClusterLock(action, types.ScopeShared, func(c *types.Cluster) (bool, error) {
		if isSpawned(action) {
			children, err := e.spawnedChildren(action)
			if err != nil {
				return false, err
			}
			return true, boolErr(anyChildFailed(children))
		}
		nodes, err := e.store.ListNodesByCluster(c.ID)
		if err != nil {
			return false, err
		}
		var children []*types.Action
		for _, n := range nodes {
			child, err := e.spawnChild(action, kind, n.ID, inputs)
			if err != nil {
				return false, err
			}
			children = append(children, child)
		}
		if len(children) == 0 {
			return true, nil
		}
		return false, e.waitOnChildren(action, children)
	})
}

// clusterOperation fans a caller-named operation out to every node in the
// cluster under a shared lock (membership is not affected).
func (e *Engine) clusterOperation(ctx context.Context, action *types.Action) (bool, error) {
	return e.fanOutPerNodeWithInputs(action, types.NodeOperation, action.Inputs)
}

// clusterReplaceNodes pairs one NODE_DELETE with one NODE_CREATE per target
// node so desired_capacity never dips mid-flight.
func (e *Engine) clusterReplaceNodes(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		if isSpawned(action) {
			children, err := e.spawnedChildren(action)
			if err != nil {
				return false, err
			}
			if anyChildFailed(children) {
				c.Status = types.ClusterError
			} else {
				c.Status = types.ClusterActive
			}
			return true, e.store.UpdateCluster(c)
		}

		nodeIDs, _ := action.Inputs["node_ids"].([]string)
		c.Status = types.ClusterUpdating
		if err := e.store.UpdateCluster(c); err != nil {
			return false, err
		}

		var children []*types.Action
		for _, id := range nodeIDs {
			old, err := e.store.GetNode(id)
			if err != nil {
				return false, err
			}
			idx, err := e.store.NextNodeIndex(c.ID)
			if err != nil {
				return false, err
			}
			n := &types.Node{
				ID: fmt.Sprintf("%s-node-%d", c.ID, idx), ClusterID: c.ID, ProfileID: old.ProfileID,
				Index: idx, Status: types.NodeInit, Project: c.Project, CreatedAt: time.Now(),
			}
			if err := e.store.CreateNode(n); err != nil {
				return false, err
			}
			delChild, err := e.spawnChild(action, types.NodeDelete, old.ID, nil)
			if err != nil {
				return false, err
			}
			createChild, err := e.spawnChild(action, types.NodeCreate, n.ID, nil)
			if err != nil {
				return false, err
			}
			children = append(children, delChild, createChild)
		}
		if len(children) == 0 {
			c.Status = types.ClusterActive
			return true, e.store.UpdateCluster(c)
		}
		return false, e.waitOnChildren(action, children)
	})
}

// clusterAttachPolicy inserts the binding, calls the policy's attach hook,
// and rolls the binding back if the policy vetoes.
func (e *Engine) clusterAttachPolicy(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		policyID, _ := action.Inputs["policy_id"].(string)
		priority, _ := action.Inputs["priority"].(int)

		binding := &types.ClusterPolicyBinding{ClusterID: c.ID, PolicyID: policyID, Priority: priority, Enabled: true}
		if err := e.store.CreateBinding(binding); err != nil {
			return false, err
		}
		ok, err := e.checker.Attach(c, binding)
		if err != nil {
			return false, err
		}
		if !ok {
			_ = e.store.DeleteBinding(c.ID, policyID)
			return false, fmt.Errorf("actionengine: policy %s refused attachment", policyID)
		}
		return true, e.store.UpdateBinding(binding)
	})
}

// clusterDetachPolicy calls the policy's detach hook then removes the
// binding.
func (e *Engine) clusterDetachPolicy(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		policyID, _ := action.Inputs["policy_id"].(string)
		binding, err := e.findBinding(c.ID, policyID)
		if err != nil {
			return false, err
		}
		if err := e.checker.Detach(c, binding); err != nil {
			return false, err
		}
		return true, e.store.DeleteBinding(c.ID, policyID)
	})
}

// clusterUpdatePolicy mutates a binding's priority/enabled in place.
func (e *Engine) clusterUpdatePolicy(ctx context.Context, action *types.Action) (bool, error) {
	return e.withClusterLock(action, types.ScopeExclusive, func(c *types.Cluster) (bool, error) {
		policyID, _ := action.Inputs["policy_id"].(string)
		binding, err := e.findBinding(c.ID, policyID)
		if err != nil {
			return false, err
		}
		if v, ok := action.Inputs["priority"].(int); ok {
			binding.Priority = v
		}
		if v, ok := action.Inputs["enabled"].(bool); ok {
			binding.Enabled = v
		}
		return true, e.store.UpdateBinding(binding)
	})
}

func (e *Engine) findBinding(clusterID, policyID string) (*types.ClusterPolicyBinding, error) {
	bindings, err := e.store.ListBindingsByCluster(clusterID)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		if b.PolicyID == policyID {
			return b, nil
		}
	}
	return nil, fmt.Errorf("actionengine: no binding of policy %s on cluster %s", policyID, clusterID)
}

// withClusterLock acquires a cluster lock of the given scope for
// action.Target, runs body, and always releases it.
func (e *Engine) withClusterLock(action *types.Action, scope types.LockScope, body func(c *types.Cluster) (bool, error)) (bool, error) {
	if err := e.locks.AcquireClusterLock(action.Target, action.ID, scope); err != nil {
		return false, err
	}
	defer e.locks.ReleaseClusterLock(action.Target, action.ID)

	c, err := e.store.GetCluster(action.Target)
	if err != nil {
		return false, err
	}
	return body(c)
}

func boolInput(action *types.Action, key string) bool {
	v, _ := action.Inputs[key].(bool)
	return v
}

func boolErr(failed bool) error {
	if failed {
		return fmt.Errorf("actionengine: one or more child actions failed")
	}
	return nil
}
