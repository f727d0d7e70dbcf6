package policy

import (
	"sort"
	"time"

	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
)

// Checker loads a cluster's enabled bindings and runs the matching
// PreOp/PostOp hooks in ascending priority order.
type Checker struct {
	store storage.Store
}

// NewChecker builds a Checker over store.
func NewChecker(store storage.Store) *Checker {
	return &Checker{store: store}
}

// bindingsFor returns cluster's enabled bindings whose policy targets
// (phase, action.Action), sorted by ascending Priority (ties unordered).
func (c *Checker) bindingsFor(clusterID string, phase Phase, kind types.ActionKind) ([]*types.ClusterPolicyBinding, []Policy, error) {
	all, err := c.store.ListBindingsByCluster(clusterID)
	if err != nil {
		return nil, nil, err
	}

	type pair struct {
		b *types.ClusterPolicyBinding
		p Policy
	}
	var matched []pair
	for _, b := range all {
		if !b.Enabled {
			continue
		}
		pol, err := c.store.GetPolicy(b.PolicyID)
		if err != nil {
			return nil, nil, err
		}
		impl, ok := Lookup(pol.Type)
		if !ok {
			continue
		}
		for _, t := range impl.Targets() {
			if t.Phase == phase && t.Kind == kind {
				matched = append(matched, pair{b: b, p: impl})
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].b.Priority < matched[j].b.Priority })

	bindings := make([]*types.ClusterPolicyBinding, len(matched))
	impls := make([]Policy, len(matched))
	for i, m := range matched {
		bindings[i] = m.b
		impls[i] = m.p
	}
	return bindings, impls, nil
}

// PreOp runs every BEFORE-phase policy hook for action.Action in priority
// order. If a policy vetoes (record["status"] == "ERROR"), remaining
// policies still run — every policy gets the same shared record,
// action.Data, alongside its own binding — and the caller (ActionEngine)
// checks action.Data["status"] once PreOp returns.
func (c *Checker) PreOp(clusterID string, action *types.Action) error {
	bindings, impls, err := c.bindingsFor(clusterID, Before, action.Action)
	if err != nil {
		return err
	}
	if action.Data == nil {
		action.Data = map[string]any{}
	}
	for i, b := range bindings {
		if err := impls[i].PreOp(clusterID, action, b, action.Data); err != nil {
			return err
		}
		b.LastOp = time.Now()
		if err := c.store.UpdateBinding(b); err != nil {
			return err
		}
	}
	return nil
}

// PostOp runs every AFTER-phase policy hook for action.Action in priority
// order.
func (c *Checker) PostOp(clusterID string, action *types.Action) error {
	bindings, impls, err := c.bindingsFor(clusterID, After, action.Action)
	if err != nil {
		return err
	}
	if action.Data == nil {
		action.Data = map[string]any{}
	}
	for i, b := range bindings {
		if err := impls[i].PostOp(clusterID, action, b, action.Data); err != nil {
			return err
		}
		b.LastOp = time.Now()
		if err := c.store.UpdateBinding(b); err != nil {
			return err
		}
	}
	return nil
}

// Attach runs policyID's Attach hook for a new binding and reports whether
// the policy accepted it. It does not touch the Store; on a veto the caller
// (CLUSTER_ATTACH_POLICY) deletes the binding.
func (c *Checker) Attach(cluster *types.Cluster, binding *types.ClusterPolicyBinding) (bool, error) {
	pol, err := c.store.GetPolicy(binding.PolicyID)
	if err != nil {
		return false, err
	}
	impl, ok := Lookup(pol.Type)
	if !ok {
		return true, nil
	}
	ok, data, err := impl.Attach(cluster, binding)
	if err != nil {
		return false, err
	}
	if ok {
		binding.Data = data
	}
	return ok, nil
}

// Detach runs policyID's Detach hook before a binding is removed.
func (c *Checker) Detach(cluster *types.Cluster, binding *types.ClusterPolicyBinding) error {
	pol, err := c.store.GetPolicy(binding.PolicyID)
	if err != nil {
		return err
	}
	impl, ok := Lookup(pol.Type)
	if !ok {
		return nil
	}
	_, _, err = impl.Detach(cluster, binding)
	return err
}
