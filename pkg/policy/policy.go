// Package policy defines the decision-attachment boundary ActionEngine
// calls before and after executing an action, and a typed registry of
// concrete implementations keyed by policy type — the compiled-in
// replacement for the original's dynamic plugin lookup.
package policy

import (
	"sync"

	"github.com/nodeforge/fleetengine/pkg/types"
)

// CheckRecord is the shared scratch pre_op/post_op read and write, backed by
// Action.Data. Policies record decisions here rather than returning them,
// since a cluster may have several policies running in priority order.
type CheckRecord = map[string]any

// Phase is which half of an action's execution a policy hook runs in.
type Phase string

const (
	Before Phase = "BEFORE"
	After  Phase = "AFTER"
)

// Target declares that a policy wants its PreOp/PostOp hook invoked for a
// given action kind, at a given phase.
type Target struct {
	Phase Phase
	Kind  types.ActionKind
}

// Policy is the decision-module contract every policy implementation satisfies.
type Policy interface {
	// Targets lists the (phase, kind) pairs this policy hooks into. The
	// checker only invokes PreOp/PostOp for actions matching one.
	Targets() []Target
	// Validate checks a policy Spec for internal consistency before it is
	// persisted.
	Validate(spec map[string]any) error
	// Attach runs when a policy is bound to a cluster; returning ok=false
	// vetoes the binding (CLUSTER_ATTACH_POLICY rolls it back).
	Attach(cluster *types.Cluster, binding *types.ClusterPolicyBinding) (ok bool, data map[string]any, err error)
	// Detach runs when a binding is removed.
	Detach(cluster *types.Cluster, binding *types.ClusterPolicyBinding) (ok bool, data map[string]any, err error)
	// PreOp runs before an action's body executes. It may mutate record (a
	// view onto action.Data) to record a decision, or set record["status"]
	// = "ERROR" with record["reason"] to veto the action.
	PreOp(clusterID string, action *types.Action, binding *types.ClusterPolicyBinding, record CheckRecord) error
	// PostOp runs after an action's body executes; the body has already
	// released its cluster or node lock by then.
	PostOp(clusterID string, action *types.Action, binding *types.ClusterPolicyBinding, record CheckRecord) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Policy{}
)

// Register installs a policy implementation under a policy type string at
// process init (e.g. "senlin.policy.scaling-1.0" in the original's naming).
func Register(policyType string, p Policy) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[policyType] = p
}

// Lookup resolves a policy implementation by its type string.
func Lookup(policyType string) (Policy, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[policyType]
	return p, ok
}
