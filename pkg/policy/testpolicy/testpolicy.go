// Package testpolicy is a reference policy.Policy: a scaling-style policy
// that writes a deletion batch plan on CLUSTER_SCALE_IN and tracks how many
// times it has fired, useful both in tests and as a template for writing a
// real policy.
package testpolicy

import (
	"github.com/nodeforge/fleetengine/pkg/policy"
	"github.com/nodeforge/fleetengine/pkg/types"
)

// Policy batches scale-in deletions to a fixed size.
type Policy struct {
	BatchSize int
	PauseTime int
	fireCount int
}

// New builds a Policy with the given batch size (seconds between waves
// default to 0).
func New(batchSize int) *Policy {
	return &Policy{BatchSize: batchSize}
}

// Register installs this policy under policyType in the package registry.
func Register(policyType string, batchSize int) *Policy {
	p := New(batchSize)
	policy.Register(policyType, p)
	return p
}

func (p *Policy) Targets() []policy.Target {
	return []policy.Target{
		{Phase: policy.Before, Kind: types.ClusterScaleIn},
		{Phase: policy.After, Kind: types.ClusterScaleIn},
	}
}

func (p *Policy) Validate(spec map[string]any) error { return nil }

func (p *Policy) Attach(cluster *types.Cluster, binding *types.ClusterPolicyBinding) (bool, map[string]any, error) {
	return true, map[string]any{"batch_size": p.BatchSize}, nil
}

func (p *Policy) Detach(cluster *types.Cluster, binding *types.ClusterPolicyBinding) (bool, map[string]any, error) {
	return true, nil, nil
}

func (p *Policy) PreOp(clusterID string, action *types.Action, binding *types.ClusterPolicyBinding, record policy.CheckRecord) error {
	p.fireCount++
	record["deletion"] = map[string]any{
		"count":      action.Inputs["count"],
		"batch_size": p.BatchSize,
		"pause_time": p.PauseTime,
	}
	return nil
}

func (p *Policy) PostOp(clusterID string, action *types.Action, binding *types.ClusterPolicyBinding, record policy.CheckRecord) error {
	return nil
}

// FireCount reports how many times PreOp has run, for test assertions.
func (p *Policy) FireCount() int { return p.fireCount }
