// Package nulldriver is a reference driver.ResourceDriver: it simulates
// infrastructure in memory instead of calling out to a real cloud, useful
// for tests and as a template for writing a real driver. Check can
// optionally be backed by a pkg/driver/probe.Checker, the way a real driver
// would use an HTTP/TCP/exec probe instead of (or alongside) its own
// simulated state.
package nulldriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nodeforge/fleetengine/pkg/driver"
	"github.com/nodeforge/fleetengine/pkg/driver/probe"
	"github.com/nodeforge/fleetengine/pkg/types"
)

// Driver simulates resource lifecycle entirely in memory.
type Driver struct {
	mu        sync.Mutex
	resources map[string]map[string]any
	fail      map[string]bool // physicalID -> force failure, set by tests
	checker   probe.Checker   // optional: consulted by Check in addition to simulated state
}

// New creates an empty Driver.
func New() *Driver {
	return &Driver{resources: map[string]map[string]any{}, fail: map[string]bool{}}
}

// NewWithChecker creates a Driver whose Check also runs c, the way a real
// ResourceDriver would back Check with an HTTP/TCP/exec probe against the
// node's actual address instead of relying purely on simulated state.
func NewWithChecker(c probe.Checker) *Driver {
	d := New()
	d.checker = c
	return d
}

// Register installs this driver under kind/version in the package registry.
func Register(kind, version string) *Driver {
	d := New()
	driver.Register(kind, version, d)
	return d
}

func (d *Driver) Create(_ context.Context, node *types.Node, profile *types.Profile) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.NewString()
	d.resources[id] = map[string]any{"node_id": node.ID, "profile_id": profile.ID}
	return id, nil
}

func (d *Driver) Delete(_ context.Context, node *types.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.resources, node.PhysicalID)
	return nil
}

func (d *Driver) Update(_ context.Context, node *types.Node, newProfile *types.Profile) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, ok := d.resources[node.PhysicalID]
	if !ok {
		return false, fmt.Errorf("nulldriver: no such resource %s", node.PhysicalID)
	}
	res["profile_id"] = newProfile.ID
	return false, nil
}

func (d *Driver) GetDetails(_ context.Context, node *types.Node) (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, ok := d.resources[node.PhysicalID]
	if !ok {
		return nil, fmt.Errorf("nulldriver: no such resource %s", node.PhysicalID)
	}
	out := make(map[string]any, len(res))
	for k, v := range res {
		out[k] = v
	}
	return out, nil
}

func (d *Driver) Check(ctx context.Context, node *types.Node) (driver.Health, error) {
	d.mu.Lock()
	failing := d.fail[node.PhysicalID]
	_, exists := d.resources[node.PhysicalID]
	checker := d.checker
	d.mu.Unlock()

	if failing {
		return driver.Health{Healthy: false, Reason: "forced failure"}, nil
	}
	if !exists {
		return driver.Health{Healthy: false, Reason: "resource missing"}, nil
	}
	if checker != nil {
		if result := checker.Check(ctx); !result.Healthy {
			return driver.Health{Healthy: false, Reason: result.Message}, nil
		}
	}
	return driver.Health{Healthy: true}, nil
}

func (d *Driver) Recover(_ context.Context, node *types.Node, op driver.RecoverOp, _ map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[node.PhysicalID] = false
	if op == driver.RecoverRecreate {
		delete(d.resources, node.PhysicalID)
		d.resources[node.PhysicalID] = map[string]any{"node_id": node.ID, "recreated": true}
	}
	return nil
}

// Operation simulates a caller-named, profile-specific action by recording
// it against the node's resource record, satisfying driver.Operator.
func (d *Driver) Operation(_ context.Context, node *types.Node, name string, params map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, ok := d.resources[node.PhysicalID]
	if !ok {
		return fmt.Errorf("nulldriver: no such resource %s", node.PhysicalID)
	}
	res["last_operation"] = name
	res["last_operation_params"] = params
	return nil
}

// SetFailing forces Check to report unhealthy for a physical resource,
// driving NODE_RECOVER test scenarios.
func (d *Driver) SetFailing(physicalID string, failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[physicalID] = failing
}
