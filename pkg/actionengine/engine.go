// Package actionengine implements the per-kind execution bodies that drive
// an Action from RUNNING to a terminal status: lock acquisition, policy
// pre/post hooks, the driver call (or fan-out to child actions), and
// status propagation through the dependency graph.
package actionengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nodeforge/fleetengine/pkg/depgraph"
	"github.com/nodeforge/fleetengine/pkg/driver"
	"github.com/nodeforge/fleetengine/pkg/events"
	"github.com/nodeforge/fleetengine/pkg/lock"
	"github.com/nodeforge/fleetengine/pkg/log"
	"github.com/nodeforge/fleetengine/pkg/policy"
	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/rs/zerolog"
)

// handler is a per-kind execution body, bound to its Engine receiver. It
// returns done=false when the action has spawned children and must wait
// for them — the dispatcher leaves such an action exactly as
// DependencyGraph left it (WAITING, soon READY again once children finish)
// instead of forcing a terminal status.
type handler func(ctx context.Context, action *types.Action) (done bool, err error)

// Engine owns the per-kind dispatch table and the collaborators every body
// needs: the Store, the lock manager, the policy checker, and the
// dependency graph that wires and propagates child actions.
type Engine struct {
	store    storage.Store
	locks    *lock.Manager
	checker  *policy.Checker
	graph    *depgraph.Graph
	sink     events.Sink
	handlers map[types.ActionKind]handler
	logger   zerolog.Logger

	defaultTimeout time.Duration
}

// New wires an Engine over its collaborators.
func New(store storage.Store, locks *lock.Manager, checker *policy.Checker, graph *depgraph.Graph, sink events.Sink, defaultTimeout time.Duration) *Engine {
	e := &Engine{
		store:          store,
		locks:          locks,
		checker:        checker,
		graph:          graph,
		sink:           sink,
		logger:         log.WithComponent("actionengine"),
		defaultTimeout: defaultTimeout,
	}
	e.handlers = map[types.ActionKind]handler{
		types.ClusterCreate:       e.clusterCreate,
		types.ClusterDelete:       e.clusterDelete,
		types.ClusterAddNodes:     e.clusterAddNodes,
		types.ClusterDelNodes:     e.clusterDelNodes,
		types.ClusterResize:       e.clusterResize,
		types.ClusterScaleIn:      e.clusterScaleIn,
		types.ClusterScaleOut:     e.clusterScaleOut,
		types.ClusterUpdate:       e.clusterUpdate,
		types.ClusterCheck:        e.clusterCheck,
		types.ClusterRecover:      e.clusterRecover,
		types.ClusterAttachPolicy: e.clusterAttachPolicy,
		types.ClusterDetachPolicy: e.clusterDetachPolicy,
		types.ClusterUpdatePolicy: e.clusterUpdatePolicy,
		types.ClusterReplaceNodes: e.clusterReplaceNodes,
		types.ClusterOperation:    e.clusterOperation,
		types.NodeCreate:          e.nodeCreate,
		types.NodeDelete:          e.nodeDelete,
		types.NodeUpdate:          e.nodeUpdate,
		types.NodeCheck:           e.nodeCheck,
		types.NodeRecover:         e.nodeRecover,
		types.NodeOperation:       e.nodeOperation,
	}
	return e
}

// Execute runs action's skeleton: pre_op, body, post_op, propagate status.
// Locks are taken inside the body: each handler acquires its cluster or
// node lock on entry and releases it on return, so pre_op runs before the
// lock is acquired and post_op after it is released. Called by the
// dispatcher once per claimed action; if the body spawns children, Execute
// returns early
// leaving the action WAITING, to be reclaimed and finalized on a later pass
// once the dependency graph makes it READY again.
func (e *Engine) Execute(ctx context.Context, action *types.Action) error {
	h, ok := e.handlers[action.Action]
	if !ok {
		return fmt.Errorf("actionengine: no handler registered for %s", action.Action)
	}

	timeout := action.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if action.Control == types.ControlCancel {
		return e.graph.MarkCancelled(action, time.Now(), "cancelled before start")
	}

	clusterID := e.clusterIDFor(action)
	if err := e.checker.PreOp(clusterID, action); err != nil {
		return e.fail(action, fmt.Errorf("pre_op failed: %w", err))
	}
	if status, _ := action.Data["status"].(string); status == "ERROR" {
		reason, _ := action.Data["reason"].(string)
		return e.graph.MarkFailed(action, time.Now(), reason)
	}

	done, err := h(ctx, action)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return e.fail(action, fmt.Errorf("operation timed out after %s", timeout))
		}
		return e.fail(action, err)
	}
	if !done {
		// Body spawned children and parked this action WAITING; nothing
		// more to do until DependencyGraph clears its edges.
		return e.store.UpdateAction(action)
	}

	if err := e.checker.PostOp(clusterID, action); err != nil {
		return e.fail(action, fmt.Errorf("post_op failed: %w", err))
	}

	return e.graph.MarkSucceeded(action, time.Now())
}

func (e *Engine) fail(action *types.Action, cause error) error {
	return e.graph.MarkFailed(action, time.Now(), cause.Error())
}

// clusterIDFor resolves the cluster a policy check should scope to: the
// action's own target for cluster-kind actions, or the node's owning
// cluster for node-kind actions.
func (e *Engine) clusterIDFor(action *types.Action) string {
	if len(action.Action) >= 4 && action.Action[:4] == "NODE" {
		n, err := e.store.GetNode(action.Target)
		if err != nil {
			return ""
		}
		return n.ClusterID
	}
	return action.Target
}

// spawnChild creates and persists a child action of kind on target, with
// inputs, returning it. It does not wire dependencies — callers do that via
// e.graph.AddDependency so the parent waits on however many children it
// spawned.
func (e *Engine) spawnChild(parent *types.Action, kind types.ActionKind, target string, inputs map[string]any) (*types.Action, error) {
	child := &types.Action{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("%s-%s", kind, target),
		Target:    target,
		Action:    kind,
		Cause:     "derived from " + parent.ID,
		Status:    types.ActionInit,
		Inputs:    inputs,
		Project:   parent.Project,
		CreatedAt: time.Now(),
	}
	if err := e.store.CreateAction(child); err != nil {
		return nil, err
	}
	return child, nil
}

// waitOnChildren wires parent to wait on every child and marks the parent
// as having spawned (so the next pass through Execute finalizes instead of
// respawning).
func (e *Engine) waitOnChildren(parent *types.Action, children []*types.Action) error {
	if parent.Data == nil {
		parent.Data = map[string]any{}
	}
	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	parent.Data["spawned"] = true
	parent.Data["child_ids"] = ids
	return e.graph.AddDependency(children, parent)
}

// spawnedChildren loads the children recorded by waitOnChildren, for the
// finalize pass.
func (e *Engine) spawnedChildren(parent *types.Action) ([]*types.Action, error) {
	raw, _ := parent.Data["child_ids"].([]string)
	if raw == nil {
		if arr, ok := parent.Data["child_ids"].([]any); ok {
			for _, v := range arr {
				if s, ok := v.(string); ok {
					raw = append(raw, s)
				}
			}
		}
	}
	children := make([]*types.Action, 0, len(raw))
	for _, id := range raw {
		c, err := e.store.GetAction(id)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return children, nil
}

func anyChildFailed(children []*types.Action) bool {
	for _, c := range children {
		if c.Status == types.ActionFailed {
			return true
		}
	}
	return false
}

func isSpawned(action *types.Action) bool {
	spawned, _ := action.Data["spawned"].(bool)
	return spawned
}

// driverFor resolves the ResourceDriver for a node's profile.
func (e *Engine) driverFor(node *types.Node) (driver.ResourceDriver, *types.Profile, error) {
	profile, err := e.store.GetProfile(node.ProfileID)
	if err != nil {
		return nil, nil, err
	}
	d, ok := driver.ForProfile(profile)
	if !ok {
		return nil, nil, fmt.Errorf("actionengine: no driver registered for profile type %s", profile.Type)
	}
	return d, profile, nil
}
