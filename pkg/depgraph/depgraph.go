// Package depgraph maintains the depends_on/depended_by edges between
// Actions and propagates terminal-state transitions across them: a
// descendant becomes READY only once every parent has succeeded, and a
// single failed or cancelled ancestor fans that status out to its entire
// downstream closure.
package depgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/nodeforge/fleetengine/pkg/events"
	"github.com/nodeforge/fleetengine/pkg/metrics"
	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
)

// Graph operates on a Store's Action rows, issuing one Store write per edge
// or status change so the Store's own transaction boundaries provide
// durability.
type Graph struct {
	store storage.Store
	sink  events.Sink
}

// New builds a Graph over store, emitting transition events to sink.
func New(store storage.Store, sink events.Sink) *Graph {
	return &Graph{store: store, sink: sink}
}

// AddDependency wires parents -> child, one edge per parent, then marks
// child WAITING. Only the many-parents-to-one-child form is accepted; a
// single parent with several children takes one call per child.
func (g *Graph) AddDependency(parents []*types.Action, child *types.Action) error {
	if child.DependsOn == nil {
		child.DependsOn = map[string]bool{}
	}
	for _, p := range parents {
		if p.DependedBy == nil {
			p.DependedBy = map[string]bool{}
		}
		p.DependedBy[child.ID] = true
		child.DependsOn[p.ID] = true
		if err := g.store.UpdateAction(p); err != nil {
			return fmt.Errorf("depgraph: failed to record edge %s->%s: %w", p.ID, child.ID, err)
		}
	}
	child.Status = types.ActionWaiting
	child.StatusReason = "waiting on dependency"
	return g.store.UpdateAction(child)
}

// DelDependency removes parents -> child edges; once child has no
// remaining parents it transitions to READY. Idempotent: removing an edge
// that does not exist is a no-op for that pair.
func (g *Graph) DelDependency(parents []*types.Action, child *types.Action) error {
	for _, p := range parents {
		if p.DependedBy != nil {
			delete(p.DependedBy, child.ID)
			if err := g.store.UpdateAction(p); err != nil {
				return fmt.Errorf("depgraph: failed to remove edge %s->%s: %w", p.ID, child.ID, err)
			}
		}
		if child.DependsOn != nil {
			delete(child.DependsOn, p.ID)
		}
	}
	if len(child.DependsOn) == 0 {
		child.Status = types.ActionReady
		child.StatusReason = "dependencies satisfied"
	}
	return g.store.UpdateAction(child)
}

// MarkSucceeded transitions action to SUCCEEDED and releases every edge to
// its dependents, which may make some of them READY in turn.
func (g *Graph) MarkSucceeded(action *types.Action, ts time.Time) error {
	action.Status = types.ActionSucceeded
	action.EndTime = ts
	if err := g.store.UpdateAction(action); err != nil {
		return err
	}
	g.emit(action, "SUCCEEDED", "")

	for depID := range action.DependedBy {
		dep, err := g.store.GetAction(depID)
		if err != nil {
			return err
		}
		if err := g.DelDependency([]*types.Action{action}, dep); err != nil {
			return err
		}
	}
	return nil
}

// MarkFailed transitions action to FAILED and recursively fails its entire
// downstream closure with the same timestamp — a work-queue walk rather
// than recursion, so an arbitrarily deep DAG never grows the call stack.
func (g *Graph) MarkFailed(action *types.Action, ts time.Time, reason string) error {
	return g.cascade(action, ts, types.ActionFailed, reason)
}

// MarkCancelled is MarkFailed's twin for CANCELLED.
func (g *Graph) MarkCancelled(action *types.Action, ts time.Time, reason string) error {
	return g.cascade(action, ts, types.ActionCancelled, reason)
}

func (g *Graph) cascade(root *types.Action, ts time.Time, status types.ActionStatus, reason string) error {
	queue := []*types.Action{root}
	seen := map[string]bool{}

	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true

		a.Status = status
		a.StatusReason = reason
		a.EndTime = ts
		if err := g.store.UpdateAction(a); err != nil {
			return err
		}
		g.emit(a, string(status), reason)

		for depID := range a.DependedBy {
			dep, err := g.store.GetAction(depID)
			if err != nil {
				return err
			}
			queue = append(queue, dep)
		}
	}
	metrics.DependencyCascadeSize.Observe(float64(len(seen)))
	return nil
}

func (g *Graph) emit(a *types.Action, status, reason string) {
	if g.sink == nil {
		return
	}
	g.sink.Emit(context.Background(), types.Event{
		Timestamp: time.Now(),
		Level:     events.LevelInfo,
		OID:       a.ID,
		OType:     "action",
		OName:     a.Name,
		ClusterID: a.Target,
		Action:    string(a.Action),
		Status:    status,
		Reason:    reason,
		Project:   a.Project,
	})
}
