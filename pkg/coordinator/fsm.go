// Package coordinator replicates every Store mutation through a Raft log,
// so that when more than one engine process is running, exactly one of
// them wins any given compare-and-swap — the "at most one engine
// owns an action" guarantee, lifted from a single process's mutex to a
// Raft-committed sequence of commands.
package coordinator

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
)

// FSM implements raft.FSM by dispatching committed Commands to a Store.
type FSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewFSM wraps store for Raft replication.
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Command is one replicated state mutation.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// claimResult is what ClaimReadyAction's Apply response carries back to the
// caller, since claim either returns an action or nil with no error.
type claimResult struct {
	Action *types.Action `json:"action"`
}

// gcResult carries GCByEngine's two counters back through raft.Apply.
type gcResult struct {
	ReleasedLocks   int `json:"released_locks"`
	ReleasedActions int `json:"released_actions"`
}

// holdersResult carries AcquireClusterLock's resulting holder set.
type holdersResult struct {
	Holders []string `json:"holders"`
}

// holderResult carries AcquireNodeLock's current holder.
type holderResult struct {
	Holder string `json:"holder"`
}

// boolResult carries a release call's removed flag.
type boolResult struct {
	Removed bool `json:"removed"`
}

// registryEntryResult carries a registry claim attempt's resulting entry.
type registryEntryResult struct {
	Entry *types.RegistryEntry `json:"entry"`
}

// Apply applies one committed log entry. The returned value, if it
// implements error, is surfaced by raft.ApplyFuture.Response() the same way
// it was in the FSM this is adapted from.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("coordinator: failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case "create_profile":
		return decodeAndCall(cmd.Data, new(types.Profile), f.store.CreateProfile)
	case "update_profile":
		return decodeAndCall(cmd.Data, new(types.Profile), f.store.UpdateProfile)
	case "delete_profile":
		return decodeAndCallID(cmd.Data, f.store.DeleteProfile)

	case "create_cluster":
		return decodeAndCall(cmd.Data, new(types.Cluster), f.store.CreateCluster)
	case "update_cluster":
		return decodeAndCall(cmd.Data, new(types.Cluster), f.store.UpdateCluster)
	case "delete_cluster":
		return decodeAndCallID(cmd.Data, f.store.DeleteCluster)

	case "create_node":
		return decodeAndCall(cmd.Data, new(types.Node), f.store.CreateNode)
	case "update_node":
		return decodeAndCall(cmd.Data, new(types.Node), f.store.UpdateNode)
	case "delete_node":
		return decodeAndCallID(cmd.Data, f.store.DeleteNode)
	case "migrate_node":
		var args struct {
			NodeID       string `json:"node_id"`
			NewClusterID string `json:"new_cluster_id"`
			NewIndex     int    `json:"new_index"`
		}
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.store.MigrateNode(args.NodeID, args.NewClusterID, args.NewIndex)

	case "create_policy":
		return decodeAndCall(cmd.Data, new(types.Policy), f.store.CreatePolicy)
	case "update_policy":
		return decodeAndCall(cmd.Data, new(types.Policy), f.store.UpdatePolicy)
	case "delete_policy":
		return decodeAndCallID(cmd.Data, f.store.DeletePolicy)

	case "create_binding":
		return decodeAndCall(cmd.Data, new(types.ClusterPolicyBinding), f.store.CreateBinding)
	case "update_binding":
		return decodeAndCall(cmd.Data, new(types.ClusterPolicyBinding), f.store.UpdateBinding)
	case "delete_binding":
		var args struct{ ClusterID, PolicyID string }
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.store.DeleteBinding(args.ClusterID, args.PolicyID)

	case "create_action":
		return decodeAndCall(cmd.Data, new(types.Action), f.store.CreateAction)
	case "update_action":
		return decodeAndCall(cmd.Data, new(types.Action), f.store.UpdateAction)
	case "delete_action":
		return decodeAndCallID(cmd.Data, f.store.DeleteAction)
	case "claim_ready_action":
		var engineID string
		if err := json.Unmarshal(cmd.Data, &engineID); err != nil {
			return err
		}
		a, err := f.store.ClaimReadyAction(engineID)
		if err != nil {
			return err
		}
		return claimResult{Action: a}

	case "acquire_cluster_lock":
		var args struct {
			ClusterID, ActionID string
			Scope                types.LockScope
		}
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		holders, err := f.store.AcquireClusterLock(args.ClusterID, args.ActionID, args.Scope)
		if err != nil {
			return err
		}
		return holdersResult{Holders: holders}
	case "release_cluster_lock":
		var args struct{ ClusterID, ActionID string }
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		removed, err := f.store.ReleaseClusterLock(args.ClusterID, args.ActionID)
		if err != nil {
			return err
		}
		return boolResult{Removed: removed}
	case "steal_cluster_lock":
		var args struct{ ClusterID, NewActionID string }
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.store.StealClusterLock(args.ClusterID, args.NewActionID)

	case "acquire_node_lock":
		var args struct{ NodeID, ActionID string }
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		holder, err := f.store.AcquireNodeLock(args.NodeID, args.ActionID)
		if err != nil {
			return err
		}
		return holderResult{Holder: holder}
	case "release_node_lock":
		var args struct{ NodeID, ActionID string }
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		removed, err := f.store.ReleaseNodeLock(args.NodeID, args.ActionID)
		if err != nil {
			return err
		}
		return boolResult{Removed: removed}
	case "steal_node_lock":
		var args struct{ NodeID, NewActionID string }
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.store.StealNodeLock(args.NodeID, args.NewActionID)

	case "create_service":
		return decodeAndCall(cmd.Data, new(types.Service), f.store.CreateService)
	case "update_service":
		return decodeAndCall(cmd.Data, new(types.Service), f.store.UpdateService)
	case "delete_service":
		return decodeAndCallID(cmd.Data, f.store.DeleteService)

	case "put_credential":
		return decodeAndCall(cmd.Data, new(types.Credential), f.store.PutCredential)
	case "delete_credential":
		var args struct{ User, Project string }
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.store.DeleteCredential(args.User, args.Project)

	case "put_registry_entry":
		return decodeAndCall(cmd.Data, new(types.RegistryEntry), f.store.PutRegistryEntry)
	case "delete_registry_entry":
		return decodeAndCallID(cmd.Data, f.store.DeleteRegistryEntry)
	case "claim_registry_entry":
		var args struct {
			ClusterID, EngineID string
			Now                 time.Time
		}
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		entry, err := f.store.ClaimRegistryEntry(args.ClusterID, args.EngineID, args.Now)
		if err != nil {
			return err
		}
		return registryEntryResult{Entry: entry}
	case "steal_registry_entry":
		var args struct {
			ClusterID, EngineID string
			Now                 time.Time
		}
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.store.StealRegistryEntry(args.ClusterID, args.EngineID, args.Now)

	case "append_event":
		return decodeAndCall(cmd.Data, new(types.Event), f.store.AppendEvent)

	case "gc_by_engine":
		var engineID string
		if err := json.Unmarshal(cmd.Data, &engineID); err != nil {
			return err
		}
		locks, actions, err := f.store.GCByEngine(engineID)
		if err != nil {
			return err
		}
		return gcResult{ReleasedLocks: locks, ReleasedActions: actions}

	default:
		return fmt.Errorf("coordinator: unknown command %q", cmd.Op)
	}
}

func decodeAndCall[T any](data json.RawMessage, v *T, fn func(*T) error) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	return fn(v)
}

func decodeAndCallID(data json.RawMessage, fn func(string) error) error {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	return fn(id)
}

// Snapshot captures every bucket the FSM can replay through Restore.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	all := storage.ListOptions{IsAdmin: true}

	profiles, err := f.store.ListProfiles(all)
	if err != nil {
		return nil, err
	}
	clusters, err := f.store.ListClusters(all)
	if err != nil {
		return nil, err
	}
	nodes, err := f.store.ListNodes(all)
	if err != nil {
		return nil, err
	}
	policies, err := f.store.ListPolicies(all)
	if err != nil {
		return nil, err
	}
	actions, err := f.store.ListActions(all)
	if err != nil {
		return nil, err
	}
	services, err := f.store.ListServices()
	if err != nil {
		return nil, err
	}
	registry, err := f.store.ListRegistryEntries()
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Profiles: profiles,
		Clusters: clusters,
		Nodes:    nodes,
		Policies: policies,
		Actions:  actions,
		Services: services,
		Registry: registry,
	}, nil
}

// Restore replaces the store's contents with a previously captured Snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("coordinator: failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range snap.Profiles {
		if err := f.store.CreateProfile(p); err != nil {
			return err
		}
	}
	for _, c := range snap.Clusters {
		if err := f.store.CreateCluster(c); err != nil {
			return err
		}
	}
	for _, n := range snap.Nodes {
		if err := f.store.CreateNode(n); err != nil {
			return err
		}
	}
	for _, p := range snap.Policies {
		if err := f.store.CreatePolicy(p); err != nil {
			return err
		}
	}
	for _, a := range snap.Actions {
		if err := f.store.CreateAction(a); err != nil {
			return err
		}
	}
	for _, svc := range snap.Services {
		if err := f.store.CreateService(svc); err != nil {
			return err
		}
	}
	for _, r := range snap.Registry {
		if err := f.store.PutRegistryEntry(r); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot is a point-in-time copy of replicated state.
type Snapshot struct {
	Profiles []*types.Profile
	Clusters []*types.Cluster
	Nodes    []*types.Node
	Policies []*types.Policy
	Actions  []*types.Action
	Services []*types.Service
	Registry []*types.RegistryEntry
}

// Persist writes the snapshot to sink as JSON.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release is a no-op: Snapshot holds no resources beyond Go-GC'd memory.
func (s *Snapshot) Release() {}
