package coordinator

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/nodeforge/fleetengine/pkg/log"
	"github.com/nodeforge/fleetengine/pkg/metrics"
	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
)

// Coordinator owns the Raft group and the FSM wrapping the local Store. It
// is the only thing in the engine allowed to call raft.Apply; everything
// else goes through its typed helper methods.
type Coordinator struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft  *raft.Raft
	fsm   *FSM
	store storage.Store
}

// Config configures a Coordinator.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// New creates a Coordinator over an already-open Store.
func New(cfg Config, store storage.Store) *Coordinator {
	return &Coordinator{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      NewFSM(store),
		store:    store,
	}
}

func (c *Coordinator) raftConfig() *raft.Config {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(c.nodeID)
	// Tuned for LAN/edge deployments rather than raft's WAN-conservative
	// defaults: a dead engine's locks and RUNNING actions should free up
	// well within one periodic_interval tick.
	cfg.HeartbeatTimeout = 500 * time.Millisecond
	cfg.ElectionTimeout = 500 * time.Millisecond
	cfg.LeaderLeaseTimeout = 250 * time.Millisecond
	return cfg
}

func (c *Coordinator) newRaft() (*raft.Raft, error) {
	cfg := c.raftConfig()

	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create stable store: %w", err)
	}

	return raft.NewRaft(cfg, c.fsm, logStore, stableStore, snapshotStore, transport)
}

// Bootstrap starts a brand-new single-node Raft group with this engine as
// its only member.
func (c *Coordinator) Bootstrap() error {
	r, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(c.nodeID), Address: raft.ServerAddress(c.bindAddr)}},
	})
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap raft group: %w", err)
	}
	return nil
}

// Join starts Raft locally without bootstrapping a group. Admission to an
// existing group is a separate step: AddVoter, called on the current leader.
func (c *Coordinator) Join() error {
	r, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r
	return nil
}

// AddVoter adds a peer engine to the Raft group. Must be called on the
// current leader.
func (c *Coordinator) AddVoter(nodeID, address string) error {
	if c.raft == nil {
		return fmt.Errorf("coordinator: raft not initialized")
	}
	if c.raft.State() != raft.Leader {
		return fmt.Errorf("coordinator: not the leader, current leader is %s", c.raft.Leader())
	}
	future := c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	return future.Error()
}

// RemoveServer removes a peer from the Raft group. Must be called on the
// current leader.
func (c *Coordinator) RemoveServer(nodeID string) error {
	if c.raft == nil {
		return fmt.Errorf("coordinator: raft not initialized")
	}
	if c.raft.State() != raft.Leader {
		return fmt.Errorf("coordinator: not the leader")
	}
	future := c.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	return future.Error()
}

// IsLeader reports whether this engine currently holds Raft leadership.
func (c *Coordinator) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// LeaderAddr returns the bind address of the current leader, or "".
func (c *Coordinator) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

// Stats reports a handful of Raft health figures for metrics/status.
func (c *Coordinator) Stats() map[string]any {
	if c.raft == nil {
		return nil
	}
	peers := 0
	if f := c.raft.GetConfiguration(); f.Error() == nil {
		peers = len(f.Configuration().Servers)
	}
	return map[string]any{
		"state":         c.raft.State().String(),
		"last_log_index": c.raft.LastIndex(),
		"applied_index":  c.raft.AppliedIndex(),
		"leader":         string(c.raft.Leader()),
		"peers":          peers,
	}
}

// apply marshals op/data as a Command, submits it through Raft, and
// unmarshals the FSM's response (if respPtr is non-nil) or returns its
// error (if the FSM returned one).
func (c *Coordinator) apply(op string, data any, respPtr any) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	if c.raft == nil {
		return fmt.Errorf("coordinator: raft not initialized")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("coordinator: failed to marshal %s payload: %w", op, err)
	}
	cmdData, err := json.Marshal(Command{Op: op, Data: payload})
	if err != nil {
		return err
	}

	future := c.raft.Apply(cmdData, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("coordinator: failed to apply %s: %w", op, err)
	}

	resp := future.Response()
	if err, ok := resp.(error); ok && err != nil {
		return err
	}
	if respPtr == nil {
		return nil
	}

	roundTripped, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(roundTripped, respPtr)
}

// CreateProfile replicates profile creation.
func (c *Coordinator) CreateProfile(p *types.Profile) error { return c.apply("create_profile", p, nil) }

// UpdateProfile replicates a profile update.
func (c *Coordinator) UpdateProfile(p *types.Profile) error { return c.apply("update_profile", p, nil) }

// DeleteProfile replicates a profile deletion.
func (c *Coordinator) DeleteProfile(id string) error { return c.apply("delete_profile", id, nil) }

// CreateCluster replicates cluster creation.
func (c *Coordinator) CreateCluster(cl *types.Cluster) error { return c.apply("create_cluster", cl, nil) }

// UpdateCluster replicates a cluster update.
func (c *Coordinator) UpdateCluster(cl *types.Cluster) error { return c.apply("update_cluster", cl, nil) }

// DeleteCluster replicates a cluster deletion.
func (c *Coordinator) DeleteCluster(id string) error { return c.apply("delete_cluster", id, nil) }

// CreateNode replicates node creation.
func (c *Coordinator) CreateNode(n *types.Node) error { return c.apply("create_node", n, nil) }

// UpdateNode replicates a node update.
func (c *Coordinator) UpdateNode(n *types.Node) error { return c.apply("update_node", n, nil) }

// DeleteNode replicates a node deletion.
func (c *Coordinator) DeleteNode(id string) error { return c.apply("delete_node", id, nil) }

// MigrateNode replicates a node reassignment between clusters.
func (c *Coordinator) MigrateNode(nodeID, newClusterID string, newIndex int) error {
	return c.apply("migrate_node", struct {
		NodeID       string `json:"node_id"`
		NewClusterID string `json:"new_cluster_id"`
		NewIndex     int    `json:"new_index"`
	}{nodeID, newClusterID, newIndex}, nil)
}

// CreatePolicy replicates policy creation.
func (c *Coordinator) CreatePolicy(p *types.Policy) error { return c.apply("create_policy", p, nil) }

// UpdatePolicy replicates a policy update.
func (c *Coordinator) UpdatePolicy(p *types.Policy) error { return c.apply("update_policy", p, nil) }

// DeletePolicy replicates a policy deletion.
func (c *Coordinator) DeletePolicy(id string) error { return c.apply("delete_policy", id, nil) }

// CreateBinding replicates a cluster-policy binding creation.
func (c *Coordinator) CreateBinding(b *types.ClusterPolicyBinding) error {
	return c.apply("create_binding", b, nil)
}

// UpdateBinding replicates a binding update.
func (c *Coordinator) UpdateBinding(b *types.ClusterPolicyBinding) error {
	return c.apply("update_binding", b, nil)
}

// DeleteBinding replicates a binding deletion.
func (c *Coordinator) DeleteBinding(clusterID, policyID string) error {
	return c.apply("delete_binding", struct{ ClusterID, PolicyID string }{clusterID, policyID}, nil)
}

// CreateAction replicates action creation.
func (c *Coordinator) CreateAction(a *types.Action) error { return c.apply("create_action", a, nil) }

// UpdateAction replicates an action update.
func (c *Coordinator) UpdateAction(a *types.Action) error { return c.apply("update_action", a, nil) }

// DeleteAction replicates an action deletion.
func (c *Coordinator) DeleteAction(id string) error { return c.apply("delete_action", id, nil) }

// ClaimReadyAction replicates the dispatcher's READY->RUNNING CAS; the
// winner is whichever engine's Apply the Raft leader commits first.
func (c *Coordinator) ClaimReadyAction(engineID string) (*types.Action, error) {
	var result claimResult
	if err := c.apply("claim_ready_action", engineID, &result); err != nil {
		return nil, err
	}
	return result.Action, nil
}

// AcquireClusterLock replicates a cluster lock acquisition attempt and
// returns the resulting holder set; actionID is absent from it if the
// acquisition lost to an incompatible existing lock.
func (c *Coordinator) AcquireClusterLock(clusterID, actionID string, scope types.LockScope) ([]string, error) {
	var result holdersResult
	if err := c.apply("acquire_cluster_lock", struct {
		ClusterID, ActionID string
		Scope                types.LockScope
	}{clusterID, actionID, scope}, &result); err != nil {
		return nil, err
	}
	return result.Holders, nil
}

// ReleaseClusterLock replicates a cluster lock release.
func (c *Coordinator) ReleaseClusterLock(clusterID, actionID string) (bool, error) {
	var result boolResult
	if err := c.apply("release_cluster_lock", struct{ ClusterID, ActionID string }{clusterID, actionID}, &result); err != nil {
		return false, err
	}
	return result.Removed, nil
}

// StealClusterLock replicates an unconditional forced cluster lock steal.
func (c *Coordinator) StealClusterLock(clusterID, newActionID string) error {
	return c.apply("steal_cluster_lock", struct{ ClusterID, NewActionID string }{clusterID, newActionID}, nil)
}

// AcquireNodeLock replicates a node lock CAS-insert, returning the current
// holder (equal to actionID iff this call won it).
func (c *Coordinator) AcquireNodeLock(nodeID, actionID string) (string, error) {
	var result holderResult
	if err := c.apply("acquire_node_lock", struct{ NodeID, ActionID string }{nodeID, actionID}, &result); err != nil {
		return "", err
	}
	return result.Holder, nil
}

// ReleaseNodeLock replicates a node lock release.
func (c *Coordinator) ReleaseNodeLock(nodeID, actionID string) (bool, error) {
	var result boolResult
	if err := c.apply("release_node_lock", struct{ NodeID, ActionID string }{nodeID, actionID}, &result); err != nil {
		return false, err
	}
	return result.Removed, nil
}

// StealNodeLock replicates an unconditional forced node lock steal.
func (c *Coordinator) StealNodeLock(nodeID, newActionID string) error {
	return c.apply("steal_node_lock", struct{ NodeID, NewActionID string }{nodeID, newActionID}, nil)
}

// CreateService replicates an engine liveness record creation.
func (c *Coordinator) CreateService(s *types.Service) error { return c.apply("create_service", s, nil) }

// UpdateService replicates a liveness heartbeat.
func (c *Coordinator) UpdateService(s *types.Service) error { return c.apply("update_service", s, nil) }

// DeleteService replicates removal of a liveness record.
func (c *Coordinator) DeleteService(id string) error { return c.apply("delete_service", id, nil) }

// PutCredential replicates storing an (already encrypted) credential.
func (c *Coordinator) PutCredential(cred *types.Credential) error {
	return c.apply("put_credential", cred, nil)
}

// DeleteCredential replicates credential removal.
func (c *Coordinator) DeleteCredential(user, project string) error {
	return c.apply("delete_credential", struct{ User, Project string }{user, project}, nil)
}

// PutRegistryEntry replicates a health registry upsert.
func (c *Coordinator) PutRegistryEntry(e *types.RegistryEntry) error {
	return c.apply("put_registry_entry", e, nil)
}

// DeleteRegistryEntry replicates a health registry removal.
func (c *Coordinator) DeleteRegistryEntry(clusterID string) error {
	return c.apply("delete_registry_entry", clusterID, nil)
}

// ClaimRegistryEntry replicates a health registry claim attempt; the caller
// compares the returned entry's EngineID against engineID to tell whether
// it won.
func (c *Coordinator) ClaimRegistryEntry(clusterID, engineID string, now time.Time) (*types.RegistryEntry, error) {
	var result registryEntryResult
	if err := c.apply("claim_registry_entry", struct {
		ClusterID, EngineID string
		Now                 time.Time
	}{clusterID, engineID, now}, &result); err != nil {
		return nil, err
	}
	return result.Entry, nil
}

// StealRegistryEntry replicates an unconditional forced registry claim.
func (c *Coordinator) StealRegistryEntry(clusterID, engineID string, now time.Time) error {
	return c.apply("steal_registry_entry", struct {
		ClusterID, EngineID string
		Now                 time.Time
	}{clusterID, engineID, now}, nil)
}

// AppendEvent replicates an event append.
func (c *Coordinator) AppendEvent(ev *types.Event) error { return c.apply("append_event", ev, nil) }

// GCByEngine replicates releasing every lock/action held by a dead engine.
func (c *Coordinator) GCByEngine(engineID string) (int, int, error) {
	var result gcResult
	if err := c.apply("gc_by_engine", engineID, &result); err != nil {
		return 0, 0, err
	}
	return result.ReleasedLocks, result.ReleasedActions, nil
}

// Store exposes the read path directly: reads never need Raft consensus,
// only writes do, since every follower's FSM applies the same committed log.
func (c *Coordinator) Store() storage.Store { return c.store }

// Shutdown shuts down the local Raft instance, logging the shutdown at info
// level first.
func (c *Coordinator) Shutdown() error {
	if c.raft == nil {
		return nil
	}
	log.Info("coordinator: shutting down raft")
	return c.raft.Shutdown().Error()
}
