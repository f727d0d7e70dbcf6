// Package storage persists every entity the action execution engine knows
// about: profiles, clusters, nodes, policies and bindings, actions, the two
// lock kinds, service liveness records, credentials, and the health
// registry. It is also where project-scoped visibility, short-id
// resolution, and stable pagination live, since all three
// are properties of how rows are read back, not of any one entity.
package storage

import (
	"time"

	"github.com/nodeforge/fleetengine/pkg/types"
)

// ListOptions controls project scoping, pagination and sorting shared by
// every List* method. A zero-value ListOptions lists everything visible to
// an admin, unsorted, unpaginated.
type ListOptions struct {
	// Project restricts results to one project, unless IsAdmin is set.
	Project string
	IsAdmin bool

	// Filters is an exact-match filter over well-known fields (e.g.
	// "status", "name"); unrecognized keys are rejected with an
	// apierror.InvalidParameterError, not silently ignored.
	Filters map[string]string

	// Sort holds comma-separated "key[:asc|:desc]" entries, e.g.
	// "created_at:desc,name". "id" is appended automatically if absent,
	// so pagination is always stable even with duplicate sort-key values.
	Sort string

	Limit  int
	Marker string // id of the last item of the previous page
}

// Store is the durable backing store for the engine. Every mutating method
// is a single key/value put; ordering across entities (e.g. an Action that
// depends on a Cluster existing) is the caller's responsibility, not the
// store's — the store does not enforce foreign keys.
type Store interface {
	// Profiles
	CreateProfile(p *types.Profile) error
	GetProfile(id string) (*types.Profile, error)
	ListProfiles(opts ListOptions) ([]*types.Profile, error)
	UpdateProfile(p *types.Profile) error
	DeleteProfile(id string) error

	// Clusters
	CreateCluster(c *types.Cluster) error
	GetCluster(id string) (*types.Cluster, error)
	ListClusters(opts ListOptions) ([]*types.Cluster, error)
	UpdateCluster(c *types.Cluster) error
	DeleteCluster(id string) error
	// NextNodeIndex atomically increments and returns a cluster's node
	// index counter, so concurrently created nodes never collide.
	NextNodeIndex(clusterID string) (int, error)

	// Nodes
	CreateNode(n *types.Node) error
	GetNode(id string) (*types.Node, error)
	ListNodes(opts ListOptions) ([]*types.Node, error)
	ListNodesByCluster(clusterID string) ([]*types.Node, error)
	UpdateNode(n *types.Node) error
	DeleteNode(id string) error
	// MigrateNode reassigns a node to a new cluster (or to "" for orphan)
	// and a new index, as a single atomic update.
	MigrateNode(nodeID, newClusterID string, newIndex int) error

	// Policies
	CreatePolicy(p *types.Policy) error
	GetPolicy(id string) (*types.Policy, error)
	ListPolicies(opts ListOptions) ([]*types.Policy, error)
	UpdatePolicy(p *types.Policy) error
	DeletePolicy(id string) error

	// Cluster-policy bindings
	CreateBinding(b *types.ClusterPolicyBinding) error
	GetBinding(clusterID, policyID string) (*types.ClusterPolicyBinding, error)
	ListBindingsByCluster(clusterID string) ([]*types.ClusterPolicyBinding, error)
	UpdateBinding(b *types.ClusterPolicyBinding) error
	DeleteBinding(clusterID, policyID string) error

	// Actions
	CreateAction(a *types.Action) error
	GetAction(id string) (*types.Action, error)
	ListActions(opts ListOptions) ([]*types.Action, error)
	ListActionsByTarget(targetID string) ([]*types.Action, error)
	ListActionsByOwner(engineID string) ([]*types.Action, error)
	UpdateAction(a *types.Action) error
	DeleteAction(id string) error
	// ClaimReadyAction atomically transitions one READY action (chosen by
	// the store, oldest first) to RUNNING under the given owner, or
	// returns (nil, nil) if none are READY. This is the CAS primitive
	// pkg/dispatcher polls.
	ClaimReadyAction(engineID string) (*types.Action, error)

	// Cluster locks
	GetClusterLock(clusterID string) (*types.ClusterLock, error)
	PutClusterLock(l *types.ClusterLock) error
	DeleteClusterLock(clusterID string) error
	// AcquireClusterLock, ReleaseClusterLock and StealClusterLock are the
	// atomic compare-and-swap primitives pkg/lock builds its policy on top
	// of; Put/Delete above exist for replication snapshot/restore only.
	AcquireClusterLock(clusterID, actionID string, scope types.LockScope) ([]string, error)
	ReleaseClusterLock(clusterID, actionID string) (bool, error)
	StealClusterLock(clusterID, newActionID string) error

	// Node locks
	GetNodeLock(nodeID string) (*types.NodeLock, error)
	PutNodeLock(l *types.NodeLock) error
	DeleteNodeLock(nodeID string) error
	AcquireNodeLock(nodeID, actionID string) (string, error)
	ReleaseNodeLock(nodeID, actionID string) (bool, error)
	StealNodeLock(nodeID, newActionID string) error

	// Engine liveness
	CreateService(s *types.Service) error
	GetService(id string) (*types.Service, error)
	ListServices() ([]*types.Service, error)
	UpdateService(s *types.Service) error
	DeleteService(id string) error

	// Credentials
	PutCredential(c *types.Credential) error
	GetCredential(user, project string) (*types.Credential, error)
	DeleteCredential(user, project string) error

	// Health registry
	PutRegistryEntry(e *types.RegistryEntry) error
	GetRegistryEntry(clusterID string) (*types.RegistryEntry, error)
	ListRegistryEntries() ([]*types.RegistryEntry, error)
	DeleteRegistryEntry(clusterID string) error
	// ClaimRegistryEntry and StealRegistryEntry are the atomic
	// compare-and-swap primitives pkg/health builds its claim policy on.
	ClaimRegistryEntry(clusterID, engineID string, now time.Time) (*types.RegistryEntry, error)
	StealRegistryEntry(clusterID, engineID string, now time.Time) error

	// Events
	AppendEvent(ev *types.Event) error
	ListEventsByCluster(clusterID string, opts ListOptions) ([]*types.Event, error)
	// PruneEvents deletes the oldest events for clusterID down to
	// keep, in batches of at most batchSize per call. It is a no-op
	// when keep <= 0, matching the "never purge" default.
	PruneEvents(clusterID string, keep, batchSize int) (int, error)

	// GCByEngine releases every cluster/node lock held by a dead engine's
	// actions and marks every RUNNING action it owned FAILED ("Engine
	// failure"), cascading to their dependents, so pkg/lock.ReapEngine can
	// make one call instead of iterating by hand.
	GCByEngine(engineID string) (releasedLocks int, releasedActions int, err error)

	Close() error
}

// shortIDCandidates is implemented by stores that support resolving a
// short, unique ID prefix to a full entity ID; callers
// outside this package should go through pkg/apierror's MultipleChoices
// wiring rather than depend on this directly.
type shortIDCandidates interface {
	ResolveShortID(kind, prefix string) (string, error)
}

var _ shortIDCandidates = (*BoltStore)(nil)

// clock lets tests stub time without relying on the forbidden time.Now in
// generated helper code paths that must stay deterministic.
var clock = time.Now
