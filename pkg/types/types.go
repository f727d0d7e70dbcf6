package types

import "time"

// Profile is an immutable template for creating nodes.
type Profile struct {
	ID        string
	Name      string
	Type      string // names a driver plugin, e.g. "os.nova.server"
	Spec      map[string]any
	Metadata  map[string]string
	Project   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClusterStatus is the lifecycle status of a Cluster.
type ClusterStatus string

const (
	ClusterInit     ClusterStatus = "INIT"
	ClusterCreating ClusterStatus = "CREATING"
	ClusterActive   ClusterStatus = "ACTIVE"
	ClusterUpdating ClusterStatus = "UPDATING"
	ClusterResizing ClusterStatus = "RESIZING"
	ClusterCritical ClusterStatus = "CRITICAL"
	ClusterWarning  ClusterStatus = "WARNING"
	ClusterError    ClusterStatus = "ERROR"
	ClusterDeleting ClusterStatus = "DELETING"
)

// UnboundedMaxSize is the sentinel value for an unbounded cluster max_size.
const UnboundedMaxSize = -1

// Cluster is a set of nodes sharing a profile.
type Cluster struct {
	ID              string
	Name            string
	ProfileID       string
	User            string
	Project         string
	MinSize         int
	MaxSize         int // -1 == unbounded
	DesiredCapacity int
	NextIndex       int // monotonic node index counter
	Timeout         time.Duration
	Status          ClusterStatus
	StatusReason    string
	Metadata        map[string]string
	Data            map[string]any // driver scratch
	Dependents      map[string][]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// Validate checks the cluster size invariants.
func (c *Cluster) Validate() error {
	if c.MinSize > c.DesiredCapacity {
		return &InvalidSizeError{Reason: "min_size exceeds desired_capacity"}
	}
	if c.MaxSize != UnboundedMaxSize && c.DesiredCapacity > c.MaxSize {
		return &InvalidSizeError{Reason: "desired_capacity exceeds max_size"}
	}
	return nil
}

// InvalidSizeError reports a cluster size-invariant violation.
type InvalidSizeError struct {
	Reason string
}

func (e *InvalidSizeError) Error() string { return e.Reason }

// NodeStatus is the lifecycle status of a Node.
type NodeStatus string

const (
	NodeInit       NodeStatus = "INIT"
	NodeCreating   NodeStatus = "CREATING"
	NodeActive     NodeStatus = "ACTIVE"
	NodeUpdating   NodeStatus = "UPDATING"
	NodeError      NodeStatus = "ERROR"
	NodeDeleting   NodeStatus = "DELETING"
	NodeRecovering NodeStatus = "RECOVERING"
	NodeWarning    NodeStatus = "WARNING"
)

// OrphanIndex is the Index value of a node that does not belong to a cluster.
const OrphanIndex = -1

// Node is one managed resource.
type Node struct {
	ID           string
	Name         string
	PhysicalID   string // assigned by the driver; empty until created
	ClusterID    string // "" == orphan
	ProfileID    string
	Index        int // unique within cluster, or OrphanIndex
	Role         string
	Status       NodeStatus
	StatusReason string
	Metadata     map[string]string
	Data         map[string]any
	Dependents   map[string][]string
	Project      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Policy is a reusable decision module attached to clusters via bindings.
// Immutable once created except for Name.
type Policy struct {
	ID        string
	Name      string
	Type      string // names a policy plugin
	Spec      map[string]any
	Data      map[string]any
	Project   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClusterPolicyBinding attaches a Policy to a Cluster.
type ClusterPolicyBinding struct {
	ClusterID string
	PolicyID  string
	Priority  int // lower runs earlier
	Enabled   bool
	Data      map[string]any // per-cluster policy scratch
	LastOp    time.Time
}

// ActionKind names the kind of work an Action performs.
type ActionKind string

const (
	ClusterCreate       ActionKind = "CLUSTER_CREATE"
	ClusterDelete       ActionKind = "CLUSTER_DELETE"
	ClusterUpdate       ActionKind = "CLUSTER_UPDATE"
	ClusterAddNodes     ActionKind = "CLUSTER_ADD_NODES"
	ClusterDelNodes     ActionKind = "CLUSTER_DEL_NODES"
	ClusterResize       ActionKind = "CLUSTER_RESIZE"
	ClusterScaleIn      ActionKind = "CLUSTER_SCALE_IN"
	ClusterScaleOut     ActionKind = "CLUSTER_SCALE_OUT"
	ClusterReplaceNodes ActionKind = "CLUSTER_REPLACE_NODES"
	ClusterCheck        ActionKind = "CLUSTER_CHECK"
	ClusterRecover      ActionKind = "CLUSTER_RECOVER"
	ClusterAttachPolicy ActionKind = "CLUSTER_ATTACH_POLICY"
	ClusterDetachPolicy ActionKind = "CLUSTER_DETACH_POLICY"
	ClusterUpdatePolicy ActionKind = "CLUSTER_UPDATE_POLICY"
	ClusterOperation    ActionKind = "CLUSTER_OPERATION"
	NodeCreate          ActionKind = "NODE_CREATE"
	NodeDelete          ActionKind = "NODE_DELETE"
	NodeUpdate          ActionKind = "NODE_UPDATE"
	NodeCheck           ActionKind = "NODE_CHECK"
	NodeRecover         ActionKind = "NODE_RECOVER"
	NodeOperation       ActionKind = "NODE_OPERATION"
)

// ActionStatus is the state-machine status of an Action.
type ActionStatus string

const (
	ActionInit      ActionStatus = "INIT"
	ActionWaiting   ActionStatus = "WAITING"
	ActionReady     ActionStatus = "READY"
	ActionRunning   ActionStatus = "RUNNING"
	ActionSuspended ActionStatus = "SUSPENDED"
	ActionSucceeded ActionStatus = "SUCCEEDED"
	ActionFailed    ActionStatus = "FAILED"
	ActionCancelled ActionStatus = "CANCELLED"
)

// IsTerminal reports whether status is a terminal Action status.
func (s ActionStatus) IsTerminal() bool {
	return s == ActionSucceeded || s == ActionFailed || s == ActionCancelled
}

// ControlSignal is a caller-written signal an Action polls at checkpoints.
type ControlSignal string

const (
	ControlNone    ControlSignal = ""
	ControlCancel  ControlSignal = "CANCEL"
	ControlSuspend ControlSignal = "SUSPEND"
	ControlResume  ControlSignal = "RESUME"
)

// Action is a unit of scheduled work with a dependency DAG.
type Action struct {
	ID           string
	Name         string
	Target       string // id of cluster/node/policy
	Action       ActionKind
	Cause        string
	Owner        string // worker/engine id holding it
	Interval     time.Duration
	OneShot      bool // true == Interval is not applicable (legacy -1)
	StartTime    time.Time
	EndTime      time.Time
	Timeout      time.Duration
	Status       ActionStatus
	StatusReason string
	Control      ControlSignal
	Inputs       map[string]any
	Outputs      map[string]any
	DependsOn    map[string]bool
	DependedBy   map[string]bool
	Data         map[string]any // scratch shared with policies
	Project      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LockScope is the compatibility class of a ClusterLock.
type LockScope int

const (
	ScopeExclusive LockScope = -1
	ScopeShared    LockScope = 1
)

// ClusterLock is an exclusive or shared lock on a cluster.
type ClusterLock struct {
	ClusterID string
	ActionIDs []string // ordered set of current holders
	Scope     LockScope
}

// NodeLock is an always-exclusive lock on one node.
type NodeLock struct {
	NodeID   string
	ActionID string
}

// Credential is a per-(user, project) secret, encrypted at rest, used only
// to impersonate the owning principal for actions whose originator is no
// longer authenticated (e.g. scheduled recovery).
type Credential struct {
	User    string
	Project string
	Cred    map[string]string // opaque, values are ciphertext
}

// Service is an engine-worker liveness record.
type Service struct {
	ID             string
	Host           string
	Binary         string
	Topic          string
	UpdatedAt      time.Time
	Disabled       bool
	DisabledReason string
}

// RegistryEntry drives HealthRegistry's periodic per-cluster health checks.
type RegistryEntry struct {
	ClusterID string
	CheckType string
	Interval  time.Duration
	Params    map[string]any
	EngineID  string // claiming engine, "" if unclaimed
	Enabled   bool
	UpdatedAt time.Time
}

// Event is a structured record emitted when an Action reaches a terminal
// status.
type Event struct {
	Timestamp time.Time
	Level     string
	OID       string
	OType     string
	OName     string
	ClusterID string
	Action    string
	Status    string
	Reason    string
	Meta      map[string]string
	Project   string
}
