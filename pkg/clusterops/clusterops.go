// Package clusterops is the entry point every caller (CLI, future API
// surface, HealthRegistry) goes through to originate work: it validates a
// request, creates or mutates the Cluster/Node/Policy rows a reader expects
// to see immediately, and writes the one root Action row that makes the
// request visible to the dispatcher. It never executes an action itself —
// that is pkg/actionengine's job once the dispatcher claims what this
// package created.
package clusterops

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nodeforge/fleetengine/pkg/actionengine"
	"github.com/nodeforge/fleetengine/pkg/apierror"
	"github.com/nodeforge/fleetengine/pkg/log"
	"github.com/nodeforge/fleetengine/pkg/storage"
	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/rs/zerolog"
)

// Coordinator is the subset of pkg/coordinator's API clusterops needs to
// originate work: replicated writes of the rows it creates/mutates, plus
// read access to the Store for validation.
type Coordinator interface {
	Store() storage.Store
	CreateCluster(c *types.Cluster) error
	CreateAction(a *types.Action) error
}

// Service originates cluster and node lifecycle work.
type Service struct {
	coord  Coordinator
	logger zerolog.Logger
}

// New builds a Service over coord.
func New(coord Coordinator) *Service {
	return &Service{coord: coord, logger: log.WithComponent("clusterops")}
}

func newAction(kind types.ActionKind, target, cause string, inputs map[string]any) *types.Action {
	return &types.Action{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("%s-%s", kind, target),
		Target:    target,
		Action:    kind,
		Cause:     cause,
		Status:    types.ActionReady,
		Inputs:    inputs,
		CreatedAt: time.Now(),
	}
}

// CreateClusterRequest describes a new cluster.
type CreateClusterRequest struct {
	Name            string
	ProfileID       string
	User            string
	Project         string
	MinSize         int
	MaxSize         int
	DesiredCapacity int
	Timeout         time.Duration
	Metadata        map[string]string
}

// CreateCluster validates the request against the profile and the size
// cluster size invariants, persists the INIT cluster row, and originates
// the CLUSTER_CREATE action that will fan out its initial nodes.
func (s *Service) CreateCluster(req CreateClusterRequest) (*types.Cluster, *types.Action, error) {
	store := s.coord.Store()
	if _, err := store.GetProfile(req.ProfileID); err != nil {
		return nil, nil, fmt.Errorf("clusterops: resolving profile: %w", err)
	}

	c := &types.Cluster{
		ID:              uuid.NewString(),
		Name:            req.Name,
		ProfileID:       req.ProfileID,
		User:            req.User,
		Project:         req.Project,
		MinSize:         req.MinSize,
		MaxSize:         req.MaxSize,
		DesiredCapacity: req.DesiredCapacity,
		Timeout:         req.Timeout,
		Status:          types.ClusterInit,
		Metadata:        req.Metadata,
		CreatedAt:       time.Now(),
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	if err := s.coord.CreateCluster(c); err != nil {
		return nil, nil, err
	}

	action := newAction(types.ClusterCreate, c.ID, "user request", nil)
	if err := s.coord.CreateAction(action); err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("cluster_id", c.ID).Int("desired_capacity", c.DesiredCapacity).Msg("cluster create originated")
	return c, action, nil
}

// DeleteCluster originates a CLUSTER_DELETE action tearing down every node
// and then the cluster itself.
func (s *Service) DeleteCluster(clusterID string) (*types.Action, error) {
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	action := newAction(types.ClusterDelete, clusterID, "user request", nil)
	return action, s.coord.CreateAction(action)
}

// ResizeRequest carries a cluster resize's adjustment parameters.
type ResizeRequest struct {
	AdjustmentType string
	Number         float64
	MinStep        int
	Strict         bool
}

// ResizeCluster originates a CLUSTER_RESIZE action computing and applying
// the new desired_capacity.
func (s *Service) ResizeCluster(clusterID string, req ResizeRequest) (*types.Action, error) {
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	inputs := map[string]any{
		"adjustment_type": req.AdjustmentType,
		"number":          req.Number,
		"min_step":        req.MinStep,
		"strict":          req.Strict,
	}
	action := newAction(types.ClusterResize, clusterID, "user request", inputs)
	return action, s.coord.CreateAction(action)
}

// ScaleIn originates a CLUSTER_SCALE_IN action removing count nodes.
func (s *Service) ScaleIn(clusterID string, count int) (*types.Action, error) {
	return s.scale(clusterID, types.ClusterScaleIn, count)
}

// ScaleOut originates a CLUSTER_SCALE_OUT action adding count nodes.
func (s *Service) ScaleOut(clusterID string, count int) (*types.Action, error) {
	return s.scale(clusterID, types.ClusterScaleOut, count)
}

func (s *Service) scale(clusterID string, kind types.ActionKind, count int) (*types.Action, error) {
	if count <= 0 {
		return nil, &apierror.InvalidParameterError{Name: "count", Reason: "must be positive"}
	}
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	action := newAction(kind, clusterID, "user request", map[string]any{"count": count})
	return action, s.coord.CreateAction(action)
}

// AddNodes originates a CLUSTER_ADD_NODES action migrating existing orphan
// nodes into the cluster.
func (s *Service) AddNodes(clusterID string, nodeIDs []string) (*types.Action, error) {
	if len(nodeIDs) == 0 {
		return nil, &apierror.InvalidParameterError{Name: "node_ids", Reason: "must not be empty"}
	}
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	action := newAction(types.ClusterAddNodes, clusterID, "user request", map[string]any{"node_ids": nodeIDs})
	return action, s.coord.CreateAction(action)
}

// DelNodes originates a CLUSTER_DEL_NODES action removing nodeIDs from the
// cluster, destroying them outright when destroyAfterDelete is set, or
// orphaning them for reuse otherwise.
func (s *Service) DelNodes(clusterID string, nodeIDs []string, destroyAfterDelete bool) (*types.Action, error) {
	if len(nodeIDs) == 0 {
		return nil, &apierror.InvalidParameterError{Name: "node_ids", Reason: "must not be empty"}
	}
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	inputs := map[string]any{"node_ids": nodeIDs, "destroy_after_delete": destroyAfterDelete}
	action := newAction(types.ClusterDelNodes, clusterID, "user request", inputs)
	return action, s.coord.CreateAction(action)
}

// ReplaceNodes originates a CLUSTER_REPLACE_NODES action: one NODE_DELETE
// paired with one NODE_CREATE per entry, so capacity never dips mid-flight.
func (s *Service) ReplaceNodes(clusterID string, nodeIDs []string) (*types.Action, error) {
	if len(nodeIDs) == 0 {
		return nil, &apierror.InvalidParameterError{Name: "node_ids", Reason: "must not be empty"}
	}
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	action := newAction(types.ClusterReplaceNodes, clusterID, "user request", map[string]any{"node_ids": nodeIDs})
	return action, s.coord.CreateAction(action)
}

// UpdateRequest describes a rolling profile change.
type UpdateRequest struct {
	NewProfileID string
	BatchSize    int
}

// UpdateCluster originates a CLUSTER_UPDATE action rolling every node in
// the cluster onto a new profile, in waves of at most BatchSize.
func (s *Service) UpdateCluster(clusterID string, req UpdateRequest) (*types.Action, error) {
	store := s.coord.Store()
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	if _, err := store.GetProfile(req.NewProfileID); err != nil {
		return nil, fmt.Errorf("clusterops: resolving profile: %w", err)
	}
	nodes, err := store.ListNodesByCluster(clusterID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	waves, err := actionengine.Waves(len(ids), req.BatchSize)
	if err != nil {
		return nil, err
	}

	plan := make([]map[string]any, 0, len(waves))
	offset := 0
	for _, size := range waves {
		plan = append(plan, map[string]any{"node_ids": ids[offset : offset+size]})
		offset += size
	}

	inputs := map[string]any{"update_plan": plan, "new_profile_id": req.NewProfileID}
	action := newAction(types.ClusterUpdate, clusterID, "user request", inputs)
	return action, s.coord.CreateAction(action)
}

// Check originates a CLUSTER_CHECK action fanning NODE_CHECK out to every
// live node.
func (s *Service) Check(clusterID string) (*types.Action, error) {
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	action := newAction(types.ClusterCheck, clusterID, "user request", nil)
	return action, s.coord.CreateAction(action)
}

// Recover originates a CLUSTER_RECOVER action fanning NODE_RECOVER out to
// every live node of the cluster.
func (s *Service) Recover(clusterID string) (*types.Action, error) {
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	action := newAction(types.ClusterRecover, clusterID, "user request", nil)
	return action, s.coord.CreateAction(action)
}

// AttachPolicy originates a CLUSTER_ATTACH_POLICY action.
func (s *Service) AttachPolicy(clusterID, policyID string, priority int) (*types.Action, error) {
	store := s.coord.Store()
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	if _, err := store.GetPolicy(policyID); err != nil {
		return nil, fmt.Errorf("clusterops: resolving policy: %w", err)
	}
	inputs := map[string]any{"policy_id": policyID, "priority": priority}
	action := newAction(types.ClusterAttachPolicy, clusterID, "user request", inputs)
	return action, s.coord.CreateAction(action)
}

// DetachPolicy originates a CLUSTER_DETACH_POLICY action.
func (s *Service) DetachPolicy(clusterID, policyID string) (*types.Action, error) {
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	action := newAction(types.ClusterDetachPolicy, clusterID, "user request", map[string]any{"policy_id": policyID})
	return action, s.coord.CreateAction(action)
}

// UpdatePolicy originates a CLUSTER_UPDATE_POLICY action changing a
// binding's priority and/or enabled flag.
func (s *Service) UpdatePolicy(clusterID, policyID string, priority *int, enabled *bool) (*types.Action, error) {
	if _, err := s.getCluster(clusterID); err != nil {
		return nil, err
	}
	inputs := map[string]any{"policy_id": policyID}
	if priority != nil {
		inputs["priority"] = *priority
	}
	if enabled != nil {
		inputs["enabled"] = *enabled
	}
	action := newAction(types.ClusterUpdatePolicy, clusterID, "user request", inputs)
	return action, s.coord.CreateAction(action)
}

func (s *Service) getCluster(clusterID string) (*types.Cluster, error) {
	c, err := s.coord.Store().GetCluster(clusterID)
	if err != nil {
		return nil, err
	}
	if c.DeletedAt != nil {
		return nil, &apierror.NotFoundError{Kind: "cluster", ID: clusterID}
	}
	return c, nil
}
