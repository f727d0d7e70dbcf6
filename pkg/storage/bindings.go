package storage

import (
	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func bindingKey(clusterID, policyID string) string {
	return clusterID + "/" + policyID
}

func (s *BoltStore) CreateBinding(b *types.ClusterPolicyBinding) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketBindings, bindingKey(b.ClusterID, b.PolicyID), b)
	})
}

func (s *BoltStore) GetBinding(clusterID, policyID string) (*types.ClusterPolicyBinding, error) {
	var b types.ClusterPolicyBinding
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketBindings, bindingKey(clusterID, policyID), &b)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("binding", bindingKey(clusterID, policyID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BoltStore) ListBindingsByCluster(clusterID string) ([]*types.ClusterPolicyBinding, error) {
	var out []*types.ClusterPolicyBinding
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJSON(tx, bucketBindings, func(_ string, b *types.ClusterPolicyBinding) error {
			if b.ClusterID == clusterID {
				out = append(out, b)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateBinding(b *types.ClusterPolicyBinding) error { return s.CreateBinding(b) }

func (s *BoltStore) DeleteBinding(clusterID, policyID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketBindings, bindingKey(clusterID, policyID))
	})
}
