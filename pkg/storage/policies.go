package storage

import (
	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func (s *BoltStore) CreatePolicy(p *types.Policy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketPolicies, p.ID, p)
	})
}

func (s *BoltStore) GetPolicy(id string) (*types.Policy, error) {
	var p types.Policy
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketPolicies, id, &p)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("policy", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func policyField(p *types.Policy, key string) (string, bool) {
	switch key {
	case "name":
		return p.Name, true
	case "type":
		return p.Type, true
	case "project":
		return p.Project, true
	case "created_at":
		return p.CreatedAt.UTC().Format(timeSortFormat), true
	case "updated_at":
		return p.UpdatedAt.UTC().Format(timeSortFormat), true
	}
	return "", false
}

func (s *BoltStore) ListPolicies(opts ListOptions) ([]*types.Policy, error) {
	var all []*types.Policy
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJSON(tx, bucketPolicies, func(_ string, p *types.Policy) error {
			all = append(all, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	all = filterProject(all, opts, func(p *types.Policy) string { return p.Project })
	all, err = filterExact(all, opts, policyField)
	if err != nil {
		return nil, err
	}
	return sortAndPaginate(all, opts, func(p *types.Policy) string { return p.ID }, policyField)
}

func (s *BoltStore) UpdatePolicy(p *types.Policy) error { return s.CreatePolicy(p) }

func (s *BoltStore) DeletePolicy(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketPolicies, id)
	})
}
