package storage

import (
	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func (s *BoltStore) CreateService(svc *types.Service) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketServices, svc.ID, svc)
	})
}

func (s *BoltStore) GetService(id string) (*types.Service, error) {
	var svc types.Service
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketServices, id, &svc)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("service", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *BoltStore) ListServices() ([]*types.Service, error) {
	var out []*types.Service
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJSON(tx, bucketServices, func(_ string, svc *types.Service) error {
			out = append(out, svc)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateService(svc *types.Service) error { return s.CreateService(svc) }

func (s *BoltStore) DeleteService(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketServices, id)
	})
}
