package storage

import (
	"time"

	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func (s *BoltStore) PutRegistryEntry(e *types.RegistryEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketRegistry, e.ClusterID, e)
	})
}

func (s *BoltStore) GetRegistryEntry(clusterID string) (*types.RegistryEntry, error) {
	var e types.RegistryEntry
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketRegistry, clusterID, &e)
		found = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &e, nil
}

func (s *BoltStore) ListRegistryEntries() ([]*types.RegistryEntry, error) {
	var out []*types.RegistryEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJSON(tx, bucketRegistry, func(_ string, e *types.RegistryEntry) error {
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteRegistryEntry(clusterID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketRegistry, clusterID)
	})
}

// ClaimRegistryEntry assigns engineID to clusterID's registry entry in a
// single transaction, but only when the entry is enabled and currently
// unclaimed (EngineID == "") or already claimed by engineID. Returns the
// entry as it stands after the attempt; callers compare EngineID against
// engineID to tell whether they won.
func (s *BoltStore) ClaimRegistryEntry(clusterID, engineID string, now time.Time) (*types.RegistryEntry, error) {
	var out types.RegistryEntry
	err := s.db.Update(func(tx *bolt.Tx) error {
		var e types.RegistryEntry
		ok, err := getJSON(tx, bucketRegistry, clusterID, &e)
		if err != nil {
			return err
		}
		if !ok || !e.Enabled {
			out = e
			return nil
		}
		if e.EngineID == "" || e.EngineID == engineID {
			e.EngineID = engineID
			e.UpdatedAt = now
			if err := putJSON(tx, bucketRegistry, clusterID, &e); err != nil {
				return err
			}
		}
		out = e
		return nil
	})
	return &out, err
}

// StealRegistryEntry unconditionally reassigns clusterID's registry entry
// to engineID, used only when the prior claimant's liveness record has
// gone dead (the same dead-engine rule pkg/lock.IsDead applies).
func (s *BoltStore) StealRegistryEntry(clusterID, engineID string, now time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var e types.RegistryEntry
		ok, err := getJSON(tx, bucketRegistry, clusterID, &e)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		e.EngineID = engineID
		e.UpdatedAt = now
		return putJSON(tx, bucketRegistry, clusterID, &e)
	})
}
