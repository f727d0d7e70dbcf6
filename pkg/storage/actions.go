package storage

import (
	"sort"

	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func (s *BoltStore) CreateAction(a *types.Action) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketActions, a.ID, a)
	})
}

func (s *BoltStore) GetAction(id string) (*types.Action, error) {
	var a types.Action
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketActions, id, &a)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("action", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func actionField(a *types.Action, key string) (string, bool) {
	switch key {
	case "name":
		return a.Name, true
	case "status":
		return string(a.Status), true
	case "action":
		return string(a.Action), true
	case "target":
		return a.Target, true
	case "project":
		return a.Project, true
	case "created_at":
		return a.CreatedAt.UTC().Format(timeSortFormat), true
	case "updated_at":
		return a.UpdatedAt.UTC().Format(timeSortFormat), true
	}
	return "", false
}

func (s *BoltStore) ListActions(opts ListOptions) ([]*types.Action, error) {
	var all []*types.Action
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJSON(tx, bucketActions, func(_ string, a *types.Action) error {
			all = append(all, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	all = filterProject(all, opts, func(a *types.Action) string { return a.Project })
	all, err = filterExact(all, opts, actionField)
	if err != nil {
		return nil, err
	}
	return sortAndPaginate(all, opts, func(a *types.Action) string { return a.ID }, actionField)
}

func (s *BoltStore) ListActionsByTarget(targetID string) ([]*types.Action, error) {
	var out []*types.Action
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJSON(tx, bucketActions, func(_ string, a *types.Action) error {
			if a.Target == targetID {
				out = append(out, a)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListActionsByOwner(engineID string) ([]*types.Action, error) {
	var out []*types.Action
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJSON(tx, bucketActions, func(_ string, a *types.Action) error {
			if a.Owner == engineID {
				out = append(out, a)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateAction(a *types.Action) error { return s.CreateAction(a) }

func (s *BoltStore) DeleteAction(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketActions, id)
	})
}

// ClaimReadyAction picks the oldest READY action (by CreatedAt, ties broken
// by ID) and transitions it to RUNNING under engineID in the same
// transaction that reads it, so two engines racing on the same bucket can
// never both win: bbolt serializes all writers through one mutex, giving
// this the same at-most-once guarantee a Raft-committed
// CAS, just scoped to a single process's view of the database file.
// Multi-engine deployments run this through pkg/coordinator instead, which
// replicates the call via Raft before it reaches the local BoltStore.
func (s *BoltStore) ClaimReadyAction(engineID string) (*types.Action, error) {
	var claimed *types.Action
	err := s.db.Update(func(tx *bolt.Tx) error {
		var ready []*types.Action
		if err := forEachJSON(tx, bucketActions, func(_ string, a *types.Action) error {
			if a.Status == types.ActionReady {
				ready = append(ready, a)
			}
			return nil
		}); err != nil {
			return err
		}
		if len(ready) == 0 {
			return nil
		}
		sort.Slice(ready, func(i, j int) bool {
			if !ready[i].CreatedAt.Equal(ready[j].CreatedAt) {
				return ready[i].CreatedAt.Before(ready[j].CreatedAt)
			}
			return ready[i].ID < ready[j].ID
		})
		pick := ready[0]
		pick.Status = types.ActionRunning
		pick.Owner = engineID
		pick.StartTime = clock()
		if err := putJSON(tx, bucketActions, pick.ID, pick); err != nil {
			return err
		}
		claimed = pick
		return nil
	})
	return claimed, err
}
