package storage

import (
	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func (s *BoltStore) CreateProfile(p *types.Profile) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketProfiles, p.ID, p)
	})
}

func (s *BoltStore) GetProfile(id string) (*types.Profile, error) {
	var p types.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketProfiles, id, &p)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("profile", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func profileField(p *types.Profile, key string) (string, bool) {
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

func (s *BoltStore) ListProfiles(opts ListOptions) ([]*types.Profile, error) {
	var all []*types.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJSON(tx, bucketProfiles, func(_ string, p *types.Profile) error {
			all = append(all, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	all = filterProject(all, opts, func(p *types.Profile) string { return p.Project })
	all, err = filterExact(all, opts, profileField)
	if err != nil {
		return nil, err
	}
	return sortAndPaginate(all, opts, func(p *types.Profile) string { return p.ID }, profileField)
}

func (s *BoltStore) UpdateProfile(p *types.Profile) error { return s.CreateProfile(p) }

func (s *BoltStore) DeleteProfile(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketProfiles, id)
	})
}
