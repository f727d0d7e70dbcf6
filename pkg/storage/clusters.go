package storage

import (
	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func (s *BoltStore) CreateCluster(c *types.Cluster) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketClusters, c.ID, c)
	})
}

func (s *BoltStore) GetCluster(id string) (*types.Cluster, error) {
	var c types.Cluster
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketClusters, id, &c)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("cluster", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func clusterField(c *types.Cluster, key string) (string, bool) {
	switch key {
	case "name":
		return c.Name, true
	case "status":
		return string(c.Status), true
	case "project":
		return c.Project, true
	case "profile_id":
		return c.ProfileID, true
	case "created_at":
		return c.CreatedAt.UTC().Format(timeSortFormat), true
	case "updated_at":
		return c.UpdatedAt.UTC().Format(timeSortFormat), true
	}
	return "", false
}

func (s *BoltStore) ListClusters(opts ListOptions) ([]*types.Cluster, error) {
	var all []*types.Cluster
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJSON(tx, bucketClusters, func(_ string, c *types.Cluster) error {
			if c.DeletedAt == nil {
				all = append(all, c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	all = filterProject(all, opts, func(c *types.Cluster) string { return c.Project })
	all, err = filterExact(all, opts, clusterField)
	if err != nil {
		return nil, err
	}
	return sortAndPaginate(all, opts, func(c *types.Cluster) string { return c.ID }, clusterField)
}

func (s *BoltStore) UpdateCluster(c *types.Cluster) error { return s.CreateCluster(c) }

func (s *BoltStore) DeleteCluster(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketClusters, id)
	})
}

// NextNodeIndex allocates the next monotonic node index for a cluster,
// stored under a counter key namespaced by cluster ID so indexes never
// collide even if a cluster is recreated with the same name.
func (s *BoltStore) NextNodeIndex(clusterID string) (int, error) {
	return s.nextCounter("cluster_next_index/" + clusterID)
}
