package storage

import (
	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func (s *BoltStore) CreateNode(n *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketNodes, n.ID, n)
	})
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var n types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketNodes, id, &n)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("node", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func nodeField(n *types.Node, key string) (string, bool) {
	switch key {
	case "name":
		return n.Name, true
	case "status":
		return string(n.Status), true
	case "project":
		return n.Project, true
	case "cluster_id":
		return n.ClusterID, true
	case "created_at":
		return n.CreatedAt.UTC().Format(timeSortFormat), true
	case "updated_at":
		return n.UpdatedAt.UTC().Format(timeSortFormat), true
	}
	return "", false
}

func (s *BoltStore) ListNodes(opts ListOptions) ([]*types.Node, error) {
	var all []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJSON(tx, bucketNodes, func(_ string, n *types.Node) error {
			if n.DeletedAt == nil {
				all = append(all, n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	all = filterProject(all, opts, func(n *types.Node) string { return n.Project })
	all, err = filterExact(all, opts, nodeField)
	if err != nil {
		return nil, err
	}
	return sortAndPaginate(all, opts, func(n *types.Node) string { return n.ID }, nodeField)
}

func (s *BoltStore) ListNodesByCluster(clusterID string) ([]*types.Node, error) {
	return s.ListNodes(ListOptions{IsAdmin: true, Filters: map[string]string{"cluster_id": clusterID}})
}

func (s *BoltStore) UpdateNode(n *types.Node) error { return s.CreateNode(n) }

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketNodes, id)
	})
}

// MigrateNode reassigns a node to a different cluster (or orphans it with
// newClusterID == "") under a new index, as one atomic read-modify-write.
func (s *BoltStore) MigrateNode(nodeID, newClusterID string, newIndex int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var n types.Node
		ok, err := getJSON(tx, bucketNodes, nodeID, &n)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("node", nodeID)
		}
		n.ClusterID = newClusterID
		n.Index = newIndex
		return putJSON(tx, bucketNodes, nodeID, &n)
	})
}
