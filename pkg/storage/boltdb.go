package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/nodeforge/fleetengine/pkg/apierror"
	bolt "go.etcd.io/bbolt"
)

// timeSortFormat renders a time.Time so lexicographic string comparison
// matches chronological order, for use as a sort-key string.
const timeSortFormat = "20060102150405.000000000"

var (
	bucketProfiles     = []byte("profiles")
	bucketClusters     = []byte("clusters")
	bucketNodes        = []byte("nodes")
	bucketPolicies     = []byte("policies")
	bucketBindings     = []byte("bindings")
	bucketActions      = []byte("actions")
	bucketClusterLocks = []byte("cluster_locks")
	bucketNodeLocks    = []byte("node_locks")
	bucketServices     = []byte("services")
	bucketCredentials  = []byte("credentials")
	bucketRegistry     = []byte("health_registry")
	bucketEvents       = []byte("events")
	bucketCounters     = []byte("counters")

	allBuckets = [][]byte{
		bucketProfiles, bucketClusters, bucketNodes, bucketPolicies,
		bucketBindings, bucketActions, bucketClusterLocks, bucketNodeLocks,
		bucketServices, bucketCredentials, bucketRegistry, bucketEvents,
		bucketCounters,
	}
)

// BoltStore implements Store on top of an embedded bbolt database, one
// bucket per entity kind, JSON-marshaled values keyed by entity ID.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the database file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "fleetengine.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putJSON(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func getJSON(tx *bolt.Tx, bucket []byte, key string, v any) (bool, error) {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

// forEachJSON decodes every value in bucket into a fresh *T and invokes fn.
func forEachJSON[T any](tx *bolt.Tx, bucket []byte, fn func(key string, v *T) error) error {
	return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		return fn(string(k), &item)
	})
}

func del(tx *bolt.Tx, bucket []byte, key string) error {
	return tx.Bucket(bucket).Delete([]byte(key))
}

// nextCounter atomically increments the named counter and returns the new
// value; used for per-cluster node index allocation.
func (s *BoltStore) nextCounter(name string) (int, error) {
	var next int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		cur := 0
		if data := b.Get([]byte(name)); data != nil {
			if err := json.Unmarshal(data, &cur); err != nil {
				return err
			}
		}
		next = cur + 1
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
	return next, err
}

// notFound is a small convenience for the common "load by id or 404" shape.
func notFound(kind, id string) error {
	return &apierror.NotFoundError{Kind: kind, ID: id}
}
