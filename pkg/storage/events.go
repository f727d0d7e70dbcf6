package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// eventKey orders lexicographically the same way the events occurred:
// cluster, then timestamp, then a per-cluster sequence number that breaks
// ties between events stamped in the same instant.
func eventKey(clusterID string, ts string, seq int) string {
	return fmt.Sprintf("%s/%s/%010d", clusterID, ts, seq)
}

func (s *BoltStore) AppendEvent(ev *types.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = clock()
	}
	seq, err := s.nextCounter("event_seq/" + ev.ClusterID)
	if err != nil {
		return err
	}
	key := eventKey(ev.ClusterID, ev.Timestamp.UTC().Format(timeSortFormat), seq)
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketEvents, key, ev)
	})
}

func eventField(e *types.Event, key string) (string, bool) {
	switch key {
	case "level":
		return e.Level, true
	case "oid":
		return e.OID, true
	case "otype":
		return e.OType, true
	case "action":
		return e.Action, true
	case "status":
		return e.Status, true
	case "created_at":
		return e.Timestamp.UTC().Format(timeSortFormat), true
	}
	return "", false
}

func (s *BoltStore) ListEventsByCluster(clusterID string, opts ListOptions) ([]*types.Event, error) {
	prefix := []byte(clusterID + "/")
	var all []*types.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var ev types.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			all = append(all, &ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	all = filterProject(all, opts, func(e *types.Event) string { return e.Project })
	all, err = filterExact(all, opts, eventField)
	if err != nil {
		return nil, err
	}
	// The cursor already walked events in chronological key order; only
	// re-sort when the caller asked for something other than the default.
	if opts.Sort == "" {
		if opts.Limit > 0 && len(all) > opts.Limit {
			all = all[:opts.Limit]
		}
		return all, nil
	}
	return sortAndPaginate(all, opts, func(e *types.Event) string { return e.OID }, eventField)
}

// PruneEvents deletes the oldest events for a cluster down to keep,
// touching at most batchSize keys per call so a large backlog does not
// block the bucket for long. keep <= 0 disables pruning entirely, which is
// the engine's default: never purge unless configured.
func (s *BoltStore) PruneEvents(clusterID string, keep, batchSize int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	prefix := []byte(clusterID + "/")
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(keys) <= keep {
		return 0, nil
	}
	toDelete := keys[:len(keys)-keep]
	if batchSize > 0 && len(toDelete) > batchSize {
		toDelete = toDelete[:batchSize]
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		for _, k := range toDelete {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(toDelete), nil
}
