package storage

import (
	"strings"

	"github.com/nodeforge/fleetengine/pkg/apierror"
	bolt "go.etcd.io/bbolt"
)

func bucketForKind(kind string) ([]byte, bool) {
	switch kind {
	case "profile":
		return bucketProfiles, true
	case "cluster":
		return bucketClusters, true
	case "node":
		return bucketNodes, true
	case "policy":
		return bucketPolicies, true
	case "action":
		return bucketActions, true
	}
	return nil, false
}

// ResolveShortID resolves a unique ID prefix to the full ID it identifies,
// prefixes are accepted anywhere a full ID is, as
// long as exactly one row matches.
func (s *BoltStore) ResolveShortID(kind, prefix string) (string, error) {
	bucket, ok := bucketForKind(kind)
	if !ok {
		return "", &apierror.InvalidParameterError{Name: "kind", Reason: "unknown entity kind " + kind}
	}

	var matches []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if strings.HasPrefix(string(k), prefix) {
				matches = append(matches, string(k))
				if len(matches) > 1 {
					return nil
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "", &apierror.NotFoundError{Kind: kind, ID: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", &apierror.MultipleChoicesError{Kind: kind, Prefix: prefix}
	}
}
