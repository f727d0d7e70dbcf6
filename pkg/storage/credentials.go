package storage

import (
	"github.com/nodeforge/fleetengine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

func credentialKey(user, project string) string {
	return user + "/" + project
}

// PutCredential stores cred as-is: callers (pkg/clusterops) are responsible
// for running it through pkg/crypto first. The store never sees plaintext.
func (s *BoltStore) PutCredential(c *types.Credential) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketCredentials, credentialKey(c.User, c.Project), c)
	})
}

func (s *BoltStore) GetCredential(user, project string) (*types.Credential, error) {
	var c types.Credential
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx, bucketCredentials, credentialKey(user, project), &c)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("credential", credentialKey(user, project))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) DeleteCredential(user, project string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return del(tx, bucketCredentials, credentialKey(user, project))
	})
}
