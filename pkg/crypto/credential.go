package crypto

import "github.com/nodeforge/fleetengine/pkg/types"

// EncryptCredential returns a copy of cred with every value in Cred
// encrypted under c. The map's keys (e.g. "username", "password", "token")
// are left as-is; only values are opaque ciphertext once this returns.
func (c *Cipher) EncryptCredential(cred types.Credential) (types.Credential, error) {
	out := types.Credential{
		User:    cred.User,
		Project: cred.Project,
		Cred:    make(map[string]string, len(cred.Cred)),
	}
	for k, v := range cred.Cred {
		enc, err := c.Encrypt(v)
		if err != nil {
			return types.Credential{}, err
		}
		out.Cred[k] = enc
	}
	return out, nil
}

// DecryptCredential reverses EncryptCredential.
func (c *Cipher) DecryptCredential(cred types.Credential) (types.Credential, error) {
	out := types.Credential{
		User:    cred.User,
		Project: cred.Project,
		Cred:    make(map[string]string, len(cred.Cred)),
	}
	for k, v := range cred.Cred {
		dec, err := c.Decrypt(v)
		if err != nil {
			return types.Credential{}, err
		}
		out.Cred[k] = dec
	}
	return out, nil
}
