package crypto

import (
	"testing"

	"github.com/nodeforge/fleetengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIV() []byte { return []byte("FleetEngineIV16!") }

func TestNewRejectsBadIV(t *testing.T) {
	_, err := New(make([]byte, 32), []byte("too-short"))
	assert.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{name: "short", message: "hunter2"},
		{name: "exact block multiple", message: "0123456789abcdef"},
		{name: "long", message: "a much longer secret value that spans several AES blocks"},
	}

	c, err := New(make([]byte, 32), testIV())
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := c.Encrypt(tt.message)
			require.NoError(t, err)
			assert.NotEmpty(t, ct)

			pt, err := c.Decrypt(ct)
			require.NoError(t, err)
			assert.Equal(t, tt.message, pt)
		})
	}
}

func TestDecryptRejectsMalformedBase64(t *testing.T) {
	c, err := New(make([]byte, 32), testIV())
	require.NoError(t, err)

	_, err = c.Decrypt("not valid base64!!")
	assert.Error(t, err)
}

func TestEncryptCredentialRoundTrip(t *testing.T) {
	c, err := New(make([]byte, 32), testIV())
	require.NoError(t, err)

	cred := types.Credential{
		User:    "alice",
		Project: "proj-1",
		Cred: map[string]string{
			"username": "alice",
			"password": "s3cr3t",
		},
	}

	enc, err := c.EncryptCredential(cred)
	require.NoError(t, err)
	assert.NotEqual(t, cred.Cred["password"], enc.Cred["password"])

	dec, err := c.DecryptCredential(enc)
	require.NoError(t, err)
	assert.Equal(t, cred.Cred, dec.Cred)
}
