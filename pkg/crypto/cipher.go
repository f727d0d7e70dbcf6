// Package crypto encrypts Credential values at rest. It deliberately does
// not touch anything else: ResourceDriver implementations pass back
// plaintext, and this package only wraps/unwraps what pkg/storage persists.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"
)

// Cipher encrypts and decrypts Credential field values with AES-CBC and a
// fixed, configured initialization vector. The key is per-(user, project)
// so that a leaked key exposes only one principal's stored secrets; the IV
// is a deployment-wide config value (config.CipherInitVector), not random,
// matching the scheme this is grounded on: callers must be able to decrypt
// any credential using only the engine's own configuration plus the key
// they already hold.
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// New builds a Cipher from a 16/24/32-byte AES key and a 16-byte IV.
func New(key []byte, iv []byte) (*Cipher, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("crypto: init vector must be exactly %d bytes, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	return &Cipher{block: block, iv: iv}, nil
}

// Encrypt space-pads message to a multiple of the AES block size, encrypts
// it under CBC, and returns the result base64-encoded.
func (c *Cipher) Encrypt(message string) (string, error) {
	padded := padToBlockSize(message, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(c.block, c.iv)
	mode.CryptBlocks(ciphertext, []byte(padded))
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt: base64-decode, CBC-decrypt, then trim the
// trailing space padding back off.
func (c *Cipher) Decrypt(content string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", fmt.Errorf("crypto: malformed base64 ciphertext: %w", err)
	}
	if len(raw) == 0 {
		return "", nil
	}
	if len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("crypto: ciphertext is not a multiple of the block size")
	}
	plaintext := make([]byte, len(raw))
	mode := cipher.NewCBCDecrypter(c.block, c.iv)
	mode.CryptBlocks(plaintext, raw)
	return strings.TrimRight(string(plaintext), " "), nil
}

// padToBlockSize right-pads s with ASCII spaces to the next multiple of
// size, matching the original scheme's ljust-based padding exactly
// (including the quirk that a message already a multiple of size is left
// untouched, and the empty message pads to a zero-length ciphertext).
func padToBlockSize(s string, size int) string {
	if len(s) == 0 {
		return s
	}
	rem := len(s) % size
	if rem == 0 {
		return s
	}
	return s + strings.Repeat(" ", size-rem)
}
