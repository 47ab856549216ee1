// Package vault implements the encrypted-at-rest vault format.
//
// A vault blob is a versioned envelope: a random salt feeds PBKDF2-SHA-256
// key stretching, and the stretched key encrypts the payload with
// AES-256-GCM. Wrong password, corrupted blob, and tampering are
// deliberately indistinguishable; all surface as ErrDecryptionFailed.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Version is the current blob format version.
	Version = 1

	// DefaultIterations is the PBKDF2 work factor for production vaults.
	DefaultIterations = 600_000

	saltSize  = 32
	nonceSize = 12
	keySize   = 32
)

var (
	// ErrDecryptionFailed covers wrong password, corrupted blob, and AEAD
	// tag mismatch. The three are indistinguishable by design so a caller
	// cannot be used as a padding/tag oracle.
	ErrDecryptionFailed = errors.New("vault: decryption failed")

	// ErrUnsupportedVersion is returned for blobs written by a newer format.
	ErrUnsupportedVersion = errors.New("vault: unsupported blob version")

	// ErrNotFound is returned by stores when no blob exists at a key.
	ErrNotFound = errors.New("vault: record not found")
)

// Blob is the serialized envelope persisted in the encrypted store.
type Blob struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
}

// Codec encrypts and decrypts vault payloads. The iteration count is
// configurable so tests can avoid the production work factor.
type Codec struct {
	Iterations int
}

// NewCodec returns a codec with the production work factor.
func NewCodec() *Codec {
	return &Codec{Iterations: DefaultIterations}
}

func (c *Codec) iterations() int {
	if c.Iterations > 0 {
		return c.Iterations
	}
	return DefaultIterations
}

// Encrypt stretches the password over a fresh random salt and seals the
// payload with AES-256-GCM under a fresh random nonce.
func (c *Codec) Encrypt(password string, payload []byte) (*Blob, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("vault: generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}

	aead, err := newAEAD(password, salt, c.iterations())
	if err != nil {
		return nil, err
	}

	return &Blob{
		Version:    Version,
		Salt:       salt,
		IV:         nonce,
		Ciphertext: aead.Seal(nil, nonce, payload, nil),
	}, nil
}

// Decrypt re-stretches the password with the blob's salt and opens the
// ciphertext. Any failure beyond version mismatch is ErrDecryptionFailed.
func (c *Codec) Decrypt(password string, blob *Blob) ([]byte, error) {
	if blob == nil || blob.Version != Version {
		return nil, ErrUnsupportedVersion
	}
	if len(blob.Salt) != saltSize || len(blob.IV) != nonceSize {
		return nil, ErrDecryptionFailed
	}

	aead, err := newAEAD(password, blob.Salt, c.iterations())
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, blob.IV, blob.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create GCM: %w", err)
	}
	return aead, nil
}

// PrimaryKey is the store key for a network's primary vault. At most one
// primary vault exists per network.
func PrimaryKey(networkID string) string {
	return networkID
}

// RedirectKey is the store key for a redirect vault. The password hash is
// FNV-1a, a non-cryptographic hash: it only avoids using the raw vault
// password as a lookup key, it is not a security boundary.
func RedirectKey(networkID, vaultPassword string) string {
	h := fnv.New64a()
	h.Write([]byte(vaultPassword))
	return networkID + "::linked::" + strconv.FormatUint(h.Sum64(), 16)
}
