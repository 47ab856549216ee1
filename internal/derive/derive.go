// Package derive implements the deterministic key derivation core.
//
// Every credential type maps its raw bytes through HKDF-SHA-512 under a
// per-type domain label, producing three independent 32-byte keys (secret,
// signing, salt). Identical input under identical labels always yields
// identical output; different labels never collide even for identical input.
package derive

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

// Purpose suffixes mixed into the HKDF info string. Each purpose yields an
// independent 32-byte key from the same input keying material.
const (
	PurposeSecret  = "secret"
	PurposeSigning = "signing"
	PurposeSalt    = "salt"
)

// KeySize is the size of each derived key in bytes.
const KeySize = 32

// vaultPasswordBytes is the length of the signing-key prefix used as the
// derived vault password (hex-encoded, so the password string is twice this).
const vaultPasswordBytes = 16

// Derive maps (ikm, domainLabel, purpose) to KeySize bytes via HKDF-SHA-512.
// The info string is "<domainLabel>:<purpose>", so two credential types with
// identical raw bytes but different labels can never produce the same key.
func Derive(ikm []byte, domainLabel, purpose string) ([]byte, error) {
	if len(ikm) == 0 {
		return nil, fmt.Errorf("derive: empty input keying material")
	}

	info := []byte(domainLabel + ":" + purpose)
	reader := hkdf.New(sha512.New, ikm, make([]byte, sha512.Size), info)

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive: %w", err)
	}
	return key, nil
}

// DeriveKeys derives the full key set for a credential under the given
// domain label.
func DeriveKeys(ikm []byte, domainLabel string) (*Keys, error) {
	return DeriveAccountKeys(ikm, domainLabel, 0)
}

// DeriveAccountKeys derives the key set for the account at the given index.
// Index 0 is the default account and uses the bare purpose strings; higher
// indexes fold the index into the purpose so each account gets an
// independent key set from the same credential.
func DeriveAccountKeys(ikm []byte, domainLabel string, index uint32) (*Keys, error) {
	suffix := ""
	if index > 0 {
		suffix = "/" + strconv.FormatUint(uint64(index), 10)
	}

	secret, err := Derive(ikm, domainLabel, PurposeSecret+suffix)
	if err != nil {
		return nil, err
	}
	signing, err := Derive(ikm, domainLabel, PurposeSigning+suffix)
	if err != nil {
		return nil, err
	}
	salt, err := Derive(ikm, domainLabel, PurposeSalt+suffix)
	if err != nil {
		return nil, err
	}

	return &Keys{Secret: secret, Signing: signing, Salt: salt}, nil
}

// VaultPassword derives the vault password for non-phrase credentials: the
// hex encoding of a fixed-length prefix of the signing key. Re-presenting
// the same credential reproduces the same password, so the user never types
// one.
func VaultPassword(k *Keys) string {
	return hex.EncodeToString(k.Signing[:vaultPasswordBytes])
}
