package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AccountEntry describes one derived account inside a primary vault.
type AccountEntry struct {
	// Index is the derivation index folded into the purpose label.
	Index uint32 `json:"index"`
	// Type is the account's signature family.
	Type string `json:"type"`
	// Address is the deterministic on-chain address.
	Address string `json:"address"`
	// Alias is a user-chosen display name, may be empty.
	Alias string `json:"alias,omitempty"`
	// Deployed records whether the identity contract is live on-chain.
	Deployed bool `json:"deployed"`
}

// LinkedAuthMethod records a secondary credential bound to this identity.
// It stores only a key fingerprint, never a raw email, token, or public key,
// so the vault payload itself does not leak which external accounts the
// user holds.
type LinkedAuthMethod struct {
	// Method is the credential method tag (e.g. "federated", "email").
	Method string `json:"method"`
	// Fingerprint is a short hash of the secondary signing key.
	Fingerprint string `json:"fingerprint"`
	// LinkedAt is when the link was created.
	LinkedAt time.Time `json:"linkedAt"`
	// RedirectKey is the redirect vault's store key, retained so unlink can
	// delete the redirect record.
	RedirectKey string `json:"redirectKey"`
}

// Record is the logical payload of a primary vault.
type Record struct {
	RecoveryPhrase       string             `json:"recoveryPhrase"`
	Accounts             []AccountEntry     `json:"accounts"`
	LinkedAuthMethods    []LinkedAuthMethod `json:"linkedAuthMethods"`
	LinkedChainAddresses []string           `json:"linkedChainAddresses"`
	Username             string             `json:"username"`
	Method               string             `json:"method"`
	CreatedAt            time.Time          `json:"createdAt"`
	AccessedAt           time.Time          `json:"accessedAt"`
}

// RedirectRecord is the logical payload of a redirect vault: a pointer to
// the primary identity's raw key material, decryptable only with the
// secondary credential's derived password.
type RedirectRecord struct {
	SecretKey   string    `json:"secretKey"`  // hex
	SigningKey  string    `json:"signingKey"` // hex
	Salt        string    `json:"salt"`       // hex
	Method      string    `json:"method"`
	AccountType string    `json:"accountType"`
	Address     string    `json:"address"`
	Username    string    `json:"username"`
	LinkedAt    time.Time `json:"linkedAt"`
}

// LoadRecord fetches and decrypts a primary vault record.
func (c *Codec) LoadRecord(ctx context.Context, store Store, key, password string) (*Record, error) {
	blob, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plaintext, err := c.Decrypt(password, blob)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, ErrDecryptionFailed
	}
	return &rec, nil
}

// SaveRecord encrypts and persists a primary vault record.
func (c *Codec) SaveRecord(ctx context.Context, store Store, key, password string, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("vault: marshal record: %w", err)
	}
	blob, err := c.Encrypt(password, payload)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, blob)
}

// LoadRedirect fetches and decrypts a redirect vault record.
func (c *Codec) LoadRedirect(ctx context.Context, store Store, key, password string) (*RedirectRecord, error) {
	blob, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	plaintext, err := c.Decrypt(password, blob)
	if err != nil {
		return nil, err
	}
	var rec RedirectRecord
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, ErrDecryptionFailed
	}
	return &rec, nil
}

// SaveRedirect encrypts and persists a redirect vault record.
func (c *Codec) SaveRedirect(ctx context.Context, store Store, key, password string, rec *RedirectRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("vault: marshal redirect record: %w", err)
	}
	blob, err := c.Encrypt(password, payload)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, blob)
}
