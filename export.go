package keyfold

import (
	"context"
	"fmt"
	"time"

	"github.com/tyler-smith/go-bip39"
)

// ExportVersion is the current export format version.
const ExportVersion = 1

// ExportedIdentity contains everything needed to restore an identity on
// another device.
// WARNING: the recovery phrase is full key material - handle securely.
type ExportedIdentity struct {
	// Version is the export format version. MUST be 1.
	Version int `json:"version"`
	// NetworkID is the network the identity lives on.
	NetworkID string `json:"networkId"`
	// Address is the identity's contract address.
	Address string `json:"address"`
	// Username is the identity's username.
	Username string `json:"username"`
	// Method is the identity's primary authentication method tag.
	Method string `json:"method"`
	// RecoveryPhrase is the BIP-39 mnemonic that re-derives the identity.
	RecoveryPhrase string `json:"recoveryPhrase"`
	// ExportedAt is the export timestamp. Informational only.
	ExportedAt time.Time `json:"exportedAt"`
}

// Validate checks that the exported data can restore an identity.
func (e *ExportedIdentity) Validate() error {
	if e.Version != ExportVersion {
		return fmt.Errorf("%w: unsupported export version %d, expected %d", ErrInvalidCredential, e.Version, ExportVersion)
	}
	if e.NetworkID == "" {
		return fmt.Errorf("%w: networkId is required", ErrInvalidCredential)
	}
	if !bip39.IsMnemonicValid(e.RecoveryPhrase) {
		return fmt.Errorf("%w: recovery phrase is not a valid mnemonic", ErrInvalidCredential)
	}
	return nil
}

// ExportIdentity exports the active identity for transfer to another
// device. Fresh authentication is required: the export contains the
// recovery phrase.
func (c *Client) ExportIdentity(ctx context.Context) (*ExportedIdentity, error) {
	session, err := c.activeSession()
	if err != nil {
		return nil, err
	}

	phrase, err := session.ExportRecoveryPhrase(ctx)
	if err != nil {
		return nil, err
	}

	return &ExportedIdentity{
		Version:        ExportVersion,
		NetworkID:      c.networkID,
		Address:        session.Address(),
		Username:       session.Username(),
		Method:         session.Method(),
		RecoveryPhrase: phrase,
		ExportedAt:     time.Now().UTC(),
	}, nil
}

// ImportIdentity restores an exported identity by authenticating with its
// recovery phrase. The phrase resolves through the normal three-way
// resolver, so an identity already present locally resolves to itself
// rather than being overwritten.
func (c *Client) ImportIdentity(ctx context.Context, exported *ExportedIdentity) (*Session, error) {
	if exported == nil {
		return nil, fmt.Errorf("%w: nil export", ErrInvalidCredential)
	}
	if err := exported.Validate(); err != nil {
		return nil, err
	}
	if exported.NetworkID != c.networkID {
		return nil, fmt.Errorf("%w: export is for network %q, client serves %q",
			ErrInvalidCredential, exported.NetworkID, c.networkID)
	}

	return c.Authenticate(ctx, &RecoveryPhraseCredential{Mnemonic: exported.RecoveryPhrase})
}
