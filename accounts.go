package keyfold

import (
	"context"
	"fmt"
	"time"

	"github.com/keyfold/identity-go/internal/derive"
	"github.com/keyfold/identity-go/internal/vault"
)

// Account is the public view of one derived account of the identity.
type Account struct {
	Index    uint32
	Type     string
	Address  string
	Alias    string
	Deployed bool
}

// Accounts lists the identity's derived accounts.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	session, err := c.activeSession()
	if err != nil {
		return nil, err
	}

	c.vaultMu.Lock()
	record, err := session.loadPrimaryRecord(ctx)
	c.vaultMu.Unlock()
	if err != nil {
		return nil, err
	}

	accounts := make([]Account, 0, len(record.Accounts))
	for _, a := range record.Accounts {
		accounts = append(accounts, Account(a))
	}
	return accounts, nil
}

// AddAccount derives the account at the given index from the session's
// credential material, records it in the primary vault, and returns it.
// The index is folded into the derivation purpose, so each index yields an
// independent key set and address from the same credential.
//
// Only sessions opened with the primary credential itself can add accounts;
// a redirect session does not hold the primary credential's raw material
// and gets ErrReauthenticationRequired.
func (c *Client) AddAccount(ctx context.Context, index uint32, alias string) (*Account, error) {
	session, err := c.activeSession()
	if err != nil {
		return nil, err
	}
	session.Touch()

	session.mu.Lock()
	ikm := append([]byte(nil), session.ikm...)
	domainLabel := session.domainLabel
	accountType := session.accountType
	session.mu.Unlock()
	if len(ikm) == 0 {
		return nil, fmt.Errorf("%w: account derivation needs the primary credential", ErrReauthenticationRequired)
	}
	defer wipeBytes(ikm)

	keys, err := derive.DeriveAccountKeys(ikm, domainLabel, index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	defer keys.Zero()

	at := accountTypeFromTag(accountType)
	address := addressFor(at, keys)

	c.vaultMu.Lock()
	defer c.vaultMu.Unlock()

	record, err := session.loadPrimaryRecord(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range record.Accounts {
		if a.Index == index {
			return nil, fmt.Errorf("account index %d already exists", index)
		}
	}

	entry := vault.AccountEntry{
		Index:   index,
		Type:    accountType,
		Address: address,
		Alias:   alias,
	}
	record.Accounts = append(record.Accounts, entry)
	record.AccessedAt = time.Now().UTC()

	if err := session.savePrimaryRecord(ctx, record); err != nil {
		return nil, err
	}

	account := Account(entry)
	return &account, nil
}

// SetAccountAlias renames an account. Best-effort display state: the alias
// never participates in derivation or resolution.
func (c *Client) SetAccountAlias(ctx context.Context, index uint32, alias string) error {
	session, err := c.activeSession()
	if err != nil {
		return err
	}

	c.vaultMu.Lock()
	defer c.vaultMu.Unlock()

	record, err := session.loadPrimaryRecord(ctx)
	if err != nil {
		return err
	}
	for i := range record.Accounts {
		if record.Accounts[i].Index == index {
			record.Accounts[i].Alias = alias
			return session.savePrimaryRecord(ctx, record)
		}
	}
	return fmt.Errorf("account index %d not found", index)
}

func accountTypeFromTag(tag string) AccountType {
	switch tag {
	case "p256":
		return AccountP256
	case "secp256k1":
		return AccountSecp256k1
	default:
		return AccountEd25519
	}
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
