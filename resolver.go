package keyfold

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"

	"github.com/keyfold/identity-go/internal/derive"
	"github.com/keyfold/identity-go/internal/vault"
)

// ResolutionKind classifies how a presented credential resolved.
type ResolutionKind int

const (
	// ResolvedViaRedirect means a redirect vault mapped the credential to an
	// existing primary identity; the credential is an alternate door.
	ResolvedViaRedirect ResolutionKind = iota
	// ResolvedPrimary means the credential's own derived password opened the
	// network's primary vault, a returning primary user.
	ResolvedPrimary
	// NewIdentity means neither vault matched and a fresh identity was
	// created and persisted.
	NewIdentity
)

// String describes the resolution kind.
func (k ResolutionKind) String() string {
	switch k {
	case ResolvedViaRedirect:
		return "redirect"
	case ResolvedPrimary:
		return "primary"
	case NewIdentity:
		return "new"
	default:
		return "unknown"
	}
}

// resolution is the outcome of the three-way resolver. The precedence rule
// (redirect, then primary, then new) lives in one place so it stays
// auditable; no control flow rides on caught decryption errors.
type resolution struct {
	kind          ResolutionKind
	keys          *derive.Keys // identity keys (the primary's, for redirects)
	vaultPassword string       // password opening the primary vault
	record        *vault.Record
	address       string
	username      string
	method        string
	accountType   string
}

// resolve classifies a credential presentation. Callers hold c.vaultMu:
// the NewIdentity arm persists a primary vault.
func (c *Client) resolve(ctx context.Context, cred Credential) (*resolution, error) {
	keys, err := deriveFor(cred)
	if err != nil {
		return nil, err
	}
	password := derive.VaultPassword(keys)

	// Redirect vault first: a linked secondary credential must resolve to
	// its primary, never to a fresh identity of its own.
	redirect, err := c.loadRedirect(ctx, password)
	if err != nil {
		return nil, err
	}
	if redirect != nil {
		primaryKeys, err := redirectKeys(redirect)
		if err != nil {
			return nil, err
		}
		keys.Zero() // presented credential's keys are no longer needed
		return &resolution{
			kind:          ResolvedViaRedirect,
			keys:          primaryKeys,
			vaultPassword: derive.VaultPassword(primaryKeys),
			address:       redirect.Address,
			username:      redirect.Username,
			method:        redirect.Method,
			accountType:   redirect.AccountType,
		}, nil
	}

	// Then the primary vault under this credential's own derived password.
	record, err := c.codec.LoadRecord(ctx, c.store, vault.PrimaryKey(c.networkID), password)
	switch {
	case err == nil:
		return &resolution{
			kind:          ResolvedPrimary,
			keys:          keys,
			vaultPassword: password,
			record:        record,
			address:       primaryAddress(record),
			username:      record.Username,
			method:        record.Method,
			accountType:   primaryAccountType(record),
		}, nil
	case errors.Is(err, vault.ErrNotFound) || errors.Is(err, vault.ErrDecryptionFailed):
		// Fall through to identity creation.
	default:
		return nil, fmt.Errorf("load primary vault: %w", err)
	}

	return c.createIdentity(ctx, cred, keys, password)
}

// loadRedirect returns the decrypted redirect record for a vault password,
// or nil when none exists or it does not decrypt. Store failures other than
// a missing key are real errors and propagate.
func (c *Client) loadRedirect(ctx context.Context, password string) (*vault.RedirectRecord, error) {
	key := vault.RedirectKey(c.networkID, password)
	redirect, err := c.codec.LoadRedirect(ctx, c.store, key, password)
	switch {
	case err == nil:
		return redirect, nil
	case errors.Is(err, vault.ErrNotFound) || errors.Is(err, vault.ErrDecryptionFailed):
		return nil, nil
	default:
		return nil, fmt.Errorf("load redirect vault: %w", err)
	}
}

// createIdentity computes the new identity deterministically, generates a
// recovery phrase and username, and persists the primary vault. The address
// needs no network call.
func (c *Client) createIdentity(ctx context.Context, cred Credential, keys *derive.Keys, password string) (*resolution, error) {
	address := addressFor(cred.AccountType(), keys)
	username := generateUsername(keys.Signing)
	now := time.Now().UTC()

	record := &vault.Record{
		Accounts: []vault.AccountEntry{{
			Index:   0,
			Type:    cred.AccountType().String(),
			Address: address,
		}},
		Username:   username,
		Method:     cred.Kind().String(),
		CreatedAt:  now,
		AccessedAt: now,
	}

	// Every identity carries a recovery phrase. For phrase-created
	// identities it is the credential itself; otherwise a fresh mnemonic is
	// generated and bound to this identity through a redirect vault, so
	// presenting the phrase later opens the same identity. The binding is
	// recorded as a linked method so deletion tears it down too.
	var phraseBinding *vault.LinkedAuthMethod
	if phrase, ok := cred.(*RecoveryPhraseCredential); ok {
		record.RecoveryPhrase = phrase.Mnemonic
	} else {
		mnemonic, err := newRecoveryPhrase()
		if err != nil {
			return nil, err
		}
		record.RecoveryPhrase = mnemonic
		binding, err := c.bindRecoveryPhrase(ctx, mnemonic, keys, address, username, record.Method, cred.AccountType().String(), now)
		if err != nil {
			return nil, err
		}
		record.LinkedAuthMethods = append(record.LinkedAuthMethods, binding)
		phraseBinding = &binding
	}

	if err := c.codec.SaveRecord(ctx, c.store, vault.PrimaryKey(c.networkID), password, record); err != nil {
		// Failed creation leaves no trace: tear down the phrase redirect and
		// its cache entry so no orphaned alternate door survives.
		if phraseBinding != nil {
			_ = c.store.Delete(ctx, phraseBinding.RedirectKey)
			c.cache.remove(phraseBinding.Fingerprint)
		}
		return nil, fmt.Errorf("persist primary vault: %w", err)
	}

	return &resolution{
		kind:          NewIdentity,
		keys:          keys,
		vaultPassword: password,
		record:        record,
		address:       address,
		username:      username,
		method:        record.Method,
		accountType:   cred.AccountType().String(),
	}, nil
}

// bindRecoveryPhrase writes a redirect vault for the generated phrase so it
// resolves to the new primary identity, and returns the link record to keep
// on the primary vault.
func (c *Client) bindRecoveryPhrase(ctx context.Context, mnemonic string, keys *derive.Keys, address, username, method, accountType string, now time.Time) (vault.LinkedAuthMethod, error) {
	phraseCred := &RecoveryPhraseCredential{Mnemonic: mnemonic}
	phraseKeys, err := deriveFor(phraseCred)
	if err != nil {
		return vault.LinkedAuthMethod{}, err
	}
	defer phraseKeys.Zero()

	phrasePassword := derive.VaultPassword(phraseKeys)
	redirect := &vault.RedirectRecord{
		SecretKey:   hex.EncodeToString(keys.Secret),
		SigningKey:  hex.EncodeToString(keys.Signing),
		Salt:        hex.EncodeToString(keys.Salt),
		Method:      method,
		AccountType: accountType,
		Address:     address,
		Username:    username,
		LinkedAt:    now,
	}
	key := vault.RedirectKey(c.networkID, phrasePassword)
	if err := c.codec.SaveRedirect(ctx, c.store, key, phrasePassword, redirect); err != nil {
		return vault.LinkedAuthMethod{}, fmt.Errorf("bind recovery phrase: %w", err)
	}

	fp := fingerprint(phraseKeys.Signing)
	c.cache.put(fp, cacheEntry{
		Address: address,
		Label:   username,
		KeyType: KindRecoveryPhrase.String(),
	})
	return vault.LinkedAuthMethod{
		Method:      KindRecoveryPhrase.String(),
		Fingerprint: fp,
		LinkedAt:    now,
		RedirectKey: key,
	}, nil
}

// Authenticate presents a credential and activates a session for the
// identity it resolves to. The returned session owns the derived keys until
// it locks.
func (c *Client) Authenticate(ctx context.Context, cred Credential) (*Session, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	c.vaultMu.Lock()
	res, err := c.resolve(ctx, cred)
	if err == nil && res.kind == ResolvedPrimary && res.record != nil {
		// Best-effort access-time bump for returning users; identity
		// correctness never depends on it. Written under the vault mutex so
		// a concurrent link's read-modify-write is never overwritten.
		res.record.AccessedAt = time.Now().UTC()
		_ = c.codec.SaveRecord(ctx, c.store, vault.PrimaryKey(c.networkID), res.vaultPassword, res.record)
	}
	c.vaultMu.Unlock()
	if err != nil {
		return nil, err
	}

	c.cache.put(fingerprint(res.keys.Signing), cacheEntry{
		Address: res.address,
		Label:   res.username,
		KeyType: res.method,
	})

	session := c.newSession(res)
	if res.kind != ResolvedViaRedirect {
		if ikm, ikmErr := cred.material(); ikmErr == nil {
			session.retainMaterial(ikm, cred.Kind().domainLabel())
		}
	}

	c.mu.Lock()
	previous := c.session
	c.session = session
	c.mu.Unlock()
	if previous != nil {
		previous.Lock()
	}

	return session, nil
}

// redirectKeys reconstructs the primary identity's key set from a redirect
// record.
func redirectKeys(r *vault.RedirectRecord) (*derive.Keys, error) {
	secret, err := hex.DecodeString(r.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt redirect record", ErrVaultDecryptionFailed)
	}
	signing, err := hex.DecodeString(r.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt redirect record", ErrVaultDecryptionFailed)
	}
	salt, err := hex.DecodeString(r.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt redirect record", ErrVaultDecryptionFailed)
	}
	return &derive.Keys{Secret: secret, Signing: signing, Salt: salt}, nil
}

func primaryAddress(record *vault.Record) string {
	if len(record.Accounts) == 0 {
		return ""
	}
	return record.Accounts[0].Address
}

func primaryAccountType(record *vault.Record) string {
	if len(record.Accounts) == 0 {
		return ""
	}
	return record.Accounts[0].Type
}

// generateUsername derives a stable, shareable username from the signing
// key: recreating the same identity always yields the same name, with no
// network round-trip.
func generateUsername(signing []byte) string {
	sum := sha256.Sum256(signing)
	return "kf-" + base58.Encode(sum[:6])
}

func newRecoveryPhrase() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("generate recovery phrase: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate recovery phrase: %w", err)
	}
	return mnemonic, nil
}
