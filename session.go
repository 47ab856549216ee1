package keyfold

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keyfold/identity-go/internal/derive"
	"github.com/keyfold/identity-go/internal/registry"
	"github.com/keyfold/identity-go/internal/vault"
)

// Session is the in-memory custodian of an authenticated identity's key
// material. Keys live only here: never persisted outside the encrypted
// vault, wiped on lock, and locked automatically after the configured
// inactivity window, on Suspend, and on client Close.
type Session struct {
	client *Client

	kind        ResolutionKind
	address     string
	username    string
	method      string
	accountType string

	authenticatedAt time.Time

	mu            sync.Mutex
	locked        bool
	keys          *derive.Keys
	ikm           []byte // credential material for account derivation; nil for redirect sessions
	domainLabel   string
	vaultPassword string
	timer         *time.Timer

	subs *lockSubscribers
}

func (c *Client) newSession(res *resolution) *Session {
	s := &Session{
		client:          c,
		kind:            res.kind,
		address:         res.address,
		username:        res.username,
		method:          res.method,
		authenticatedAt: time.Now(),
		keys:            res.keys,
		vaultPassword:   res.vaultPassword,
		accountType:     res.accountType,
		subs:            newLockSubscribers(),
	}
	if c.cfg.autoLockWindow > 0 {
		s.timer = time.AfterFunc(c.cfg.autoLockWindow, s.Lock)
	}
	return s
}

// retainMaterial keeps a copy of the credential's input keying material so
// further accounts can be derived during the session. Redirect sessions
// never receive it: the primary credential's raw material is unknown there.
func (s *Session) retainMaterial(ikm []byte, domainLabel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return
	}
	s.ikm = append([]byte(nil), ikm...)
	s.domainLabel = domainLabel
}

// Resolution reports how the credential resolved: an existing primary, a
// redirect, or a freshly created identity.
func (s *Session) Resolution() ResolutionKind { return s.kind }

// Address returns the identity's contract address.
func (s *Session) Address() string { return s.address }

// Username returns the identity's username.
func (s *Session) Username() string { return s.username }

// Method returns the primary authentication method tag of the identity,
// regardless of which credential opened this session.
func (s *Session) Method() string { return s.method }

// Locked reports whether the session has been locked and its keys wiped.
func (s *Session) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Touch records user activity, pushing back the auto-lock deadline.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked || s.timer == nil {
		return
	}
	s.timer.Reset(s.client.cfg.autoLockWindow)
}

// Lock wipes all key material and notifies lock subscribers. Idempotent.
// The identity itself is untouched: re-presenting any of its credentials
// starts a fresh session.
func (s *Session) Lock() {
	s.mu.Lock()
	if s.locked {
		s.mu.Unlock()
		return
	}
	s.locked = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.keys != nil {
		s.keys.Zero()
	}
	for i := range s.ikm {
		s.ikm[i] = 0
	}
	s.ikm = nil
	s.vaultPassword = ""
	s.mu.Unlock()

	s.subs.notify()
}

// Suspend locks the session in response to loss of foreground visibility.
// Application shells should call it from their platform's visibility hook
// and unconditionally before teardown.
func (s *Session) Suspend() {
	s.Lock()
}

// OnLock registers a callback invoked once when the session locks, whether
// by inactivity, Suspend, or an explicit Lock. The returned subscription
// cancels the registration.
func (s *Session) OnLock(callback func()) Subscription {
	return s.subs.add(callback)
}

// keysSnapshot returns an independent copy of the session's key set, or
// ErrNoActiveSession once locked. The caller wipes the copy.
func (s *Session) keysSnapshot() (*derive.Keys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil, ErrNoActiveSession
	}
	return s.keys.Clone(), nil
}

// SigningKey returns a copy of the session's signing key, or
// ErrNoActiveSession once locked.
func (s *Session) SigningKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return nil, ErrNoActiveSession
	}
	return append([]byte(nil), s.keys.Signing...), nil
}

// requireFresh gates sensitive operations (deploy, export, password change,
// identity deletion) on a recent authentication. Read-only operations are
// not gated.
func (s *Session) requireFresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return ErrNoActiveSession
	}
	if time.Since(s.authenticatedAt) > s.client.cfg.freshAuthWindow {
		return ErrReauthenticationRequired
	}
	return nil
}

// password returns the vault password, or ErrNoActiveSession once locked.
func (s *Session) password() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return "", ErrNoActiveSession
	}
	return s.vaultPassword, nil
}

func (s *Session) loadPrimaryRecord(ctx context.Context) (*vault.Record, error) {
	password, err := s.password()
	if err != nil {
		return nil, err
	}
	c := s.client
	record, err := c.codec.LoadRecord(ctx, c.store, vault.PrimaryKey(c.networkID), password)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) || errors.Is(err, vault.ErrDecryptionFailed) {
			return nil, fmt.Errorf("%w: primary vault", ErrVaultDecryptionFailed)
		}
		return nil, err
	}
	return record, nil
}

func (s *Session) savePrimaryRecord(ctx context.Context, record *vault.Record) error {
	password, err := s.password()
	if err != nil {
		return err
	}
	c := s.client
	if err := c.codec.SaveRecord(ctx, c.store, vault.PrimaryKey(c.networkID), password, record); err != nil {
		return fmt.Errorf("persist primary vault: %w", err)
	}
	return nil
}

// Deploy submits the identity contract for this session's account. Fresh
// authentication is required. The deployed flag on the vault record is a
// best-effort convenience update; deployment truth stays on-chain.
func (s *Session) Deploy(ctx context.Context) (*DeployReceipt, error) {
	if err := s.requireFresh(); err != nil {
		return nil, err
	}

	keys, err := s.keysSnapshot()
	if err != nil {
		return nil, err
	}
	defer keys.Zero()
	params := registry.ParamsFor(s.accountType, keys)

	receipt, err := s.client.gateway.Deploy(ctx, DeployParams{
		AccountType:   params.AccountType,
		KeyCommitment: hex.EncodeToString(params.KeyCommitment[:]),
		Salt:          hex.EncodeToString(params.Salt),
	})
	if err != nil {
		return nil, fmt.Errorf("deploy identity: %w", err)
	}

	s.client.vaultMu.Lock()
	if record, recErr := s.loadPrimaryRecord(ctx); recErr == nil {
		for i := range record.Accounts {
			if record.Accounts[i].Address == s.address {
				record.Accounts[i].Deployed = true
			}
		}
		_ = s.savePrimaryRecord(ctx, record)
	}
	s.client.vaultMu.Unlock()

	return receipt, nil
}

// WaitForDeployment blocks until this session's identity contract is live
// on-chain or the context expires. The context must carry a deadline.
func (s *Session) WaitForDeployment(ctx context.Context) error {
	if s.Locked() {
		return ErrNoActiveSession
	}
	return s.client.gateway.WaitForDeployment(ctx, s.address)
}

// ExportRecoveryPhrase returns the identity's recovery seed phrase. Fresh
// authentication is required.
func (s *Session) ExportRecoveryPhrase(ctx context.Context) (string, error) {
	if err := s.requireFresh(); err != nil {
		return "", err
	}
	s.client.vaultMu.Lock()
	record, err := s.loadPrimaryRecord(ctx)
	s.client.vaultMu.Unlock()
	if err != nil {
		return "", err
	}
	return record.RecoveryPhrase, nil
}

// ChangeVaultPassword binds a user-chosen password to the identity as an
// additional unlock method, replacing any previously set one. Fresh
// authentication is required. Afterwards the password opens the identity
// through Authenticate with a PasswordCredential; every other credential of
// the identity keeps working unchanged. The primary vault itself stays
// encrypted under the identity's derived password, so the resolver needs no
// special case for password-unlocked identities.
func (s *Session) ChangeVaultPassword(ctx context.Context, newPassword string) error {
	if err := s.requireFresh(); err != nil {
		return err
	}

	pwKeys, err := deriveFor(&PasswordCredential{Password: newPassword})
	if err != nil {
		return err
	}
	defer pwKeys.Zero()

	c := s.client
	fp := fingerprint(pwKeys.Signing)
	if entry, ok := c.cache.get(fp); ok && entry.Address != s.address {
		return &LinkConflictError{Reason: ErrAlreadyLinkedElsewhere, Address: entry.Address}
	}

	pwPassword := derive.VaultPassword(pwKeys)
	redirectKey := vault.RedirectKey(c.networkID, pwPassword)

	c.vaultMu.Lock()
	defer c.vaultMu.Unlock()

	record, err := s.loadPrimaryRecord(ctx)
	if err != nil {
		return err
	}
	primaryKeys, err := s.keysSnapshot()
	if err != nil {
		return err
	}
	defer primaryKeys.Zero()

	now := time.Now().UTC()
	redirect := &vault.RedirectRecord{
		SecretKey:   hex.EncodeToString(primaryKeys.Secret),
		SigningKey:  hex.EncodeToString(primaryKeys.Signing),
		Salt:        hex.EncodeToString(primaryKeys.Salt),
		Method:      s.method,
		AccountType: s.accountType,
		Address:     s.address,
		Username:    s.username,
		LinkedAt:    now,
	}
	if err := c.codec.SaveRedirect(ctx, c.store, redirectKey, pwPassword, redirect); err != nil {
		return fmt.Errorf("write password vault: %w", err)
	}

	// One password per identity: drop any previous binding.
	kept := record.LinkedAuthMethods[:0]
	for _, m := range record.LinkedAuthMethods {
		if m.Method == KindPassword.String() && m.Fingerprint != fp {
			if err := c.store.Delete(ctx, m.RedirectKey); err != nil {
				return fmt.Errorf("delete previous password vault: %w", err)
			}
			c.cache.remove(m.Fingerprint)
			continue
		}
		kept = append(kept, m)
	}
	record.LinkedAuthMethods = kept

	upsertLinkedMethod(record, vault.LinkedAuthMethod{
		Method:      KindPassword.String(),
		Fingerprint: fp,
		LinkedAt:    now,
		RedirectKey: redirectKey,
	})
	if err := s.savePrimaryRecord(ctx, record); err != nil {
		return err
	}

	c.cache.put(fp, cacheEntry{
		Address: s.address,
		Label:   s.username,
		KeyType: KindPassword.String(),
	})
	return nil
}
