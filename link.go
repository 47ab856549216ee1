package keyfold

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/keyfold/identity-go/internal/derive"
	"github.com/keyfold/identity-go/internal/vault"
)

// LinkedMethod is the public view of a secondary credential bound to the
// active identity. It carries only the method tag and a key fingerprint,
// never the underlying email, token, or public key.
type LinkedMethod struct {
	Method      string
	Fingerprint string
	LinkedAt    time.Time
}

// Link binds a secondary credential to the active session's identity. After
// a successful link, authenticating with the secondary credential alone
// resolves to the same identity. Requires an active primary session.
//
// Link rejects, without mutating anything, a credential that is already
// bound to a different identity (ErrAlreadyLinkedElsewhere) or that already
// controls a deployed on-chain account of its own
// (ErrAlreadyIndependentAccount); both come wrapped in a LinkConflictError
// carrying the conflicting address.
func (c *Client) Link(ctx context.Context, secondary Credential) error {
	session, err := c.activeSession()
	if err != nil {
		return err
	}
	session.Touch()

	secondaryKeys, err := deriveFor(secondary)
	if err != nil {
		return err
	}
	defer secondaryKeys.Zero()

	fp := fingerprint(secondaryKeys.Signing)

	// Conflict checks run before any write so a rejected link leaves both
	// vaults untouched.
	if entry, ok := c.cache.get(fp); ok && entry.Address != session.Address() {
		return &LinkConflictError{Reason: ErrAlreadyLinkedElsewhere, Address: entry.Address}
	}

	independentAddress := addressFor(secondary.AccountType(), secondaryKeys)
	deployed, err := c.gateway.IsDeployed(ctx, independentAddress)
	if err != nil {
		return fmt.Errorf("check deployment status: %w", err)
	}
	if deployed {
		return &LinkConflictError{Reason: ErrAlreadyIndependentAccount, Address: independentAddress}
	}

	secondaryPassword := derive.VaultPassword(secondaryKeys)
	redirectKey := vault.RedirectKey(c.networkID, secondaryPassword)

	c.vaultMu.Lock()
	defer c.vaultMu.Unlock()

	record, err := session.loadPrimaryRecord(ctx)
	if err != nil {
		return err
	}

	primaryKeys, err := session.keysSnapshot()
	if err != nil {
		return err
	}
	defer primaryKeys.Zero()

	redirect := &vault.RedirectRecord{
		SecretKey:   hex.EncodeToString(primaryKeys.Secret),
		SigningKey:  hex.EncodeToString(primaryKeys.Signing),
		Salt:        hex.EncodeToString(primaryKeys.Salt),
		Method:      session.Method(),
		AccountType: session.accountType,
		Address:     session.Address(),
		Username:    session.Username(),
		LinkedAt:    time.Now().UTC(),
	}
	if err := c.codec.SaveRedirect(ctx, c.store, redirectKey, secondaryPassword, redirect); err != nil {
		return fmt.Errorf("write redirect vault: %w", err)
	}

	upsertLinkedMethod(record, vault.LinkedAuthMethod{
		Method:      secondary.Kind().String(),
		Fingerprint: fp,
		LinkedAt:    redirect.LinkedAt,
		RedirectKey: redirectKey,
	})
	if wallet, ok := secondary.(*WalletCredential); ok && wallet.Address != "" {
		appendUnique(&record.LinkedChainAddresses, wallet.Address)
	}

	if err := session.savePrimaryRecord(ctx, record); err != nil {
		return err
	}

	c.cache.put(fp, cacheEntry{
		Address: session.Address(),
		Label:   session.Username(),
		KeyType: secondary.Kind().String(),
	})
	return nil
}

// Unlink severs every link record for the given method tag: cache entries,
// the LinkedAuthMethod records on the primary vault, and the redirect
// vaults themselves. The next authentication with that credential resolves
// to a brand-new identity. The active session's own method cannot be
// unlinked.
func (c *Client) Unlink(ctx context.Context, method string) error {
	session, err := c.activeSession()
	if err != nil {
		return err
	}
	session.Touch()

	if method == session.Method() {
		return ErrPrimaryUnlinkForbidden
	}

	c.vaultMu.Lock()
	defer c.vaultMu.Unlock()

	record, err := session.loadPrimaryRecord(ctx)
	if err != nil {
		return err
	}

	kept := record.LinkedAuthMethods[:0]
	var removed []vault.LinkedAuthMethod
	for _, m := range record.LinkedAuthMethods {
		if m.Method == method {
			removed = append(removed, m)
		} else {
			kept = append(kept, m)
		}
	}
	if len(removed) == 0 {
		return fmt.Errorf("%w: %s", ErrMethodNotLinked, method)
	}
	record.LinkedAuthMethods = kept

	for _, m := range removed {
		if err := c.store.Delete(ctx, m.RedirectKey); err != nil {
			return fmt.Errorf("delete redirect vault: %w", err)
		}
		c.cache.remove(m.Fingerprint)
	}

	return session.savePrimaryRecord(ctx, record)
}

// LinkedMethods lists the secondary credentials currently bound to the
// active identity.
func (c *Client) LinkedMethods(ctx context.Context) ([]LinkedMethod, error) {
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

	methods := make([]LinkedMethod, 0, len(record.LinkedAuthMethods))
	for _, m := range record.LinkedAuthMethods {
		methods = append(methods, LinkedMethod{
			Method:      m.Method,
			Fingerprint: m.Fingerprint,
			LinkedAt:    m.LinkedAt,
		})
	}
	return methods, nil
}

// DeleteIdentity removes the primary vault and every redirect vault linked
// to it. This is the explicit, destructive wallet-deletion path; the
// session is locked afterwards.
func (c *Client) DeleteIdentity(ctx context.Context) error {
	session, err := c.activeSession()
	if err != nil {
		return err
	}
	if err := session.requireFresh(); err != nil {
		return err
	}

	c.vaultMu.Lock()
	defer c.vaultMu.Unlock()

	record, err := session.loadPrimaryRecord(ctx)
	if err != nil {
		return err
	}
	for _, m := range record.LinkedAuthMethods {
		if err := c.store.Delete(ctx, m.RedirectKey); err != nil {
			return fmt.Errorf("delete redirect vault: %w", err)
		}
		c.cache.remove(m.Fingerprint)
	}
	if err := c.store.Delete(ctx, vault.PrimaryKey(c.networkID)); err != nil {
		return fmt.Errorf("delete primary vault: %w", err)
	}

	session.Lock()
	return nil
}

func upsertLinkedMethod(record *vault.Record, m vault.LinkedAuthMethod) {
	for i, existing := range record.LinkedAuthMethods {
		if existing.Fingerprint == m.Fingerprint {
			record.LinkedAuthMethods[i] = m
			return
		}
	}
	record.LinkedAuthMethods = append(record.LinkedAuthMethods, m)
}

func appendUnique(list *[]string, value string) {
	for _, v := range *list {
		if v == value {
			return
		}
	}
	*list = append(*list, value)
}

// IsLinkConflict reports whether err is either link-conflict rejection.
func IsLinkConflict(err error) bool {
	return errors.Is(err, ErrAlreadyLinkedElsewhere) || errors.Is(err, ErrAlreadyIndependentAccount)
}
