package keyfold

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() checks.
var (
	// ErrMissingNetworkID is returned when no network ID is provided.
	ErrMissingNetworkID = errors.New("network ID is required")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrInvalidCredential is returned for malformed or cancelled credential
	// capture: empty passkey public key, invalid recovery phrase, and so on.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrCredentialCancelled is returned when the user cancels a platform
	// authenticator ceremony.
	ErrCredentialCancelled = errors.New("credential capture cancelled")

	// ErrOprfEvaluationFailed is returned when the blind-evaluate exchange
	// with the OPRF server fails. Email-derived identities never fall back
	// to a weaker local derivation.
	ErrOprfEvaluationFailed = errors.New("OPRF evaluation failed")

	// ErrVaultDecryptionFailed covers wrong password, corrupted blob, and
	// tampering. The three are indistinguishable by design.
	ErrVaultDecryptionFailed = errors.New("invalid credential or corrupted data")

	// ErrAlreadyLinkedElsewhere is returned when the credential being linked
	// is already bound to a different identity.
	ErrAlreadyLinkedElsewhere = errors.New("credential already linked to another identity")

	// ErrAlreadyIndependentAccount is returned when the credential being
	// linked already resolves to its own deployed on-chain identity. Linking
	// it would silently orphan that account.
	ErrAlreadyIndependentAccount = errors.New("credential already controls an independent account")

	// ErrPrimaryUnlinkForbidden is returned when unlinking the method the
	// current session authenticated with.
	ErrPrimaryUnlinkForbidden = errors.New("cannot unlink the active primary method")

	// ErrNoActiveSession is returned when link, unlink, export, or another
	// key-bearing operation is attempted without an unlocked session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrReauthenticationRequired is returned when a sensitive operation is
	// attempted outside the fresh-authentication window.
	ErrReauthenticationRequired = errors.New("fresh authentication required")

	// ErrMethodNotLinked is returned when unlinking a method that has no
	// link record on the primary vault.
	ErrMethodNotLinked = errors.New("method is not linked")
)

// LinkConflictError reports why a link attempt was rejected. Reason is one
// of ErrAlreadyLinkedElsewhere or ErrAlreadyIndependentAccount; Address is
// the conflicting identity's address. Both conflicts require different user
// action, so unlike decryption failures they are reported specifically.
type LinkConflictError struct {
	Reason  error
	Address string
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("%v (address %s)", e.Reason, e.Address)
}

func (e *LinkConflictError) Unwrap() error {
	return e.Reason
}
