package keyfold

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// CredentialKind identifies a credential type. The set is closed: every kind
// carries its own key-derivation domain label, so no unrecognized label can
// ever reach the derivation layer.
type CredentialKind int

const (
	// KindPasskey is a platform authenticator (hardware/biometric) credential.
	KindPasskey CredentialKind = iota
	// KindFederated is a federated-identity subject (OAuth/OIDC).
	KindFederated
	// KindWalletEVM is a wallet signature from an EVM chain.
	KindWalletEVM
	// KindWalletSolana is a wallet signature from Solana.
	KindWalletSolana
	// KindEmail is an email address put through the OPRF exchange.
	KindEmail
	// KindRecoveryPhrase is a BIP-39 recovery phrase.
	KindRecoveryPhrase
	// KindPassword is a user-chosen vault password.
	KindPassword
)

// String returns the method tag recorded in vaults and link records.
func (k CredentialKind) String() string {
	switch k {
	case KindPasskey:
		return "passkey"
	case KindFederated:
		return "federated"
	case KindWalletEVM:
		return "wallet-evm"
	case KindWalletSolana:
		return "wallet-solana"
	case KindEmail:
		return "email"
	case KindRecoveryPhrase:
		return "phrase"
	case KindPassword:
		return "password"
	default:
		return "unknown"
	}
}

// domainLabel is the key-derivation domain for this kind. Labels are
// versioned; changing one is a key-breaking event.
func (k CredentialKind) domainLabel() string {
	return "keyfold/" + k.String() + "/v1"
}

// AccountType is the curve/signature family the identity contract verifies
// against for an account.
type AccountType int

const (
	// AccountP256 is NIST P-256 (WebAuthn authenticators).
	AccountP256 AccountType = iota
	// AccountSecp256k1 is secp256k1 (EVM wallets).
	AccountSecp256k1
	// AccountEd25519 is Ed25519 (Solana wallets and derived-key accounts).
	AccountEd25519
)

// String returns the constructor-parameter tag for this account type.
func (t AccountType) String() string {
	switch t {
	case AccountP256:
		return "p256"
	case AccountSecp256k1:
		return "secp256k1"
	case AccountEd25519:
		return "ed25519"
	default:
		return "unknown"
	}
}

// Credential is one presented authentication credential. Each implementation
// maps to exactly one CredentialKind and one AccountType, and exposes its
// raw bytes as input keying material for the derivation core.
type Credential interface {
	// Kind identifies the credential type.
	Kind() CredentialKind
	// AccountType is the signature family of the account this credential
	// controls.
	AccountType() AccountType
	// material returns the input keying material, or ErrInvalidCredential
	// if the credential is malformed.
	material() ([]byte, error)
}

// PasskeyCredential is the output of a platform authenticator ceremony.
type PasskeyCredential struct {
	// PublicKey is the authenticator's raw public key bytes.
	PublicKey []byte
	// CredentialID is the authenticator-assigned credential identifier.
	CredentialID string
}

// Kind implements Credential.
func (c *PasskeyCredential) Kind() CredentialKind { return KindPasskey }

// AccountType implements Credential.
func (c *PasskeyCredential) AccountType() AccountType { return AccountP256 }

func (c *PasskeyCredential) material() ([]byte, error) {
	if len(c.PublicKey) == 0 || c.CredentialID == "" {
		return nil, fmt.Errorf("%w: passkey requires public key and credential ID", ErrInvalidCredential)
	}
	// Credential ID and public key are both mixed in: two authenticators
	// could in principle present the same key bytes under different IDs.
	ikm := make([]byte, 0, len(c.PublicKey)+1+len(c.CredentialID))
	ikm = append(ikm, c.PublicKey...)
	ikm = append(ikm, 0x00)
	ikm = append(ikm, []byte(c.CredentialID)...)
	return ikm, nil
}

// FederatedCredential is a verified federated-identity subject.
type FederatedCredential struct {
	// Subject is the provider-issued stable subject identifier.
	Subject string
}

// Kind implements Credential.
func (c *FederatedCredential) Kind() CredentialKind { return KindFederated }

// AccountType implements Credential.
func (c *FederatedCredential) AccountType() AccountType { return AccountEd25519 }

func (c *FederatedCredential) material() ([]byte, error) {
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: federated credential requires a subject", ErrInvalidCredential)
	}
	return []byte(c.Subject), nil
}

// WalletChain selects which external chain produced a wallet signature.
type WalletChain int

const (
	// ChainEVM is an EVM-compatible chain (secp256k1 signatures).
	ChainEVM WalletChain = iota
	// ChainSolana is Solana (Ed25519 signatures).
	ChainSolana
)

// WalletCredential is a deterministic wallet signature over a fixed
// challenge; the signature bytes are treated purely as entropy.
type WalletCredential struct {
	Chain     WalletChain
	Signature []byte
	// Address is the wallet's chain address. Optional; when set it is
	// recorded on the identity for display, never used in derivation.
	Address string
}

// Kind implements Credential.
func (c *WalletCredential) Kind() CredentialKind {
	if c.Chain == ChainSolana {
		return KindWalletSolana
	}
	return KindWalletEVM
}

// AccountType implements Credential.
func (c *WalletCredential) AccountType() AccountType {
	if c.Chain == ChainSolana {
		return AccountEd25519
	}
	return AccountSecp256k1
}

func (c *WalletCredential) material() ([]byte, error) {
	if len(c.Signature) == 0 {
		return nil, fmt.Errorf("%w: wallet credential requires signature bytes", ErrInvalidCredential)
	}
	return c.Signature, nil
}

// EmailCredential is the unblinded output of the OPRF exchange. Construct it
// with Client.EmailCredential rather than directly; the raw email string
// alone can never produce one.
type EmailCredential struct {
	// Unblinded is the canonical encoding of the OPRF output element.
	Unblinded []byte
}

// Kind implements Credential.
func (c *EmailCredential) Kind() CredentialKind { return KindEmail }

// AccountType implements Credential.
func (c *EmailCredential) AccountType() AccountType { return AccountEd25519 }

func (c *EmailCredential) material() ([]byte, error) {
	if len(c.Unblinded) == 0 {
		return nil, fmt.Errorf("%w: email credential requires OPRF output", ErrInvalidCredential)
	}
	return c.Unblinded, nil
}

// RecoveryPhraseCredential is a BIP-39 mnemonic. The underlying entropy is
// the input keying material, so spelling-equivalent mnemonics derive the
// same identity.
type RecoveryPhraseCredential struct {
	Mnemonic string
}

// Kind implements Credential.
func (c *RecoveryPhraseCredential) Kind() CredentialKind { return KindRecoveryPhrase }

// AccountType implements Credential.
func (c *RecoveryPhraseCredential) AccountType() AccountType { return AccountEd25519 }

func (c *RecoveryPhraseCredential) material() ([]byte, error) {
	entropy, err := bip39.EntropyFromMnemonic(c.Mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid recovery phrase", ErrInvalidCredential)
	}
	return entropy, nil
}

// PasswordCredential is a user-chosen vault password, bound to an identity
// with Session.ChangeVaultPassword. The password text is the input keying
// material; it is never stored anywhere.
type PasswordCredential struct {
	Password string
}

// Kind implements Credential.
func (c *PasswordCredential) Kind() CredentialKind { return KindPassword }

// AccountType implements Credential.
func (c *PasswordCredential) AccountType() AccountType { return AccountEd25519 }

func (c *PasswordCredential) material() ([]byte, error) {
	if c.Password == "" {
		return nil, fmt.Errorf("%w: empty vault password", ErrInvalidCredential)
	}
	return []byte(c.Password), nil
}
