package keyfold

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keyfold/identity-go/internal/api"
	"github.com/keyfold/identity-go/internal/derive"
	"github.com/keyfold/identity-go/internal/oprf"
	"github.com/keyfold/identity-go/internal/registry"
	"github.com/keyfold/identity-go/internal/vault"
)

// DeployParams are identity-contract constructor parameters as exposed to
// gateway implementations. The signing key appears only as a hex-encoded
// Keccak-256 commitment, never raw.
type DeployParams struct {
	AccountType   string
	KeyCommitment string
	Salt          string
}

// DeployReceipt is the result of an identity contract deployment.
type DeployReceipt struct {
	Address string
	TxHash  string
}

// DeploymentGateway is the client's view of the on-chain registry:
// deployment-status queries and contract deployment. The default
// implementation talks to the keyfold API; tests and chain-native
// applications can substitute their own.
type DeploymentGateway interface {
	IsDeployed(ctx context.Context, address string) (bool, error)
	Deploy(ctx context.Context, params DeployParams) (*DeployReceipt, error)
	WaitForDeployment(ctx context.Context, address string) error
}

// Client is the entry point of the identity SDK. One client serves one
// network; all vault records it reads and writes are keyed under that
// network ID.
type Client struct {
	networkID string
	apiClient *api.Client
	gateway   DeploymentGateway
	store     vault.Store
	codec     *vault.Codec
	cache     *keyAddressCache
	cfg       *clientConfig

	mu      sync.Mutex // guards session and closed
	session *Session
	closed  bool

	// vaultMu serializes every read-modify-write on the primary vault.
	// Link and unlink would otherwise race and lose updates.
	vaultMu sync.Mutex
}

// New creates a client for the given network.
func New(networkID string, opts ...Option) (*Client, error) {
	if networkID == "" {
		return nil, ErrMissingNetworkID
	}

	cfg := &clientConfig{
		autoLockWindow:  defaultAutoLockWindow,
		freshAuthWindow: defaultFreshAuthWindow,
		kdfIterations:   vault.DefaultIterations,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	apiOpts := []api.Option{}
	if cfg.baseURL != "" {
		apiOpts = append(apiOpts, api.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		apiOpts = append(apiOpts, api.WithTimeout(cfg.timeout))
	}
	if cfg.retries > 0 {
		rc := api.DefaultRetryConfig()
		rc.MaxRetries = cfg.retries
		apiOpts = append(apiOpts, api.WithRetryConfig(rc))
	}
	apiClient := api.New(apiOpts...)
	if cfg.httpClient != nil {
		apiClient.SetHTTPClient(cfg.httpClient)
	}

	var store vault.Store = vault.NewMemoryStore()
	if cfg.store != nil {
		store = &blobStoreAdapter{inner: cfg.store}
	}

	gateway := cfg.gateway
	if gateway == nil {
		gateway = &apiGateway{inner: registry.NewGateway(apiClient, networkID)}
	}

	return &Client{
		networkID: networkID,
		apiClient: apiClient,
		gateway:   gateway,
		store:     store,
		codec:     &vault.Codec{Iterations: cfg.kdfIterations},
		cache:     newKeyAddressCache(),
		cfg:       cfg,
	}, nil
}

// NetworkID returns the network this client serves.
func (c *Client) NetworkID() string {
	return c.networkID
}

// Session returns the current session, or nil if none is active.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Close locks any active session and releases the client. All key material
// is wiped before Close returns.
func (c *Client) Close() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.closed = true
	c.mu.Unlock()

	if session != nil {
		session.Lock()
	}
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// activeSession returns the current unlocked session or ErrNoActiveSession.
func (c *Client) activeSession() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if c.session == nil || c.session.Locked() {
		return nil, ErrNoActiveSession
	}
	return c.session, nil
}

// BeginEmailAuth exchanges a verified magic-link token for a short-lived
// OPRF session token. The email-delivery transport itself is external; its
// entire job is producing the single-use token consumed here.
func (c *Client) BeginEmailAuth(ctx context.Context, magicLinkToken string) (string, time.Time, error) {
	if err := c.checkOpen(); err != nil {
		return "", time.Time{}, err
	}
	tok, err := c.apiClient.VerifyMagicLink(ctx, magicLinkToken)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrOprfEvaluationFailed, err)
	}
	return tok.Token, tok.ExpiresAt, nil
}

// EmailCredential runs the OPRF exchange for an email address: blind
// locally, evaluate remotely under the session token, unblind locally. The
// server never sees the email; the resulting credential is the only way an
// email can enter key derivation. Evaluator failures surface as
// ErrOprfEvaluationFailed and never fall back to a local derivation.
func (c *Client) EmailCredential(ctx context.Context, email, sessionToken string) (*EmailCredential, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	blinded, err := oprf.Blind(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	evaluated, err := c.apiClient.EvaluateOPRF(ctx, blinded.Element, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOprfEvaluationFailed, err)
	}

	unblinded, err := blinded.Unblind(evaluated)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOprfEvaluationFailed, err)
	}

	return &EmailCredential{Unblinded: unblinded}, nil
}

// deriveFor derives the key set for a credential's default account.
func deriveFor(cred Credential) (*derive.Keys, error) {
	ikm, err := cred.material()
	if err != nil {
		return nil, err
	}
	keys, err := derive.DeriveKeys(ikm, cred.Kind().domainLabel())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return keys, nil
}

// addressFor computes the deterministic contract address a key set resolves
// to. Pure computation, no network access.
func addressFor(accountType AccountType, keys *derive.Keys) string {
	return registry.Address(registry.ParamsFor(accountType.String(), keys))
}

// apiGateway adapts the internal registry gateway to the public
// DeploymentGateway interface.
type apiGateway struct {
	inner *registry.Gateway
}

func (g *apiGateway) IsDeployed(ctx context.Context, address string) (bool, error) {
	return g.inner.IsDeployed(ctx, address)
}

func (g *apiGateway) Deploy(ctx context.Context, params DeployParams) (*DeployReceipt, error) {
	p, err := constructorParams(params)
	if err != nil {
		return nil, err
	}
	receipt, err := g.inner.Deploy(ctx, p)
	if err != nil {
		return nil, err
	}
	return &DeployReceipt{Address: receipt.Address, TxHash: receipt.TxHash}, nil
}

func (g *apiGateway) WaitForDeployment(ctx context.Context, address string) error {
	return g.inner.WaitForDeployment(ctx, address)
}

func constructorParams(params DeployParams) (registry.ConstructorParams, error) {
	p, err := registry.ParseParams(params.AccountType, params.KeyCommitment, params.Salt)
	if err != nil {
		return registry.ConstructorParams{}, fmt.Errorf("%w: %w", errInvalidDeployParams, err)
	}
	return p, nil
}

var errInvalidDeployParams = errors.New("invalid deploy parameters")
