package keyfold

import (
	"net/http"
	"time"
)

const (
	defaultAutoLockWindow  = 15 * time.Minute
	defaultFreshAuthWindow = 5 * time.Minute
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	retries    int

	store   BlobStore
	gateway DeploymentGateway

	autoLockWindow  time.Duration
	freshAuthWindow time.Duration
	kdfIterations   int
}

// Option configures the client.
type Option func(*clientConfig)

// WithBaseURL sets the base URL of the keyfold API (OPRF evaluator,
// magic-link verification, registry gateway).
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout for API calls.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRetries sets the number of retries for API calls.
func WithRetries(count int) Option {
	return func(c *clientConfig) {
		c.retries = count
	}
}

// WithStore sets the encrypted vault store. Defaults to an in-memory store;
// applications wanting identities that survive a restart supply their own.
func WithStore(store BlobStore) Option {
	return func(c *clientConfig) {
		c.store = store
	}
}

// WithDeploymentGateway replaces the on-chain deployment gateway. Mainly
// useful for tests and for applications with their own chain access.
func WithDeploymentGateway(g DeploymentGateway) Option {
	return func(c *clientConfig) {
		c.gateway = g
	}
}

// WithAutoLockWindow sets the inactivity window after which the session
// custodian wipes key material. Default: 15 minutes.
func WithAutoLockWindow(window time.Duration) Option {
	return func(c *clientConfig) {
		c.autoLockWindow = window
	}
}

// WithFreshAuthWindow sets how long after authentication a session counts as
// fresh for sensitive operations (deploy, export, password change).
// Default: 5 minutes.
func WithFreshAuthWindow(window time.Duration) Option {
	return func(c *clientConfig) {
		c.freshAuthWindow = window
	}
}

// WithKDFIterations overrides the vault PBKDF2 work factor. Lowering it
// below the default weakens vaults at rest; intended for tests.
func WithKDFIterations(iterations int) Option {
	return func(c *clientConfig) {
		c.kdfIterations = iterations
	}
}
