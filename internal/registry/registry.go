// Package registry computes deterministic identity-contract addresses and
// talks to the on-chain registry gateway for deployment status and
// submission.
//
// Address computation is pure and local: the address is a Keccak-256 commit
// to the constructor parameters (account type, a hash commitment to the
// signing key, and the derived salt), so it can be shown to the user before
// anything touches the network.
package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/keyfold/identity-go/internal/api"
	"github.com/keyfold/identity-go/internal/derive"
)

// addressPrefix domain-separates identity addresses from any other use of
// Keccak-256 over similar inputs.
var addressPrefix = []byte{0xf0, 0x1d}

// ErrDeployTimeout is returned when a deployment does not confirm before
// the caller's deadline.
var ErrDeployTimeout = errors.New("registry: deployment confirmation timed out")

// ConstructorParams are the identity contract's constructor inputs. The
// signing key appears only as a Keccak-256 commitment.
type ConstructorParams struct {
	AccountType   string
	KeyCommitment [32]byte
	Salt          []byte
}

// ParamsFor builds constructor parameters from a derived key set.
func ParamsFor(accountType string, keys *derive.Keys) ConstructorParams {
	return ConstructorParams{
		AccountType:   accountType,
		KeyCommitment: keccak256(keys.Signing),
		Salt:          keys.Salt,
	}
}

// Address computes the deterministic contract address for the given
// constructor parameters: the low 20 bytes of
// Keccak-256(prefix || accountType || keyCommitment || salt), hex-encoded
// with a 0x prefix. No network access.
func Address(p ConstructorParams) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(addressPrefix)
	h.Write([]byte(p.AccountType))
	h.Write(p.KeyCommitment[:])
	h.Write(p.Salt)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}

// ParseParams decodes hex-encoded constructor parameters.
func ParseParams(accountType, keyCommitment, salt string) (ConstructorParams, error) {
	commitment, err := hex.DecodeString(keyCommitment)
	if err != nil || len(commitment) != 32 {
		return ConstructorParams{}, fmt.Errorf("registry: invalid key commitment")
	}
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return ConstructorParams{}, fmt.Errorf("registry: invalid salt")
	}
	p := ConstructorParams{AccountType: accountType, Salt: saltBytes}
	copy(p.KeyCommitment[:], commitment)
	return p, nil
}

func keccak256(data []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Gateway queries and mutates on-chain deployment state through the API.
type Gateway struct {
	client    *api.Client
	networkID string

	// Polling backoff for WaitForDeployment.
	pollInitial    time.Duration
	pollMax        time.Duration
	pollMultiplier float64
}

// NewGateway creates a gateway for one network.
func NewGateway(client *api.Client, networkID string) *Gateway {
	return &Gateway{
		client:         client,
		networkID:      networkID,
		pollInitial:    2 * time.Second,
		pollMax:        30 * time.Second,
		pollMultiplier: 1.5,
	}
}

// IsDeployed reports whether the identity contract at address is live.
func (g *Gateway) IsDeployed(ctx context.Context, address string) (bool, error) {
	return g.client.IsDeployed(ctx, g.networkID, address)
}

// Deploy submits the identity contract deployment.
func (g *Gateway) Deploy(ctx context.Context, p ConstructorParams) (*api.DeployReceipt, error) {
	req := api.DeployRequest{
		AccountType: p.AccountType,
		SigningKey:  hex.EncodeToString(p.KeyCommitment[:]),
		Salt:        hex.EncodeToString(p.Salt),
	}
	return g.client.Deploy(ctx, g.networkID, req)
}

// WaitForDeployment polls deployment status with growing backoff until the
// contract is live or the context expires. On-chain waits always carry an
// explicit bound: callers must pass a context with a deadline, and a context
// without one is rejected.
func (g *Gateway) WaitForDeployment(ctx context.Context, address string) error {
	if _, ok := ctx.Deadline(); !ok {
		return fmt.Errorf("registry: WaitForDeployment requires a context deadline")
	}

	interval := g.pollInitial
	for {
		deployed, err := g.IsDeployed(ctx, address)
		if err != nil {
			return err
		}
		if deployed {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrDeployTimeout, ctx.Err())
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * g.pollMultiplier)
		if interval > g.pollMax {
			interval = g.pollMax
		}
	}
}
