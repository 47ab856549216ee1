package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
)

// VerifyMagicLink exchanges a single-use magic-link token (delivered out of
// band to a verified email) for a short-lived OPRF session token.
func (c *Client) VerifyMagicLink(ctx context.Context, token string) (*SessionToken, error) {
	var result SessionToken
	req := verifyMagicLinkRequest{Token: token}
	if err := c.do(ctx, "POST", "/v1/magic-link/verify", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EvaluateOPRF submits a blinded group element for evaluation under the
// server's secret scalar. The server sees only the blinded element and the
// opaque session token, never the email.
func (c *Client) EvaluateOPRF(ctx context.Context, blinded []byte, sessionToken string) ([]byte, error) {
	req := evaluateRequest{
		BlindedElement: base64.RawURLEncoding.EncodeToString(blinded),
		SessionToken:   sessionToken,
	}
	var result evaluateResponse
	if err := c.do(ctx, "POST", "/v1/oprf/evaluate", req, &result); err != nil {
		return nil, err
	}

	evaluated, err := base64.RawURLEncoding.DecodeString(result.EvaluatedElement)
	if err != nil {
		return nil, fmt.Errorf("decode evaluated element: %w", err)
	}
	return evaluated, nil
}

// IsDeployed reports whether the identity contract at the given address is
// live on-chain for this network.
func (c *Client) IsDeployed(ctx context.Context, networkID, address string) (bool, error) {
	path := fmt.Sprintf("/v1/networks/%s/identities/%s/deployed",
		url.PathEscape(networkID), url.PathEscape(address))
	var result deployedResponse
	if err := c.do(ctx, "GET", path, nil, &result); err != nil {
		return false, err
	}
	return result.Deployed, nil
}

// Deploy submits an identity contract deployment and returns the receipt.
func (c *Client) Deploy(ctx context.Context, networkID string, req DeployRequest) (*DeployReceipt, error) {
	path := fmt.Sprintf("/v1/networks/%s/identities", url.PathEscape(networkID))
	var result DeployReceipt
	if err := c.do(ctx, "POST", path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
