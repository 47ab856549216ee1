package api

import "time"

// SessionToken is a short-lived, single-use token bound to a verified email,
// authorizing OPRF evaluation for one authentication attempt.
type SessionToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type verifyMagicLinkRequest struct {
	Token string `json:"token"`
}

type evaluateRequest struct {
	BlindedElement string `json:"blindedElement"`
	SessionToken   string `json:"sessionToken"`
}

type evaluateResponse struct {
	EvaluatedElement string `json:"evaluatedElement"`
}

type deployedResponse struct {
	Deployed bool `json:"deployed"`
}

// DeployRequest carries the constructor parameters for an identity contract.
type DeployRequest struct {
	AccountType string `json:"accountType"`
	SigningKey  string `json:"signingKey"` // hex commitment, not raw key
	Salt        string `json:"salt"`       // hex
}

// DeployReceipt is the result of a deployment submission.
type DeployReceipt struct {
	Address string `json:"address"`
	TxHash  string `json:"txHash"`
}
