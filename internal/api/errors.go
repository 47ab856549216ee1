package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel errors for errors.Is() checks.
var (
	// ErrSessionTokenInvalid is returned when the OPRF session token is
	// missing, malformed, expired, or already used.
	ErrSessionTokenInvalid = errors.New("api: invalid or expired session token")

	// ErrEvaluationFailed is returned when the evaluator rejects a request
	// for any other reason.
	ErrEvaluationFailed = errors.New("api: OPRF evaluation failed")

	// ErrIdentityNotFound is returned when a queried identity is unknown.
	ErrIdentityNotFound = errors.New("api: identity not found")

	// ErrRateLimited is returned when the API rate limit is exceeded and
	// retries are exhausted.
	ErrRateLimited = errors.New("api: rate limit exceeded")
)

// APIError is an error response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
}

// Unwrap maps well-known server error codes to sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "session_token_invalid", "session_token_expired", "session_token_used":
		return ErrSessionTokenInvalid
	case "evaluation_failed":
		return ErrEvaluationFailed
	case "identity_not_found":
		return ErrIdentityNotFound
	}
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrSessionTokenInvalid
	}
	return nil
}

func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var parsed struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Code != "" {
			apiErr.Code = parsed.Code
		}
		switch {
		case parsed.Message != "":
			apiErr.Message = parsed.Message
		case parsed.Error != "":
			apiErr.Message = parsed.Error
		}
	}

	return apiErr
}
