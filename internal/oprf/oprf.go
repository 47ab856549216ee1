// Package oprf implements the client side of the oblivious pseudorandom
// function used for email-based key derivation.
//
// The exchange runs over the ristretto255 prime-order group: the client
// hashes the email to a group element, blinds it with a random non-zero
// scalar, sends the blinded element to the evaluator, and unblinds the
// response with the scalar's inverse. The evaluator never sees the email,
// and the client alone cannot compute the output without the evaluator's
// secret scalar.
package oprf

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/group"
)

// dst is the domain separation tag for hashing emails to the group.
const dst = "keyfold/oprf/email/v1"

var g = group.Ristretto255

var (
	// ErrInvalidElement is returned when evaluator output does not decode
	// to a valid group element.
	ErrInvalidElement = errors.New("oprf: invalid group element")

	// ErrEmptyInput is returned when the email is empty after normalization.
	ErrEmptyInput = errors.New("oprf: empty input")
)

// Blinded is the client state for one exchange: the blinded element to send
// to the evaluator and the scalar needed to unblind the response.
type Blinded struct {
	// Element is the canonical encoding of r*H(email), sent to the evaluator.
	Element []byte

	r group.Scalar
}

// Blind normalizes the email, hashes it to the group, and blinds it with a
// fresh random non-zero scalar. The scalar's inverse always exists because
// the group order is prime and the scalar is non-zero.
func Blind(email string) (*Blinded, error) {
	input := Normalize(email)
	if input == "" {
		return nil, ErrEmptyInput
	}

	p := g.HashToElement([]byte(input), []byte(dst))
	r := g.RandomNonZeroScalar(rand.Reader)

	b := g.NewElement().Mul(p, r)
	enc, err := b.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("oprf: encode blinded element: %w", err)
	}

	return &Blinded{Element: enc, r: r}, nil
}

// Unblind removes the blinding factor from the evaluator's response,
// yielding the canonical encoding of k*H(email). The result depends only on
// the email and the evaluator's secret, never on the blinding scalar.
func (b *Blinded) Unblind(evaluated []byte) ([]byte, error) {
	e := g.NewElement()
	if err := e.UnmarshalBinary(evaluated); err != nil {
		return nil, ErrInvalidElement
	}
	if e.IsIdentity() {
		return nil, ErrInvalidElement
	}

	inv := g.NewScalar().Inv(b.r)
	u := g.NewElement().Mul(e, inv)

	out, err := u.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("oprf: encode unblinded element: %w", err)
	}
	return out, nil
}

// Normalize canonicalizes an email address before hashing so that trivially
// different spellings of the same address derive the same identity.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Evaluate applies a server secret scalar to a blinded element. It exists so
// tests and local tooling can stand in for the remote evaluator; production
// evaluation happens server-side with a key this client never holds.
func Evaluate(blinded, secret []byte) ([]byte, error) {
	k := g.NewScalar()
	if err := k.UnmarshalBinary(secret); err != nil {
		return nil, fmt.Errorf("oprf: decode secret scalar: %w", err)
	}

	e := g.NewElement()
	if err := e.UnmarshalBinary(blinded); err != nil {
		return nil, ErrInvalidElement
	}

	out, err := g.NewElement().Mul(e, k).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("oprf: encode evaluated element: %w", err)
	}
	return out, nil
}

// NewEvaluationKey generates a random evaluator secret scalar. Test/tooling
// helper, paired with Evaluate.
func NewEvaluationKey() ([]byte, error) {
	k := g.RandomNonZeroScalar(rand.Reader)
	out, err := k.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("oprf: encode evaluation key: %w", err)
	}
	return out, nil
}
