// Package auth is the identity and authorization gate: it proves that the
// caller of an operation controls the identity it claims, before any state
// is read or written.
package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
	"github.com/yashannadate/stellar-pay/pkg/identity"
)

// ErrUnauthorized is returned when the caller cannot prove the claimed identity.
var ErrUnauthorized = errors.New("unauthorized")

// Mode selects the Authorizer implementation.
type Mode string

// Mode constants.
const (
	ModeNone      Mode = "none"
	ModeJWT       Mode = "jwt"
	ModeSignature Mode = "signature"
)

// Authorizer checks that the caller in ctx controls the claimed identity.
type Authorizer interface {
	Authorize(ctx context.Context, claimed contracts.Identity) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, claimed contracts.Identity) error

func (f AuthorizerFunc) Authorize(ctx context.Context, claimed contracts.Identity) error {
	return f(ctx, claimed)
}

// AllowAll accepts every identity. Development and tests only.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, contracts.Identity) error { return nil }

// PrincipalAuthorizer requires an authenticated Principal (e.g. from a JWT)
// whose ID equals the claimed identity.
type PrincipalAuthorizer struct{}

func (PrincipalAuthorizer) Authorize(ctx context.Context, claimed contracts.Identity) error {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if p.GetID() != claimed {
		return fmt.Errorf("%w: principal %q cannot act as %q", ErrUnauthorized, p.GetID(), claimed)
	}
	return nil
}

// SignatureAuthorizer treats the identity as a hex Ed25519 public key and
// verifies the detached request signature carried in the context.
type SignatureAuthorizer struct{}

func (SignatureAuthorizer) Authorize(ctx context.Context, claimed contracts.Identity) error {
	pub, err := identity.PublicKey(claimed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	proof, ok := GetProof(ctx)
	if !ok || len(proof.Signature) == 0 {
		return fmt.Errorf("%w: missing signature", ErrUnauthorized)
	}
	if !ed25519.Verify(pub, proof.Payload, proof.Signature) {
		return fmt.Errorf("%w: signature verification failed", ErrUnauthorized)
	}
	return nil
}

// NewAuthorizer returns the Authorizer for mode.
func NewAuthorizer(mode Mode) (Authorizer, error) {
	switch mode {
	case ModeNone, "":
		return AllowAll{}, nil
	case ModeJWT:
		return PrincipalAuthorizer{}, nil
	case ModeSignature:
		return SignatureAuthorizer{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}
