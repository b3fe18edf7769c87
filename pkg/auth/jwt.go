package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
	"github.com/yashannadate/stellar-pay/pkg/identity"
)

// Claims are the JWT claims expected by the treasury API.
// The subject is the caller's identity.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// JWTValidator validates JWT tokens and extracts claims.
type JWTValidator struct {
	KeySet identity.KeySet
}

// NewJWTValidator creates a validator with the given KeySet.
func NewJWTValidator(ks identity.KeySet) *JWTValidator {
	if ks == nil {
		return nil
	}
	return &JWTValidator{KeySet: ks}
}

// Validate parses and validates a JWT token string.
func (v *JWTValidator) Validate(tokenStr string) (*Claims, error) {
	if v == nil || v.KeySet == nil {
		return nil, fmt.Errorf("validator uninitialized")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.KeySet.KeyFunc())
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Principal converts validated claims into a Principal.
func (c *Claims) Principal() (Principal, error) {
	id, err := identity.Normalize(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}
	return &BasePrincipal{ID: id, Roles: c.Roles}, nil
}

// IssueToken signs a token for id valid for ttl.
func IssueToken(ctx context.Context, ks identity.KeySet, id contracts.Identity, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "stellar-pay",
		},
		Roles: roles,
	}
	return ks.Sign(ctx, claims)
}
