// Package identity normalizes account identities and manages the Ed25519
// keys used to sign and verify caller tokens.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

// ErrEmptyIdentity is returned when an identity is blank after normalization.
var ErrEmptyIdentity = errors.New("identity is empty")

// Normalize canonicalizes a raw identity: NFC, surrounding whitespace trimmed.
// Two identities are the same account iff their normalized forms are equal.
func Normalize(raw string) (contracts.Identity, error) {
	s := strings.TrimSpace(norm.NFC.String(raw))
	if s == "" {
		return "", ErrEmptyIdentity
	}
	return contracts.Identity(s), nil
}

// NormalizeAll normalizes a list, failing on the first invalid entry.
func NormalizeAll(raw []string) ([]contracts.Identity, error) {
	out := make([]contracts.Identity, len(raw))
	for i, r := range raw {
		id, err := Normalize(r)
		if err != nil {
			return nil, fmt.Errorf("identity %d: %w", i, err)
		}
		out[i] = id
	}
	return out, nil
}

// PublicKey decodes an identity that is a hex-encoded Ed25519 public key.
func PublicKey(id contracts.Identity) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("identity %q is not hex: %w", id, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("identity %q: want %d key bytes, got %d", id, ed25519.PublicKeySize, len(b))
	}
	return ed25519.PublicKey(b), nil
}

// FromPublicKey renders a public key as an identity.
func FromPublicKey(pub ed25519.PublicKey) contracts.Identity {
	return contracts.Identity(hex.EncodeToString(pub))
}
