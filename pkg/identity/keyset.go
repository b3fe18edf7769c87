package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// maxRetainedKeys bounds how many rotated-out keys still verify tokens.
const maxRetainedKeys = 10

// KeySet signs caller tokens and resolves verification keys by kid.
type KeySet interface {
	// Sign issues a token with the active key.
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	// KeyFunc resolves a token's verification key from its kid header.
	KeyFunc() jwt.Keyfunc
}

// InMemoryKeySet holds Ed25519 signing keys. Rotation keeps the newest
// maxRetainedKeys keys verifiable and evicts the oldest.
type InMemoryKeySet struct {
	mu     sync.RWMutex
	active string
	order  []string // kids, oldest first
	keys   map[string]ed25519.PrivateKey
}

// NewInMemoryKeySet creates a key set with one random key.
func NewInMemoryKeySet() (*InMemoryKeySet, error) {
	ks := &InMemoryKeySet{keys: make(map[string]ed25519.PrivateKey)}
	if err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// NewKeySetFromSeed derives the only key from a 32-byte seed so that the
// daemon and the token command agree on it without sharing state.
func NewKeySetFromSeed(kid string, seed []byte) (*InMemoryKeySet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)
	if kid == "" {
		kid = keyID(key)
	}
	ks := &InMemoryKeySet{keys: make(map[string]ed25519.PrivateKey)}
	ks.add(kid, key)
	return ks, nil
}

// keyID fingerprints a key by the first 8 bytes of its public half.
func keyID(key ed25519.PrivateKey) string {
	pub := key.Public().(ed25519.PublicKey)
	return "ed25519-" + hex.EncodeToString(pub[:8])
}

// add installs key as active. Callers hold mu or own ks exclusively.
func (ks *InMemoryKeySet) add(kid string, key ed25519.PrivateKey) {
	if _, exists := ks.keys[kid]; !exists {
		ks.order = append(ks.order, kid)
	}
	ks.keys[kid] = key
	ks.active = kid

	for len(ks.order) > maxRetainedKeys {
		delete(ks.keys, ks.order[0])
		ks.order = ks.order[1:]
	}
}

// Rotate makes a fresh random key active.
func (ks *InMemoryKeySet) Rotate() error {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.add(keyID(key), key)
	return nil
}

// Sign issues an EdDSA token with the active kid in its header.
func (ks *InMemoryKeySet) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ks.mu.RLock()
	kid, key := ks.active, ks.keys[ks.active]
	ks.mu.RUnlock()
	if key == nil {
		return "", errors.New("key set has no active key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

// KeyFunc accepts only EdDSA tokens whose kid is still retained.
func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}

		ks.mu.RLock()
		key, ok := ks.keys[kid]
		ks.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key.Public(), nil
	}
}
