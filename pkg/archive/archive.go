// Package archive keeps execution receipts in content-addressed storage.
//
// Receipts are serialized to JCS-canonical JSON before hashing, so the same
// receipt always lands under the same "sha256:<hex>" address.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

// ErrInvalidHash is returned for addresses not of the form sha256:<64 hex>.
var ErrInvalidHash = errors.New("invalid content hash")

// Store is a content-addressed blob store.
type Store interface {
	// Store persists data and returns its prefixed content hash.
	Store(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by its content hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Exists reports whether the hash is present.
	Exists(ctx context.Context, hash string) (bool, error)
}

func contentHash(data []byte) (prefixed, raw string) {
	sum := sha256.Sum256(data)
	raw = hex.EncodeToString(sum[:])
	return "sha256:" + raw, raw
}

func parseHash(hash string) (string, error) {
	raw, ok := strings.CutPrefix(hash, "sha256:")
	if !ok || len(raw) != sha256.Size*2 {
		return "", fmt.Errorf("%w: %s", ErrInvalidHash, hash)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidHash, hash)
	}
	return raw, nil
}

// Canonical renders a receipt as JCS-canonical JSON, without its ArchiveHash.
func Canonical(r contracts.ExecutionReceipt) ([]byte, error) {
	r.ArchiveHash = ""
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode receipt: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize receipt: %w", err)
	}
	return out, nil
}

// Archiver writes receipts to a Store.
type Archiver struct {
	store Store
}

func NewArchiver(store Store) *Archiver {
	return &Archiver{store: store}
}

// Archive stores the receipt and returns its address.
func (a *Archiver) Archive(ctx context.Context, r contracts.ExecutionReceipt) (string, error) {
	data, err := Canonical(r)
	if err != nil {
		return "", err
	}
	return a.store.Store(ctx, data)
}

// Load fetches and decodes an archived receipt, verifying its content hash.
func (a *Archiver) Load(ctx context.Context, hash string) (*contracts.ExecutionReceipt, error) {
	if _, err := parseHash(hash); err != nil {
		return nil, err
	}
	data, err := a.store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if got, _ := contentHash(data); got != hash {
		return nil, fmt.Errorf("archive integrity: %s stored under %s", got, hash)
	}
	var r contracts.ExecutionReceipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	r.ArchiveHash = hash
	return &r, nil
}
