package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"
)

// SignatureHeader carries the hex Ed25519 signature over the canonical body.
const SignatureHeader = "X-Signature"

// CanonicalPayload returns the RFC 8785 (JCS) form of a JSON body, so that
// signer and verifier agree regardless of key order and whitespace.
func CanonicalPayload(body []byte) ([]byte, error) {
	out, err := jcs.Transform(body)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return out, nil
}

// SignPayload signs the canonical form of body and returns the hex signature.
func SignPayload(key ed25519.PrivateKey, body []byte) (string, error) {
	payload, err := CanonicalPayload(body)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(key, payload)), nil
}

// ProofFromRequest builds a Proof from a raw body and its hex signature header.
func ProofFromRequest(body []byte, sigHex string) (Proof, error) {
	payload, err := CanonicalPayload(body)
	if err != nil {
		return Proof{}, err
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return Proof{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return Proof{Payload: payload, Signature: sig}, nil
}
