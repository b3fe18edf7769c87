package auth

import (
	"context"
	"errors"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	proofKey     contextKey = "proof"
	requestIDKey contextKey = "request_id"
)

// Proof is a detached signature over the canonical request payload.
type Proof struct {
	Payload   []byte
	Signature []byte
}

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return nil, errors.New("no principal in context")
	}
	return p, nil
}

// WithProof attaches a signature proof to the context.
func WithProof(ctx context.Context, p Proof) context.Context {
	return context.WithValue(ctx, proofKey, p)
}

// GetProof retrieves the signature proof from the context.
func GetProof(ctx context.Context) (Proof, bool) {
	p, ok := ctx.Value(proofKey).(Proof)
	return p, ok
}

// WithRequestID attaches a request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID extracts the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
