package auth_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashannadate/stellar-pay/pkg/auth"
	"github.com/yashannadate/stellar-pay/pkg/identity"
)

func TestAllowAll(t *testing.T) {
	require.NoError(t, auth.AllowAll{}.Authorize(context.Background(), "anyone"))
}

func TestPrincipalAuthorizer(t *testing.T) {
	a := auth.PrincipalAuthorizer{}

	err := a.Authorize(context.Background(), "alice")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	ctx := auth.WithPrincipal(context.Background(), &auth.BasePrincipal{ID: "alice"})
	assert.NoError(t, a.Authorize(ctx, "alice"))
	assert.ErrorIs(t, a.Authorize(ctx, "bob"), auth.ErrUnauthorized)
}

func TestSignatureAuthorizer(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id := identity.FromPublicKey(pub)

	body := []byte(`{"approver": "` + string(id) + `", "nonce": 1}`)
	// Same document, different key order and whitespace.
	reordered := []byte(`{"nonce":1,"approver":"` + string(id) + `"}`)

	sig, err := auth.SignPayload(priv, body)
	require.NoError(t, err)

	proof, err := auth.ProofFromRequest(reordered, sig)
	require.NoError(t, err)

	a := auth.SignatureAuthorizer{}
	ctx := auth.WithProof(context.Background(), proof)
	assert.NoError(t, a.Authorize(ctx, id))

	// Wrong key.
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	assert.ErrorIs(t, a.Authorize(ctx, identity.FromPublicKey(otherPub)), auth.ErrUnauthorized)

	// Tampered payload.
	tampered, err := auth.ProofFromRequest([]byte(`{"approver":"`+string(id)+`","nonce":2}`), sig)
	require.NoError(t, err)
	assert.ErrorIs(t, a.Authorize(auth.WithProof(context.Background(), tampered), id), auth.ErrUnauthorized)

	// Missing proof, non-key identity.
	assert.ErrorIs(t, a.Authorize(context.Background(), id), auth.ErrUnauthorized)
	assert.ErrorIs(t, a.Authorize(ctx, "alice"), auth.ErrUnauthorized)
}

func TestJWTValidator(t *testing.T) {
	ks, err := identity.NewInMemoryKeySet()
	require.NoError(t, err)
	v := auth.NewJWTValidator(ks)

	tok, err := auth.IssueToken(context.Background(), ks, "alice", []string{"approver"}, time.Hour)
	require.NoError(t, err)

	claims, err := v.Validate(tok)
	require.NoError(t, err)
	p, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, "alice", string(p.GetID()))
	assert.True(t, p.HasRole("approver"))

	expired, err := auth.IssueToken(context.Background(), ks, "alice", nil, -time.Hour)
	require.NoError(t, err)
	_, err = v.Validate(expired)
	assert.Error(t, err)

	assert.Nil(t, auth.NewJWTValidator(nil))
	_, err = (*auth.JWTValidator)(nil).Validate(tok)
	assert.Error(t, err)
}

func TestNewAuthorizer(t *testing.T) {
	for _, mode := range []auth.Mode{auth.ModeNone, auth.ModeJWT, auth.ModeSignature, ""} {
		a, err := auth.NewAuthorizer(mode)
		require.NoError(t, err)
		require.NotNil(t, a)
	}
	_, err := auth.NewAuthorizer("kerberos")
	assert.Error(t, err)
}
