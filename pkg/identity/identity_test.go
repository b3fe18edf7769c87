package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    contracts.Identity
		wantErr bool
	}{
		{name: "plain", input: "alice", want: "alice"},
		{name: "trimmed", input: "  bob\n", want: "bob"},
		// "e" + combining acute accent composes to U+00E9.
		{name: "nfc", input: "cafe\u0301", want: "caf\u00e9"},
		{name: "blank", input: "   ", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrEmptyIdentity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeAll(t *testing.T) {
	ids, err := NormalizeAll([]string{"a", " b "})
	require.NoError(t, err)
	assert.Equal(t, []contracts.Identity{"a", "b"}, ids)

	_, err = NormalizeAll([]string{"a", ""})
	require.ErrorIs(t, err, ErrEmptyIdentity)
}

func TestPublicKeyRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	id := FromPublicKey(pub)
	got, err := PublicKey(id)
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	_, err = PublicKey("not-hex")
	assert.Error(t, err)
	_, err = PublicKey("abcd")
	assert.Error(t, err)
}

func TestKeySet_SignAndVerify(t *testing.T) {
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	tok, err := ks.Sign(context.Background(), claims)
	require.NoError(t, err)

	parsed := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(tok, parsed, ks.KeyFunc())
	require.NoError(t, err)
	assert.Equal(t, "alice", parsed.Subject)

	// Tokens signed before a rotation still verify.
	require.NoError(t, ks.Rotate())
	_, err = jwt.ParseWithClaims(tok, &jwt.RegisteredClaims{}, ks.KeyFunc())
	require.NoError(t, err)
}

func TestKeySetFromSeed_Deterministic(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7

	a, err := NewKeySetFromSeed("k1", seed)
	require.NoError(t, err)
	b, err := NewKeySetFromSeed("k1", seed)
	require.NoError(t, err)

	tok, err := a.Sign(context.Background(), jwt.RegisteredClaims{Subject: "bob"})
	require.NoError(t, err)
	_, err = jwt.ParseWithClaims(tok, &jwt.RegisteredClaims{}, b.KeyFunc())
	require.NoError(t, err)

	_, err = NewKeySetFromSeed("k1", []byte("short"))
	assert.Error(t, err)
}

func TestKeySet_RotationEvictsOldest(t *testing.T) {
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{Subject: "alice"}
	first, err := ks.Sign(context.Background(), claims)
	require.NoError(t, err)

	for i := 0; i < maxRetainedKeys-1; i++ {
		require.NoError(t, ks.Rotate())
	}
	_, err = jwt.ParseWithClaims(first, &jwt.RegisteredClaims{}, ks.KeyFunc())
	require.NoError(t, err, "first key is still within the retention window")

	require.NoError(t, ks.Rotate())
	_, err = jwt.ParseWithClaims(first, &jwt.RegisteredClaims{}, ks.KeyFunc())
	assert.Error(t, err)
	assert.Len(t, ks.keys, maxRetainedKeys)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ks.Sign(ctx, claims)
	assert.ErrorIs(t, err, context.Canceled)
}
