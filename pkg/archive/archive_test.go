package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

func sampleReceipt() contracts.ExecutionReceipt {
	return contracts.ExecutionReceipt{
		ProposalID: 7,
		Executor:   "carol",
		Custodian:  "treasury",
		Asset:      "USDC",
		Transfers: []contracts.TransferRecord{
			{Index: 0, Payee: "p1", Amount: 100, Key: "stellar-pay/7/0"},
			{Index: 1, Payee: "p2", Amount: 200, Key: "stellar-pay/7/1"},
		},
		Total:       300,
		CompletedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCanonical_IgnoresArchiveHash(t *testing.T) {
	r := sampleReceipt()
	a, err := Canonical(r)
	require.NoError(t, err)

	r.ArchiveHash = "sha256:whatever"
	b, err := Canonical(r)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.False(t, strings.Contains(string(a), "archive_hash"))
}

func TestArchiver_FileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	a := NewArchiver(fs)

	hash, err := a.Archive(ctx, sampleReceipt())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "sha256:"))

	again, err := a.Archive(ctx, sampleReceipt())
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	ok, err := fs.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := a.Load(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), got.ProposalID)
	assert.Equal(t, int64(300), got.Total)
	assert.Equal(t, hash, got.ArchiveHash)
	assert.True(t, got.CompletedAt.Equal(sampleReceipt().CompletedAt))
}

func TestArchiver_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	a := NewArchiver(fs)

	hash, err := a.Archive(ctx, sampleReceipt())
	require.NoError(t, err)

	raw := strings.TrimPrefix(hash, "sha256:")
	require.NoError(t, os.WriteFile(filepath.Join(dir, raw+".json"), []byte(`{"proposal_id":8}`), 0o600))

	_, err = a.Load(ctx, hash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integrity")
}

func TestParseHash(t *testing.T) {
	_, err := parseHash("md5:abc")
	require.ErrorIs(t, err, ErrInvalidHash)
	_, err = parseHash("sha256:" + strings.Repeat("z", 64))
	require.ErrorIs(t, err, ErrInvalidHash)

	prefixed, raw := contentHash([]byte("x"))
	got, err := parseHash(prefixed)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ok, err := fs.Exists(context.Background(), prefixed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(ctx, Config{Backend: BackendFS, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(ctx, Config{Backend: "tape"})
	require.Error(t, err)

	_, err = Open(ctx, Config{Backend: BackendS3})
	require.Error(t, err)
}
