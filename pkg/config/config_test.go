package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "memory", cfg.Ledger)
	assert.Equal(t, "treasury", cfg.Custodian)
	assert.Equal(t, uint32(2), cfg.RequiredApprovals)
	assert.Equal(t, "none", cfg.AuthMode)
	assert.Equal(t, []string{"log"}, cfg.Events)
	assert.Equal(t, "local", cfg.Replay)
	assert.Equal(t, 24*time.Hour, cfg.ReplayTTL)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, filepath.Join("data", "receipts"), cfg.Archive.Dir)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Nil(t, cfg.Policy())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STELLARPAY_STORE", "postgres")
	t.Setenv("STELLARPAY_DATABASE_URL", "postgres://localhost/pay")
	t.Setenv("STELLARPAY_REQUIRED_APPROVALS", "3")
	t.Setenv("STELLARPAY_FUND", "USDC:1000,XLM:5")
	t.Setenv("STELLARPAY_EVENTS", "log,redis")
	t.Setenv("STELLARPAY_REDIS_ADDR", "localhost:6379")
	t.Setenv("STELLARPAY_ARCHIVE_BACKEND", "s3")
	t.Setenv("STELLARPAY_ARCHIVE_S3_BUCKET", "receipts")
	t.Setenv("STELLARPAY_OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, uint32(3), cfg.RequiredApprovals)
	assert.Equal(t, map[string]int64{"USDC": 1000, "XLM": 5}, cfg.Fund)
	assert.Equal(t, []string{"log", "redis"}, cfg.Events)
	assert.Equal(t, "receipts", cfg.Archive.S3Bucket)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("STELLARPAY_REQUIRED_APPROVALS", "many")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad store", map[string]string{"STELLARPAY_STORE": "mongo"}, "STORE"},
		{"postgres without url", map[string]string{"STELLARPAY_LEDGER": "postgres"}, "DATABASE_URL"},
		{"jwt without seed", map[string]string{"STELLARPAY_AUTH_MODE": "jwt"}, "JWT_SEED"},
		{"redis lock without addr", map[string]string{"STELLARPAY_LOCK": "redis"}, "REDIS_ADDR"},
		{"redis replay without addr", map[string]string{"STELLARPAY_REPLAY": "redis"}, "REDIS_ADDR"},
		{"bad replay", map[string]string{"STELLARPAY_REPLAY": "disk"}, "REPLAY"},
		{"zero quorum", map[string]string{"STELLARPAY_REQUIRED_APPROVALS": "0"}, "REQUIRED_APPROVALS"},
		{"bad fund", map[string]string{"STELLARPAY_FUND": "USDC:-1"}, "FUND"},
		{"gcs without bucket", map[string]string{"STELLARPAY_ARCHIVE_BACKEND": "gcs"}, "GCS_BUCKET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicyFile(t *testing.T) {
	path := writePolicy(t, strings.Join([]string{
		`schema_version: "1.2.0"`,
		`max_payees: 50`,
		`rules:`,
		`  - name: positive`,
		`    expr: amount > 0`,
		`  - name: cap`,
		`    expr: amount <= 1000000`,
	}, "\n"))

	pf, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50, pf.MaxPayees)
	require.Len(t, pf.Rules, 2)
	assert.Equal(t, "cap", pf.Rules[1].Name)

	t.Setenv("STELLARPAY_POLICY_FILE", path)
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Policy())
	assert.Equal(t, 50, cfg.MaxPayees)
}

func TestLoadPolicyFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing version", "rules: []", "schema_version is required"},
		{"future major", `schema_version: "2.0.0"`, "does not satisfy"},
		{"not semver", `schema_version: "one"`, "schema_version"},
		{"unknown key", "schema_version: \"1.0.0\"\nquorum: 3", "quorum"},
		{"empty expr", "schema_version: \"1.0.0\"\nrules:\n  - name: x", "no expr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPolicyFile(writePolicy(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "debug"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "WARN"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "chatty"}).SlogLevel())
}
