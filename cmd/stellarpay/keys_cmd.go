package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/yashannadate/stellar-pay/pkg/auth"
	"github.com/yashannadate/stellar-pay/pkg/config"
	"github.com/yashannadate/stellar-pay/pkg/contracts"
	"github.com/yashannadate/stellar-pay/pkg/identity"
	"github.com/yashannadate/stellar-pay/pkg/transfer"
)

// keyEnv is the subset of daemon configuration the offline commands need.
type keyEnv struct {
	JWTSeed     string `env:"JWT_SEED"`
	JWTKeyID    string `env:"JWT_KID" envDefault:"seed-0"`
	DatabaseURL string `env:"DATABASE_URL"`
	Custodian   string `env:"CUSTODIAN" envDefault:"treasury"`
}

func loadKeyEnv() (keyEnv, error) {
	var ke keyEnv
	err := env.ParseWithOptions(&ke, env.Options{Prefix: config.EnvPrefix})
	return ke, err
}

// runTokenCmd implements `stellarpay token`: it signs a JWT with the same
// seed-derived key the daemon verifies with.
func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	ke, err := loadKeyEnv()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	cmd := flag.NewFlagSet("token", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	sub := cmd.String("sub", "", "Identity the token authenticates (REQUIRED)")
	ttl := cmd.Duration("ttl", time.Hour, "Token lifetime")
	roles := cmd.String("roles", "", "Comma-separated roles")
	seed := cmd.String("seed", ke.JWTSeed, "Hex Ed25519 seed (defaults to STELLARPAY_JWT_SEED)")
	kid := cmd.String("kid", ke.JWTKeyID, "Key id stamped in the token header")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *sub == "" || *seed == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --sub and a seed (--seed or STELLARPAY_JWT_SEED) are required")
		return 2
	}

	ks, err := keySetFromSeed(*kid, *seed)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	id, err := identity.Normalize(*sub)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: --sub: %v\n", err)
		return 2
	}
	var roleList []string
	if *roles != "" {
		roleList = strings.Split(*roles, ",")
	}

	token, err := auth.IssueToken(context.Background(), ks, id, roleList, *ttl)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, token)
	return 0
}

// runKeygenCmd prints a fresh Ed25519 seed and the identity it signs as.
func runKeygenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, map[string]string{
		"identity": string(identity.FromPublicKey(pub)),
		"seed":     hex.EncodeToString(priv.Seed()),
	})
	return 0
}

// runCreditCmd credits an account on the postgres ledger.
func runCreditCmd(args []string, stdout, stderr io.Writer) int {
	ke, err := loadKeyEnv()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	cmd := flag.NewFlagSet("credit", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	account := cmd.String("account", ke.Custodian, "Account to credit")
	asset := cmd.String("asset", "", "Asset (REQUIRED)")
	amount := cmd.Int64("amount", 0, "Amount, positive (REQUIRED)")
	dsn := cmd.String("database-url", ke.DatabaseURL, "Postgres DSN (defaults to STELLARPAY_DATABASE_URL)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *asset == "" || *amount <= 0 || *dsn == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --asset, a positive --amount and a database URL are required")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pl, db, err := openPostgresLedger(ctx, *dsn)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	if err := credit(ctx, pl, contracts.Identity(*account), contracts.Asset(*asset), *amount); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	bal, err := pl.Balance(ctx, contracts.Identity(*account), contracts.Asset(*asset))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, map[string]any{"account": *account, "asset": *asset, "balance": bal})
	return 0
}

// crediter is implemented by ledgers that can mint funds.
type crediter interface {
	Credit(ctx context.Context, account contracts.Identity, asset contracts.Asset, amount int64) error
}

var _ crediter = (*transfer.PostgresLedger)(nil)

func credit(ctx context.Context, l crediter, account contracts.Identity, asset contracts.Asset, amount int64) error {
	id, err := identity.Normalize(string(account))
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	return l.Credit(ctx, id, asset, amount)
}
