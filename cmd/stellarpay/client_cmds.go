package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/yashannadate/stellar-pay/pkg/client"
	"github.com/yashannadate/stellar-pay/pkg/config"
	"github.com/yashannadate/stellar-pay/pkg/contracts"
	"github.com/yashannadate/stellar-pay/pkg/identity"
)

// clientEnv holds defaults for the client commands.
type clientEnv struct {
	Server  string        `env:"SERVER" envDefault:"http://localhost:8080"`
	Token   string        `env:"TOKEN"`
	Key     string        `env:"KEY"` // hex Ed25519 seed used to sign requests
	Timeout time.Duration `env:"CLIENT_TIMEOUT" envDefault:"30s"`
}

// clientFlags registers the connection flags shared by every client command.
type clientFlags struct {
	server  string
	token   string
	key     string
	timeout time.Duration
}

func registerClientFlags(cmd *flag.FlagSet) (*clientFlags, error) {
	var ce clientEnv
	if err := env.ParseWithOptions(&ce, env.Options{Prefix: config.EnvPrefix}); err != nil {
		return nil, err
	}
	cf := &clientFlags{}
	cmd.StringVar(&cf.server, "server", ce.Server, "API base URL")
	cmd.StringVar(&cf.token, "token", ce.Token, "Bearer token (jwt auth)")
	cmd.StringVar(&cf.key, "key", ce.Key, "Hex Ed25519 seed to sign requests (signature auth)")
	cmd.DurationVar(&cf.timeout, "timeout", ce.Timeout, "Request timeout")
	return cf, nil
}

// signer returns the signing key and its identity, or nil when no key is set.
func (cf *clientFlags) signer() (ed25519.PrivateKey, contracts.Identity, error) {
	if cf.key == "" {
		return nil, "", nil
	}
	seed, err := hex.DecodeString(cf.key)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, "", fmt.Errorf("--key must be a %d-byte hex seed", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv, identity.FromPublicKey(priv.Public().(ed25519.PublicKey)), nil
}

func (cf *clientFlags) client() (*client.Client, contracts.Identity, error) {
	opts := []client.Option{client.WithTimeout(cf.timeout)}
	if cf.token != "" {
		opts = append(opts, client.WithToken(cf.token))
	}
	key, self, err := cf.signer()
	if err != nil {
		return nil, "", err
	}
	if key != nil {
		opts = append(opts, client.WithSigningKey(key))
	}
	return client.New(cf.server, opts...), self, nil
}

// payments collects repeated --pay payee=amount flags.
type payments struct {
	payees  []contracts.Identity
	amounts []int64
}

func (p *payments) String() string {
	parts := make([]string, len(p.payees))
	for i := range p.payees {
		parts[i] = fmt.Sprintf("%s=%d", p.payees[i], p.amounts[i])
	}
	return strings.Join(parts, ",")
}

func (p *payments) Set(v string) error {
	payee, raw, ok := strings.Cut(v, "=")
	if !ok || payee == "" {
		return fmt.Errorf("want payee=amount, got %q", v)
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("amount %q: %w", raw, err)
	}
	p.payees = append(p.payees, contracts.Identity(payee))
	p.amounts = append(p.amounts, amount)
	return nil
}

// pick returns the explicit identity, falling back to the signing identity.
func pick(explicit string, self contracts.Identity) contracts.Identity {
	if explicit != "" {
		return contracts.Identity(explicit)
	}
	return self
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// reportError prints err and returns the exit code: 1 for API rejections,
// 2 for transport failures.
func reportError(stderr io.Writer, err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		_, _ = fmt.Fprintf(stderr, "Error: %s: %s\n", apiErr.Problem.Code, apiErr.Problem.Detail)
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return 2
}

func parseID(stderr io.Writer, id uint64) (uint32, bool) {
	if id == 0 || id > uint64(^uint32(0)) {
		_, _ = fmt.Fprintln(stderr, "Error: --id is required and must fit in 32 bits")
		return 0, false
	}
	return uint32(id), true
}

func runProposeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("propose", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf, err := registerClientFlags(cmd)
	if err != nil {
		return reportError(stderr, err)
	}
	proposer := cmd.String("proposer", "", "Proposer identity (defaults to the --key identity)")
	var pay payments
	cmd.Var(&pay, "pay", "payee=amount (repeatable)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	c, self, err := cf.client()
	if err != nil {
		return reportError(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()

	id, err := c.CreateProposal(ctx, pick(*proposer, self), pay.payees, pay.amounts)
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, map[string]uint32{"proposal_id": id})
	return 0
}

func runApproveCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("approve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf, err := registerClientFlags(cmd)
	if err != nil {
		return reportError(stderr, err)
	}
	rawID := cmd.Uint64("id", 0, "Proposal id (REQUIRED)")
	approver := cmd.String("approver", "", "Approver identity (defaults to the --key identity)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	id, ok := parseID(stderr, *rawID)
	if !ok {
		return 2
	}

	c, self, err := cf.client()
	if err != nil {
		return reportError(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()

	p, err := c.ApproveProposal(ctx, pick(*approver, self), id)
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, p)
	return 0
}

func runExecuteCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("execute", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf, err := registerClientFlags(cmd)
	if err != nil {
		return reportError(stderr, err)
	}
	rawID := cmd.Uint64("id", 0, "Proposal id (REQUIRED)")
	executor := cmd.String("executor", "", "Executor identity (defaults to the --key identity)")
	asset := cmd.String("asset", "", "Asset to disburse (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	id, ok := parseID(stderr, *rawID)
	if !ok {
		return 2
	}
	if *asset == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --asset is required")
		return 2
	}

	c, self, err := cf.client()
	if err != nil {
		return reportError(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()

	receipt, err := c.ExecuteProposal(ctx, pick(*executor, self), id, contracts.Asset(*asset))
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, receipt)
	return 0
}

func runShowCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("show", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf, err := registerClientFlags(cmd)
	if err != nil {
		return reportError(stderr, err)
	}
	rawID := cmd.Uint64("id", 0, "Proposal id (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	id, ok := parseID(stderr, *rawID)
	if !ok {
		return 2
	}

	c, _, err := cf.client()
	if err != nil {
		return reportError(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()

	p, err := c.GetProposal(ctx, id)
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, p)
	return 0
}

func runListCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("list", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf, err := registerClientFlags(cmd)
	if err != nil {
		return reportError(stderr, err)
	}
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	c, _, err := cf.client()
	if err != nil {
		return reportError(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()

	ps, err := c.ListProposals(ctx)
	if err != nil {
		return reportError(stderr, err)
	}
	printJSON(stdout, ps)
	return 0
}

func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cf, err := registerClientFlags(cmd)
	if err != nil {
		return reportError(stderr, err)
	}
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	c, _, err := cf.client()
	if err != nil {
		return reportError(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()

	h, err := c.Health(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	printJSON(stdout, h)
	return 0
}
