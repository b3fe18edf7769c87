package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "github.com/lib/pq" // Postgres driver
	"github.com/redis/go-redis/v9"

	"github.com/yashannadate/stellar-pay/pkg/api"
	"github.com/yashannadate/stellar-pay/pkg/archive"
	"github.com/yashannadate/stellar-pay/pkg/auth"
	"github.com/yashannadate/stellar-pay/pkg/config"
	"github.com/yashannadate/stellar-pay/pkg/contracts"
	"github.com/yashannadate/stellar-pay/pkg/events"
	"github.com/yashannadate/stellar-pay/pkg/identity"
	"github.com/yashannadate/stellar-pay/pkg/lock"
	"github.com/yashannadate/stellar-pay/pkg/observability"
	"github.com/yashannadate/stellar-pay/pkg/policy"
	"github.com/yashannadate/stellar-pay/pkg/store"
	"github.com/yashannadate/stellar-pay/pkg/transfer"
	"github.com/yashannadate/stellar-pay/pkg/treasury"
)

// app is the wired daemon: the treasury, its HTTP handler and everything
// that must be released on shutdown.
type app struct {
	svc     *treasury.Service
	handler http.Handler
	closers []func(context.Context) error
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse acquisition order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newApp builds the daemon from cfg. On error everything acquired so far is
// released.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "stellar-pay",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	a.onClose(obs.Shutdown)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return st.Close() })
	logger.Info("store ready", "backend", cfg.Store)

	xfer, err := openLedger(ctx, cfg, a, logger)
	if err != nil {
		return nil, err
	}

	opts := []treasury.Option{
		treasury.WithRequiredApprovals(cfg.RequiredApprovals),
		treasury.WithMaxPayees(cfg.MaxPayees),
		treasury.WithObservability(obs),
		treasury.WithLogger(logger),
	}

	var rdb redis.UniversalClient
	if cfg.Lock == "redis" || cfg.Replay == "redis" || slices.Contains(cfg.Events, "redis") {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.onClose(func(context.Context) error { return rdb.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
	}
	if cfg.Lock == "redis" {
		opts = append(opts, treasury.WithLocker(lock.NewRedisLocker(rdb, "stellar-pay:lock:", cfg.LockTTL)))
	} else {
		opts = append(opts, treasury.WithLocker(lock.NewLocalLocker()))
	}

	var fan events.Fanout
	for _, kind := range cfg.Events {
		switch kind {
		case "log":
			fan = append(fan, events.NewLogEmitter(logger))
		case "redis":
			fan = append(fan, events.NewRedisEmitter(rdb, cfg.EventsChannel))
		}
	}
	if len(fan) > 0 {
		opts = append(opts, treasury.WithEmitter(fan))
	}

	var rules []policy.Rule
	if pf := cfg.Policy(); pf != nil {
		rules = pf.Rules
	}
	pol, err := policy.NewAmountPolicy(rules)
	if err != nil {
		return nil, fmt.Errorf("amount policy: %w", err)
	}
	opts = append(opts, treasury.WithPolicy(pol))

	arch, err := archive.Open(ctx, archive.Config{
		Backend: cfg.Archive.Backend,
		Dir:     cfg.Archive.Dir,
		S3: archive.S3Config{
			Bucket:   cfg.Archive.S3Bucket,
			Region:   cfg.Archive.S3Region,
			Endpoint: cfg.Archive.S3Endpoint,
			Prefix:   cfg.Archive.S3Prefix,
		},
		GCSBucket: cfg.Archive.GCSBucket,
		GCSPrefix: cfg.Archive.GCSPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	if arch != nil {
		opts = append(opts, treasury.WithArchiver(archive.NewArchiver(arch)))
	}

	gate, err := auth.NewAuthorizer(auth.Mode(cfg.AuthMode))
	if err != nil {
		return nil, err
	}
	svc, err := treasury.NewService(st, gate, xfer, contracts.Identity(cfg.Custodian), opts...)
	if err != nil {
		return nil, err
	}
	a.svc = svc

	serverOpts := []api.ServerOption{api.WithLogger(logger)}
	switch auth.Mode(cfg.AuthMode) {
	case auth.ModeJWT:
		ks, err := keySetFromSeed(cfg.JWTKeyID, cfg.JWTSeed)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, api.WithJWT(auth.NewJWTValidator(ks)))
	case auth.ModeSignature:
		var guard auth.ReplayGuard = auth.NewMemoryReplayGuard(cfg.ReplayTTL)
		if cfg.Replay == "redis" {
			guard = auth.NewRedisReplayGuard(rdb, "stellar-pay:replay:", cfg.ReplayTTL)
		}
		serverOpts = append(serverOpts, api.WithSignatures(), api.WithReplayGuard(guard))
	}
	if cfg.RateLimitRPS > 0 {
		rl := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		a.onClose(func(context.Context) error { rl.Close(); return nil })
		serverOpts = append(serverOpts, api.WithRateLimiter(rl))
	}
	srv, err := api.NewServer(svc, serverOpts...)
	if err != nil {
		return nil, err
	}
	a.handler = srv.Handler()
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case "memory":
		return store.NewMemoryStore(), nil
	case "file":
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, err
		}
		return store.NewFileStore(filepath.Join(cfg.DataDir, "proposals.json"))
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, err
		}
		return store.OpenSQLite(ctx, filepath.Join(cfg.DataDir, "stellarpay.db"))
	case "postgres":
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// openLedger builds the transfer backend wrapped in retries. The memory
// ledger is funded from cfg.Fund on every start; the postgres ledger is
// funded once with the credit command.
func openLedger(ctx context.Context, cfg *config.Config, a *app, logger *slog.Logger) (transfer.Transferer, error) {
	custodian := contracts.Identity(cfg.Custodian)

	var backend transfer.Transferer
	switch cfg.Ledger {
	case "memory":
		ml := transfer.NewMemoryLedger()
		for asset, amount := range cfg.Fund {
			if err := ml.Credit(ctx, custodian, contracts.Asset(asset), amount); err != nil {
				return nil, fmt.Errorf("fund %s: %w", asset, err)
			}
		}
		backend = ml
	case "postgres":
		pl, db, err := openPostgresLedger(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return db.Close() })
		if len(cfg.Fund) > 0 {
			logger.Warn("STELLARPAY_FUND ignored for the postgres ledger; use the credit command")
		}
		backend = pl
	default:
		return nil, fmt.Errorf("unknown ledger %q", cfg.Ledger)
	}
	logger.Info("ledger ready", "backend", cfg.Ledger, "custodian", cfg.Custodian)
	return transfer.NewRetrying(backend, cfg.TransferRetries, cfg.TransferRetryDelay), nil
}

func openPostgresLedger(ctx context.Context, dsn string) (*transfer.PostgresLedger, *sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger db: %w", err)
	}
	pl := transfer.NewPostgresLedger(db)
	if err := pl.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init ledger: %w", err)
	}
	return pl, db, nil
}

func keySetFromSeed(kid, seedHex string) (*identity.InMemoryKeySet, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("%sJWT_SEED must be hex: %w", config.EnvPrefix, err)
	}
	return identity.NewKeySetFromSeed(kid, seed)
}
