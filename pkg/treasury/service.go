// Package treasury implements the quorum-gated payroll proposal workflow.
//
// A proposer submits a batch of payees and amounts. Distinct approvers vote
// once each, and when the approval count reaches the quorum any authorized
// caller may execute the proposal, which pays every payee from the custodial
// account exactly once. Executed proposals are terminal.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yashannadate/stellar-pay/pkg/archive"
	"github.com/yashannadate/stellar-pay/pkg/auth"
	"github.com/yashannadate/stellar-pay/pkg/contracts"
	"github.com/yashannadate/stellar-pay/pkg/events"
	"github.com/yashannadate/stellar-pay/pkg/identity"
	"github.com/yashannadate/stellar-pay/pkg/lock"
	"github.com/yashannadate/stellar-pay/pkg/observability"
	"github.com/yashannadate/stellar-pay/pkg/policy"
	"github.com/yashannadate/stellar-pay/pkg/store"
	"github.com/yashannadate/stellar-pay/pkg/transfer"
)

// DefaultRequiredApprovals is the quorum when none is configured.
const DefaultRequiredApprovals uint32 = 2

// Service is the proposal state machine. Safe for concurrent use.
type Service struct {
	store     store.Store
	registry  *registry
	executor  *executor
	gate      auth.Authorizer
	custodian contracts.Identity

	required  uint32
	maxPayees int
	policy    *policy.AmountPolicy
	locker    lock.Locker
	emitter   events.Emitter
	archiver  *archive.Archiver
	obs       *observability.Provider
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRequiredApprovals sets the quorum. Values below 1 are ignored.
func WithRequiredApprovals(n uint32) Option {
	return func(s *Service) {
		if n > 0 {
			s.required = n
		}
	}
}

// WithMaxPayees caps batch size; 0 means unlimited.
func WithMaxPayees(n int) Option {
	return func(s *Service) { s.maxPayees = n }
}

func WithPolicy(p *policy.AmountPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithEmitter(e events.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// WithArchiver enables best-effort receipt archival.
func WithArchiver(a *archive.Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

func WithObservability(p *observability.Provider) Option {
	return func(s *Service) { s.obs = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires the state machine. custodian is the account that funds
// every disbursement.
func NewService(st store.Store, gate auth.Authorizer, xfer transfer.Transferer, custodian contracts.Identity, opts ...Option) (*Service, error) {
	if st == nil || gate == nil || xfer == nil {
		return nil, errors.New("treasury: store, authorizer and transferer are required")
	}
	cust, err := identity.Normalize(string(custodian))
	if err != nil {
		return nil, fmt.Errorf("treasury: custodian: %w", err)
	}

	s := &Service{
		store:     st,
		gate:      gate,
		custodian: cust,
		required:  DefaultRequiredApprovals,
		locker:    lock.NewLocalLocker(),
		emitter:   events.Nop{},
		now:       func() time.Time { return time.Now().UTC() },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy == nil {
		if s.policy, err = policy.NewAmountPolicy(nil); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "treasury")

	s.registry = &registry{store: st, locker: s.locker}
	s.executor = &executor{
		store:     st,
		transfers: xfer,
		custodian: cust,
		obs:       s.obs,
		now:       s.now,
		logger:    s.logger,
	}
	return s, nil
}

// RequiredApprovals returns the configured quorum.
func (s *Service) RequiredApprovals() uint32 { return s.required }

// Custodian returns the funding account.
func (s *Service) Custodian() contracts.Identity { return s.custodian }

// Create validates and stores a new open proposal and returns its id.
func (s *Service) Create(ctx context.Context, proposer contracts.Identity, payees []contracts.Identity, amounts []int64) (id uint32, err error) {
	ctx, done := s.obs.TrackOperation(ctx, "treasury.create")
	defer func() { done(err) }()

	proposer, err = s.authorize(ctx, proposer)
	if err != nil {
		return 0, err
	}

	if len(payees) == 0 {
		return 0, ErrEmptyBatch
	}
	if len(payees) != len(amounts) {
		return 0, fmt.Errorf("%w: %d payees, %d amounts", ErrLengthMismatch, len(payees), len(amounts))
	}
	if s.maxPayees > 0 && len(payees) > s.maxPayees {
		return 0, fmt.Errorf("%w: %d payees, limit %d", ErrBatchTooLarge, len(payees), s.maxPayees)
	}

	normalized := make([]contracts.Identity, len(payees))
	for i, p := range payees {
		n, err := identity.Normalize(string(p))
		if err != nil {
			return 0, fmt.Errorf("%w: payee %d: %w", ErrInvalidIdentity, i, err)
		}
		normalized[i] = n
	}
	if err := s.policy.CheckBatch(ctx, normalized, amounts); err != nil {
		if errors.Is(err, policy.ErrRejected) {
			return 0, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
		}
		return 0, fmt.Errorf("evaluate amount policy: %w", err)
	}
	if _, err := contracts.SumAmounts(amounts); err != nil {
		return 0, fmt.Errorf("%w: batch total: %w", ErrInvalidAmount, err)
	}

	amts := append([]int64(nil), amounts...)
	now := s.now()
	id, err = s.registry.create(ctx, func(id uint32) *contracts.Proposal {
		return &contracts.Proposal{
			ID:        id,
			Proposer:  proposer,
			Payees:    normalized,
			Amounts:   amts,
			CreatedAt: now,
			UpdatedAt: now,
		}
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "proposal created",
		"proposal_id", id, "proposer", string(proposer), "payees", len(normalized))
	s.emit(ctx, contracts.EventCreated, id, proposer, 0)
	return id, nil
}

// Approve records one vote by approver and returns the updated proposal.
func (s *Service) Approve(ctx context.Context, approver contracts.Identity, id uint32) (p *contracts.Proposal, err error) {
	ctx, done := s.obs.TrackOperation(ctx, "treasury.approve", attribute.Int64("stellarpay.proposal_id", int64(id)))
	defer func() { done(err) }()

	approver, err = s.authorize(ctx, approver)
	if err != nil {
		return nil, err
	}

	p, err = s.withProposal(ctx, id, func(p *contracts.Proposal) error {
		if p.Executed {
			return ErrAlreadyExecuted
		}
		if p.HasApprover(approver) {
			return fmt.Errorf("%w: %s on proposal %d", ErrDuplicateApproval, approver, id)
		}
		p.Approvers = append(p.Approvers, approver)
		p.ApprovalCount = uint32(len(p.Approvers))
		p.UpdatedAt = s.now()
		if err := s.store.Put(ctx, p); err != nil {
			return fmt.Errorf("store approval: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "proposal approved",
		"proposal_id", id, "approver", string(approver), "approvals", p.ApprovalCount, "required", s.required)
	s.emit(ctx, contracts.EventApproved, id, approver, 0)
	return p, nil
}

// Execute pays every payee of an approved proposal in asset and marks it
// executed. A transfer failure leaves the proposal open; calling Execute
// again with the same asset resumes after the last successful payee.
func (s *Service) Execute(ctx context.Context, executorID contracts.Identity, id uint32, asset contracts.Asset) (receipt *contracts.ExecutionReceipt, err error) {
	ctx, done := s.obs.TrackOperation(ctx, "treasury.execute", attribute.Int64("stellarpay.proposal_id", int64(id)))
	defer func() { done(err) }()

	executorID, err = s.authorize(ctx, executorID)
	if err != nil {
		return nil, err
	}
	asset = contracts.Asset(strings.TrimSpace(string(asset)))

	var payees int
	_, err = s.withProposal(ctx, id, func(p *contracts.Proposal) error {
		if asset == "" {
			return fmt.Errorf("%w: asset is empty", ErrInvalidAsset)
		}
		if p.Executed {
			return ErrAlreadyExecuted
		}
		if p.ApprovalCount < s.required {
			return fmt.Errorf("%w: %d of %d", ErrQuorumNotMet, p.ApprovalCount, s.required)
		}
		if p.Asset != "" && p.Asset != asset {
			return fmt.Errorf("%w: started in %s, got %s", ErrAssetMismatch, p.Asset, asset)
		}

		total, err := p.Total()
		if err != nil {
			return fmt.Errorf("%w: proposal %d: %w", ErrInvalidAmount, id, err)
		}
		records, err := s.executor.disburse(ctx, p, asset)
		if err != nil {
			return err
		}

		completed := s.now()
		p.Executed = true
		p.Executor = executorID
		p.ExecutedAt = &completed
		p.UpdatedAt = completed
		if err := s.store.Put(ctx, p); err != nil {
			return fmt.Errorf("store execution: %w", err)
		}

		payees = len(p.Payees)
		receipt = &contracts.ExecutionReceipt{
			ProposalID:  id,
			Executor:    executorID,
			Custodian:   s.custodian,
			Asset:       asset,
			Transfers:   records,
			Total:       total,
			CompletedAt: completed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.archive(ctx, receipt)
	s.logger.InfoContext(ctx, "proposal executed",
		"proposal_id", id, "executor", string(executorID), "asset", string(asset), "payees", payees, "total", receipt.Total)
	s.emit(ctx, contracts.EventExecuted, id, executorID, payees)
	return receipt, nil
}

// GetProposal returns a copy of the proposal. No authorization.
func (s *Service) GetProposal(ctx context.Context, id uint32) (*contracts.Proposal, error) {
	return s.load(ctx, id)
}

// ListProposals returns every proposal ordered by id.
func (s *Service) ListProposals(ctx context.Context) ([]*contracts.Proposal, error) {
	ps, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	return ps, nil
}

// Count returns the number of proposals ever created.
func (s *Service) Count(ctx context.Context) (uint32, error) {
	return s.registry.count(ctx)
}

func (s *Service) authorize(ctx context.Context, claimed contracts.Identity) (contracts.Identity, error) {
	id, err := identity.Normalize(string(claimed))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}
	if err := s.gate.Authorize(ctx, id); err != nil {
		return "", fmt.Errorf("authorize %s: %w", id, err)
	}
	return id, nil
}

func (s *Service) load(ctx context.Context, id uint32) (*contracts.Proposal, error) {
	p, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load proposal %d: %w", id, err)
	}
	return p, nil
}

// withProposal runs fn on a fresh copy of the proposal while holding its lock.
func (s *Service) withProposal(ctx context.Context, id uint32, fn func(p *contracts.Proposal) error) (*contracts.Proposal, error) {
	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("proposal/%d", id))
	if err != nil {
		return nil, fmt.Errorf("lock proposal %d: %w", id, err)
	}
	defer unlock()

	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) emit(ctx context.Context, kind contracts.EventKind, id uint32, actor contracts.Identity, payees int) {
	ev := contracts.Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		ProposalID: id,
		Actor:      actor,
		PayeeCount: payees,
		At:         s.now(),
	}
	if err := s.emitter.Emit(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "event emission failed", "kind", string(kind), "proposal_id", id, "error", err)
	}
}

func (s *Service) archive(ctx context.Context, r *contracts.ExecutionReceipt) {
	if s.archiver == nil {
		return
	}
	hash, err := s.archiver.Archive(ctx, *r)
	if err != nil {
		s.logger.WarnContext(ctx, "receipt archival failed", "proposal_id", r.ProposalID, "error", err)
		return
	}
	r.ArchiveHash = hash
}
