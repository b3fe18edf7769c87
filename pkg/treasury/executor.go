package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
	"github.com/yashannadate/stellar-pay/pkg/observability"
	"github.com/yashannadate/stellar-pay/pkg/store"
	"github.com/yashannadate/stellar-pay/pkg/transfer"
)

// IdempotencyKey is the transfer key for payee index of proposal id.
// It is stable across attempts so a resumed execution never pays twice.
func IdempotencyKey(id uint32, index int) string {
	return fmt.Sprintf("stellar-pay/%d/%d", id, index)
}

// executor pays each payee of an approved proposal from the custodial account.
type executor struct {
	store     store.Store
	transfers transfer.Transferer
	custodian contracts.Identity
	obs       *observability.Provider
	now       func() time.Time
	logger    *slog.Logger
}

// disburse issues the outstanding transfers in payee order, persisting
// p.Disbursed after each one. It returns the full transfer list of the batch,
// including transfers made by earlier attempts. The caller holds p's lock and
// marks p executed on success.
func (e *executor) disburse(ctx context.Context, p *contracts.Proposal, asset contracts.Asset) ([]contracts.TransferRecord, error) {
	if err := e.preflight(ctx, p, asset); err != nil {
		return nil, err
	}
	p.Asset = asset

	records := make([]contracts.TransferRecord, len(p.Payees))
	for i := range p.Payees {
		records[i] = contracts.TransferRecord{
			Index:  i,
			Payee:  p.Payees[i],
			Amount: p.Amounts[i],
			Key:    IdempotencyKey(p.ID, i),
		}
	}

	for i := int(p.Disbursed); i < len(p.Payees); i++ {
		rec := records[i]
		err := e.transfers.Transfer(ctx, transfer.Transfer{
			From:   e.custodian,
			To:     rec.Payee,
			Asset:  asset,
			Amount: rec.Amount,
			Key:    rec.Key,
		})
		if err != nil {
			e.logger.WarnContext(ctx, "transfer failed",
				"proposal_id", p.ID, "index", i, "payee", string(rec.Payee), "error", err)
			return nil, fmt.Errorf("%w: payee %d (%s): %w", ErrTransferFailed, i, rec.Payee, err)
		}
		e.obs.RecordDisbursement(ctx, string(asset), rec.Amount)

		p.Disbursed = uint32(i + 1)
		p.UpdatedAt = e.now()
		if i+1 < len(p.Payees) {
			if err := e.store.Put(ctx, p); err != nil {
				return nil, fmt.Errorf("record progress of proposal %d: %w", p.ID, err)
			}
		}
	}
	return records, nil
}

// preflight refuses to start when the custodial balance cannot cover what is
// left to pay. Backends that cannot report balances skip the check.
func (e *executor) preflight(ctx context.Context, p *contracts.Proposal, asset contracts.Asset) error {
	need, err := p.Remaining()
	if err != nil {
		return fmt.Errorf("%w: proposal %d: %w", ErrInvalidAmount, p.ID, err)
	}
	br, ok := e.transfers.(transfer.BalanceReader)
	if !ok {
		return nil
	}
	balance, err := br.Balance(ctx, e.custodian, asset)
	if errors.Is(err, transfer.ErrBalanceUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read custodial balance: %w", ErrTransferFailed, err)
	}
	if balance < need {
		return fmt.Errorf("%w: %s holds %d %s, batch needs %d", ErrInsufficientFunds, e.custodian, balance, asset, need)
	}
	return nil
}
