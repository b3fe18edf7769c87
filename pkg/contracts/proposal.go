package contracts

import (
	"errors"
	"math"
	"time"
)

// Identity names an account that can propose, approve, execute or be paid.
// Identities are compared after normalization (see identity.Normalize).
type Identity string

// Asset identifies the asset a batch is disbursed in (e.g. a token contract address).
type Asset string

// ProposalStatus is the derived lifecycle state of a proposal.
type ProposalStatus string

// ProposalStatus constants.
const (
	ProposalOpen     ProposalStatus = "OPEN"
	ProposalExecuted ProposalStatus = "EXECUTED"
)

// Proposal is a durable payroll batch and its approval progress.
//
// Payees and Amounts are positionally paired and always the same length.
// Approvers is an insertion-ordered set; ApprovalCount == len(Approvers).
// Once Executed is true the record is never mutated again.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Proposal struct {
	ID            uint32     `json:"proposal_id"`
	Proposer      Identity   `json:"proposer"`
	Payees        []Identity `json:"payees"`
	Amounts       []int64    `json:"amounts"`
	ApprovalCount uint32     `json:"approvals"`
	Approvers     []Identity `json:"approvers"`
	Executed      bool       `json:"executed"`

	// Disbursed counts payees already paid by an interrupted execution.
	Disbursed uint32 `json:"disbursed"`
	// Asset is pinned by the first execution attempt.
	Asset    Asset    `json:"asset,omitempty"`
	Executor Identity `json:"executor,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// Status reports the lifecycle state.
func (p *Proposal) Status() ProposalStatus {
	if p.Executed {
		return ProposalExecuted
	}
	return ProposalOpen
}

// HasApprover reports whether id already voted. Linear scan; quorums are small.
func (p *Proposal) HasApprover(id Identity) bool {
	for _, a := range p.Approvers {
		if a == id {
			return true
		}
	}
	return false
}

// ErrAmountOverflow is returned when a sum of amounts does not fit in int64.
var ErrAmountOverflow = errors.New("amount sum overflows int64")

// SumAmounts adds non-negative amounts, failing instead of wrapping.
func SumAmounts(amounts []int64) (int64, error) {
	var sum int64
	for _, a := range amounts {
		if a < 0 {
			return 0, errors.New("negative amount")
		}
		if a > math.MaxInt64-sum {
			return 0, ErrAmountOverflow
		}
		sum += a
	}
	return sum, nil
}

// Total returns the sum of all amounts in the batch.
func (p *Proposal) Total() (int64, error) {
	return SumAmounts(p.Amounts)
}

// Remaining returns the sum of amounts not yet disbursed.
func (p *Proposal) Remaining() (int64, error) {
	if int(p.Disbursed) >= len(p.Amounts) {
		return 0, nil
	}
	return SumAmounts(p.Amounts[p.Disbursed:])
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	c := *p
	c.Payees = append([]Identity(nil), p.Payees...)
	c.Amounts = append([]int64(nil), p.Amounts...)
	c.Approvers = append([]Identity(nil), p.Approvers...)
	if p.ExecutedAt != nil {
		t := *p.ExecutedAt
		c.ExecutedAt = &t
	}
	return &c
}
