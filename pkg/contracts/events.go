package contracts

import "time"

// EventKind is the lifecycle notification published for observers.
type EventKind string

// EventKind constants.
const (
	EventCreated  EventKind = "created"
	EventApproved EventKind = "approved"
	EventExecuted EventKind = "executed"
)

// Event is a best-effort lifecycle notification. Delivery is never transactional
// with the state change it describes.
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	ProposalID uint32    `json:"proposal_id"`
	Actor      Identity  `json:"actor"`
	PayeeCount int       `json:"payee_count,omitempty"` // executed only
	At         time.Time `json:"at"`
}

// TransferRecord is one payee transfer issued by an execution.
type TransferRecord struct {
	Index  int      `json:"index"`
	Payee  Identity `json:"payee"`
	Amount int64    `json:"amount"`
	Key    string   `json:"idempotency_key"`
}

// ExecutionReceipt is the immutable record of a completed disbursement.
type ExecutionReceipt struct {
	ProposalID  uint32           `json:"proposal_id"`
	Executor    Identity         `json:"executor"`
	Custodian   Identity         `json:"custodian"`
	Asset       Asset            `json:"asset"`
	Transfers   []TransferRecord `json:"transfers"`
	Total       int64            `json:"total"`
	CompletedAt time.Time        `json:"completed_at"`
	// ArchiveHash is the content hash of the archived receipt, when archived.
	ArchiveHash string `json:"archive_hash,omitempty"`
}
