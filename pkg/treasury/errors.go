package treasury

import "errors"

// Code is the stable numeric code of a treasury error. Codes 1-6 are the
// on-chain contract's error numbers and must not change.
type Code uint32

const (
	CodeNotFound          Code = 1
	CodeAlreadyExecuted   Code = 2
	CodeQuorumNotMet      Code = 3
	CodeLengthMismatch    Code = 4
	CodeEmptyBatch        Code = 5
	CodeDuplicateApproval Code = 6
	CodeInvalidAmount     Code = 7
	CodeInvalidIdentity   Code = 8
	CodeBatchTooLarge     Code = 9
	CodeInsufficientFunds Code = 10
	CodeTransferFailed    Code = 11
	CodeAssetMismatch     Code = 12
	CodeInvalidAsset      Code = 13
)

// Error is a treasury sentinel. Compare with errors.Is; recover the code of a
// wrapped error with CodeOf.
type Error struct {
	Code Code
	Name string
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	ErrNotFound          = &Error{CodeNotFound, "NotFound", "proposal not found"}
	ErrAlreadyExecuted   = &Error{CodeAlreadyExecuted, "AlreadyExecuted", "proposal already executed"}
	ErrQuorumNotMet      = &Error{CodeQuorumNotMet, "QuorumNotMet", "not enough approvals"}
	ErrLengthMismatch    = &Error{CodeLengthMismatch, "LengthMismatch", "payees and amounts differ in length"}
	ErrEmptyBatch        = &Error{CodeEmptyBatch, "EmptyBatch", "payroll batch is empty"}
	ErrDuplicateApproval = &Error{CodeDuplicateApproval, "DuplicateApproval", "approver already approved"}
	ErrInvalidAmount     = &Error{CodeInvalidAmount, "InvalidAmount", "amount rejected"}
	ErrInvalidIdentity   = &Error{CodeInvalidIdentity, "InvalidIdentity", "invalid identity"}
	ErrBatchTooLarge     = &Error{CodeBatchTooLarge, "BatchTooLarge", "payroll batch too large"}
	ErrInsufficientFunds = &Error{CodeInsufficientFunds, "InsufficientFunds", "custodial balance too low"}
	ErrTransferFailed    = &Error{CodeTransferFailed, "TransferFailed", "transfer failed"}
	ErrAssetMismatch     = &Error{CodeAssetMismatch, "AssetMismatch", "asset differs from the interrupted execution"}
	ErrInvalidAsset      = &Error{CodeInvalidAsset, "InvalidAsset", "invalid asset"}
)

// CodeOf returns the first treasury Error in err's chain.
func CodeOf(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
