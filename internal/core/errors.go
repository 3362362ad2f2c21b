package core

import (
	"errors"
	"fmt"
)

// Validation errors: reported before any state mutation.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrSameAccount             = errors.New("source and destination are the same account")
	ErrInvalidFeeConfiguration = errors.New("invalid fee configuration")
	ErrMissingCollectionAmount = errors.New("missing collection amount")
	ErrInvalidCircle           = errors.New("invalid savings circle")
	ErrInvalidAccount          = errors.New("invalid account")
	ErrInvalidSettlementMode   = errors.New("invalid settlement mode")
	ErrPoolAccount             = errors.New("pooled-circle accounts move funds only through their circle")
)

// Policy rejections: expected outcomes, not exceptional.
var (
	ErrAccountInactive          = errors.New("account is not active")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrTransactionLimitExceeded = errors.New("per-transaction limit exceeded")
	ErrDailyLimitExceeded       = errors.New("daily limit exceeded")
	ErrMonthlyLimitExceeded     = errors.New("monthly limit exceeded")
	ErrTurnNotAssigned          = errors.New("turn not assigned")
	ErrTurnNotYetDue            = errors.New("turn not yet due")
	ErrAlreadyWithdrawn         = errors.New("payout already withdrawn")
	ErrCircleNotPayable         = errors.New("circle does not accept this operation")
	ErrTurnAlreadyAssigned      = errors.New("turn already assigned")
)

// Persistence errors surfaced through the ledger ports.
var (
	ErrConflict        = errors.New("conflict: record changed concurrently")
	ErrAccountNotFound = errors.New("account not found")
	ErrCircleNotFound  = errors.New("savings circle not found")
)

// TurnNotYetDueError reports how many more paid rounds are needed before the
// caller's payout becomes available.
type TurnNotYetDueError struct {
	RoundsRemaining int
}

func (e *TurnNotYetDueError) Error() string {
	return fmt.Sprintf("%s: %d round(s) remaining", ErrTurnNotYetDue, e.RoundsRemaining)
}

func (e *TurnNotYetDueError) Is(target error) bool {
	return target == ErrTurnNotYetDue
}

// ErrorClass groups errors by how a caller is expected to react.
type ErrorClass string

const (
	ClassValidation ErrorClass = "validation"
	ClassPolicy     ErrorClass = "policy"
	ClassConflict   ErrorClass = "conflict"
	ClassNotFound   ErrorClass = "not_found"
	ClassInternal   ErrorClass = "internal"
)

var errorClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrInvalidAmount, ClassValidation},
	{ErrSameAccount, ClassValidation},
	{ErrInvalidFeeConfiguration, ClassValidation},
	{ErrMissingCollectionAmount, ClassValidation},
	{ErrInvalidCircle, ClassValidation},
	{ErrInvalidAccount, ClassValidation},
	{ErrInvalidSettlementMode, ClassValidation},
	{ErrPoolAccount, ClassValidation},
	{ErrAccountInactive, ClassPolicy},
	{ErrInsufficientBalance, ClassPolicy},
	{ErrTransactionLimitExceeded, ClassPolicy},
	{ErrDailyLimitExceeded, ClassPolicy},
	{ErrMonthlyLimitExceeded, ClassPolicy},
	{ErrTurnNotAssigned, ClassPolicy},
	{ErrTurnNotYetDue, ClassPolicy},
	{ErrAlreadyWithdrawn, ClassPolicy},
	{ErrCircleNotPayable, ClassPolicy},
	{ErrTurnAlreadyAssigned, ClassPolicy},
	{ErrConflict, ClassConflict},
	{ErrAccountNotFound, ClassNotFound},
	{ErrCircleNotFound, ClassNotFound},
}

// Classify maps an error returned by the engine or a ledger port to its class.
// Unknown errors are internal.
func Classify(err error) ErrorClass {
	for _, ec := range errorClasses {
		if errors.Is(err, ec.err) {
			return ec.class
		}
	}
	return ClassInternal
}

// Code returns a stable machine-readable code for a known error, or
// "internal_error".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrSameAccount):
		return "same_account"
	case errors.Is(err, ErrInvalidFeeConfiguration):
		return "invalid_fee_configuration"
	case errors.Is(err, ErrMissingCollectionAmount):
		return "missing_collection_amount"
	case errors.Is(err, ErrInvalidCircle):
		return "invalid_circle"
	case errors.Is(err, ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, ErrInvalidSettlementMode):
		return "invalid_settlement_mode"
	case errors.Is(err, ErrPoolAccount):
		return "pool_account"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrTransactionLimitExceeded):
		return "transaction_limit_exceeded"
	case errors.Is(err, ErrDailyLimitExceeded):
		return "daily_limit_exceeded"
	case errors.Is(err, ErrMonthlyLimitExceeded):
		return "monthly_limit_exceeded"
	case errors.Is(err, ErrTurnNotAssigned):
		return "turn_not_assigned"
	case errors.Is(err, ErrTurnNotYetDue):
		return "turn_not_yet_due"
	case errors.Is(err, ErrAlreadyWithdrawn):
		return "already_withdrawn"
	case errors.Is(err, ErrCircleNotPayable):
		return "circle_not_payable"
	case errors.Is(err, ErrTurnAlreadyAssigned):
		return "turn_already_assigned"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrCircleNotFound):
		return "circle_not_found"
	default:
		return "internal_error"
	}
}
