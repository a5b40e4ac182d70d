package loan

import (
	"errors"
)

// Reason is the stable, wire-safe code of a ledger failure.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonNotFound              Reason = "not_found"
	ReasonInvalidAmount         Reason = "invalid_amount"
	ReasonDurationTooShort      Reason = "duration_too_short"
	ReasonDurationTooLong       Reason = "duration_too_long"
	ReasonRateOutOfRange        Reason = "rate_out_of_range"
	ReasonEmptyPurpose          Reason = "empty_purpose"
	ReasonValueNotAccepted      Reason = "value_not_accepted"
	ReasonNotFunding            Reason = "not_funding"
	ReasonNotActive             Reason = "not_active"
	ReasonZeroValue             Reason = "zero_value"
	ReasonFullyFunded           Reason = "fully_funded"
	ReasonInsufficientRepayment Reason = "insufficient_repayment"
	ReasonNotBorrower           Reason = "not_borrower"
	ReasonHasFunds              Reason = "has_funds"
	ReasonNotDue                Reason = "not_due"
	ReasonInsufficientBalance   Reason = "insufficient_balance"
	ReasonTransferFailed        Reason = "transfer_failed"
	ReasonUnknown               Reason = "unknown"
)

var (
	ErrNotFound              = errors.New("loan not found")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrDurationTooShort      = errors.New("duration below minimum")
	ErrDurationTooLong       = errors.New("duration out of range")
	ErrRateOutOfRange        = errors.New("interest rate out of range")
	ErrEmptyPurpose          = errors.New("purpose is required")
	ErrValueNotAccepted      = errors.New("operation does not accept value")
	ErrNotFunding            = errors.New("loan is not in funding state")
	ErrNotActive             = errors.New("loan is not active")
	ErrZeroValue             = errors.New("attached value must be positive")
	ErrFullyFunded           = errors.New("loan already fully funded")
	ErrInsufficientRepayment = errors.New("attached value below total due")
	ErrNotBorrower           = errors.New("caller is not the borrower")
	ErrHasFunds              = errors.New("loan has received funds")
	ErrNotDue                = errors.New("loan is not past due date")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrTransferFailed        = errors.New("value transfer failed")
)

var reasons = []struct {
	reason Reason
	err    error
}{
	{ReasonNotFound, ErrNotFound},
	{ReasonInvalidAmount, ErrInvalidAmount},
	{ReasonDurationTooShort, ErrDurationTooShort},
	{ReasonDurationTooLong, ErrDurationTooLong},
	{ReasonRateOutOfRange, ErrRateOutOfRange},
	{ReasonEmptyPurpose, ErrEmptyPurpose},
	{ReasonValueNotAccepted, ErrValueNotAccepted},
	{ReasonNotFunding, ErrNotFunding},
	{ReasonNotActive, ErrNotActive},
	{ReasonZeroValue, ErrZeroValue},
	{ReasonFullyFunded, ErrFullyFunded},
	{ReasonInsufficientRepayment, ErrInsufficientRepayment},
	{ReasonNotBorrower, ErrNotBorrower},
	{ReasonHasFunds, ErrHasFunds},
	{ReasonNotDue, ErrNotDue},
	{ReasonInsufficientBalance, ErrInsufficientBalance},
	{ReasonTransferFailed, ErrTransferFailed},
}

// ReasonOf maps err to its wire code. Transfer failures win over the
// insufficient-balance cause they may wrap.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	if errors.Is(err, ErrTransferFailed) {
		return ReasonTransferFailed
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonUnknown
}

// ErrorForReason is the inverse of ReasonOf. Unknown codes yield nil.
func ErrorForReason(reason Reason) error {
	for _, r := range reasons {
		if r.reason == reason {
			return r.err
		}
	}
	return nil
}

// Category groups reasons by the remediation a client has to offer.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryCustody    Category = "custody"
	CategoryNotFound   Category = "not_found"
	CategoryUnknown    Category = "unknown"
)

func (r Reason) Category() Category {
	switch r {
	case ReasonNone, ReasonUnknown:
		return CategoryUnknown
	case ReasonNotFound:
		return CategoryNotFound
	case ReasonInsufficientBalance, ReasonTransferFailed:
		return CategoryCustody
	default:
		return CategoryValidation
	}
}
