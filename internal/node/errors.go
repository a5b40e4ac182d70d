package node

import "errors"

var (
	ErrWrongChain       = errors.New("transaction chain id does not match node")
	ErrInvalidSignature = errors.New("invalid transaction signature")
	ErrUnknownMethod    = errors.New("unknown ledger method")
	ErrNonceTooLow      = errors.New("nonce too low")
	ErrNonceTooHigh     = errors.New("nonce too high")
	ErrKnownTx          = errors.New("transaction already known")
	ErrNegativeValue    = errors.New("negative transaction value")
)

// Reason codes for submission errors, sent as RPC error data.
func SubmitReason(err error) string {
	switch {
	case errors.Is(err, ErrWrongChain):
		return "wrong_chain"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrUnknownMethod):
		return "unknown_method"
	case errors.Is(err, ErrNonceTooLow):
		return "nonce_too_low"
	case errors.Is(err, ErrNonceTooHigh):
		return "nonce_too_high"
	case errors.Is(err, ErrKnownTx):
		return "known_transaction"
	case errors.Is(err, ErrNegativeValue):
		return "invalid_amount"
	}
	return "unknown"
}
