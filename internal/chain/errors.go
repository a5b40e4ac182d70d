package chain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/domain/loan"
)

var (
	ErrNoWallet          = errors.New("no wallet available")
	ErrUserRejected      = errors.New("request rejected in wallet")
	ErrNotConnected      = errors.New("wallet not connected")
	ErrSessionChanged    = errors.New("wallet account or network changed")
	ErrOperationInFlight = errors.New("operation already in flight")
	// ErrPending is returned by Backend.Receipt until the transaction is mined.
	ErrPending = errors.New("transaction pending")
)

type WrongNetworkError struct {
	Expected uint64
	Actual   uint64
}

func (e *WrongNetworkError) Error() string {
	return fmt.Sprintf("wallet is on chain %d, expected %d", e.Actual, e.Expected)
}

// TransactionRevertedError is a mined transaction the ledger rejected.
// errors.Is matches it against the ledger sentinel of its reason.
type TransactionRevertedError struct {
	TxHash  common.Hash
	Reason  loan.Reason
	Message string
}

func (e *TransactionRevertedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("transaction %s reverted: %s (%s)", e.TxHash.Hex(), e.Reason, e.Message)
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash.Hex(), e.Reason)
}

func (e *TransactionRevertedError) Unwrap() error { return loan.ErrorForReason(e.Reason) }

type TransactionTimeoutError struct {
	TxHash common.Hash
	After  time.Duration
}

func (e *TransactionTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed after %s", e.TxHash.Hex(), e.After)
}
