package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
	"microloan/internal/usecase/ledger"
)

type Op string

const (
	OpCreate  Op = "create"
	OpFund    Op = "fund"
	OpRepay   Op = "repay"
	OpCancel  Op = "cancel"
	OpDefault Op = "default"
)

func (o Op) Valid() bool {
	switch o {
	case OpCreate, OpFund, OpRepay, OpCancel, OpDefault:
		return true
	}
	return false
}

// Call is one state-changing ledger operation. Create is set only for OpCreate.
type Call struct {
	Op     Op
	LoanID uint64
	Create *ledger.CreateLoanInput
	Value  loan.Amount
}

// GuardKey identifies the operation for duplicate-submission checks. Loan
// creation has no id yet, so it is keyed by the submitting account.
func (c Call) GuardKey(account common.Address) string {
	if c.Op == OpCreate {
		return fmt.Sprintf("create:%s", account.Hex())
	}
	return fmt.Sprintf("%d:%s", c.LoanID, c.Op)
}

func (c Call) validate() error {
	if !c.Op.Valid() {
		return fmt.Errorf("unknown operation %q", c.Op)
	}
	if c.Op == OpCreate && c.Create == nil {
		return fmt.Errorf("create call without loan parameters")
	}
	return nil
}

// Receipt is the backend-neutral outcome of a mined transaction.
type Receipt struct {
	TxHash      common.Hash   `json:"txHash"`
	BlockNumber uint64        `json:"blockNumber"`
	Succeeded   bool          `json:"succeeded"`
	LoanID      uint64        `json:"loanId"`
	Reason      loan.Reason   `json:"reason,omitempty"`
	Message     string        `json:"message,omitempty"`
	Events      []event.Event `json:"events"`
}

// Unsigned is a prepared transaction waiting for a wallet signature.
type Unsigned interface {
	SigningHash() common.Hash
}

// Reader is the read side of the ledger. Reads never need a wallet.
type Reader interface {
	LoanDetails(ctx context.Context, id uint64) (*loan.Loan, error)
	LoanIDs(ctx context.Context) ([]uint64, error)
	LenderInvestment(ctx context.Context, id uint64, lender common.Address) (loan.Amount, error)
	Lenders(ctx context.Context, id uint64) ([]common.Address, error)
	Balance(ctx context.Context, addr common.Address) (loan.Amount, error)
}

type Backend interface {
	Reader
	ChainID(ctx context.Context) (uint64, error)
	Prepare(ctx context.Context, from common.Address, call Call) (Unsigned, error)
	Send(ctx context.Context, tx Unsigned, sig []byte) (common.Hash, error)
	// Receipt returns ErrPending while the transaction is not mined.
	Receipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}
