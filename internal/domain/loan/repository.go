package loan

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type Repository interface {
	// NextID bumps the persisted id counter and returns the new value (first id is 1).
	NextID(ctx context.Context) (uint64, error)

	Create(ctx context.Context, l *Loan) error
	Save(ctx context.Context, l *Loan) error
	GetByID(ctx context.Context, id uint64) (*Loan, error)
	// GetByIDForUpdate locks the loan row until the surrounding tx ends.
	GetByIDForUpdate(ctx context.Context, id uint64) (*Loan, error)
	ListIDs(ctx context.Context) ([]uint64, error)

	// Contribution returns zero when the lender never funded the loan.
	Contribution(ctx context.Context, loanID uint64, lender common.Address) (Amount, error)
	// AppendLender inserts a first contribution at the end of the roster.
	AppendLender(ctx context.Context, loanID uint64, lender common.Address, amount Amount) error
	SetContribution(ctx context.Context, loanID uint64, lender common.Address, amount Amount) error
	// Roster lists contributions in roster order.
	Roster(ctx context.Context, loanID uint64) ([]Contribution, error)
}
