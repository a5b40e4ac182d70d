package uow

import (
	"context"

	"microloan/internal/domain/account"
	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
)

// Repos bundles repositories bound to one transaction.
type Repos struct {
	Loans    loan.Repository
	Accounts account.Repository
	Events   event.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock loan first, then pass it in
	WithinLoanTx(ctx context.Context, loanID uint64, fn func(r Repos, l *loan.Loan) error) error
}
