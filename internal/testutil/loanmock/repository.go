package loanmock

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	domain "microloan/internal/domain/loan"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Unset lookups return context.Canceled; unset writes are no-ops.
type Repo struct {
	NextIDFn           func(ctx context.Context) (uint64, error)
	CreateFn           func(ctx context.Context, l *domain.Loan) error
	SaveFn             func(ctx context.Context, l *domain.Loan) error
	GetByIDFn          func(ctx context.Context, id uint64) (*domain.Loan, error)
	GetByIDForUpdateFn func(ctx context.Context, id uint64) (*domain.Loan, error)
	ListIDsFn          func(ctx context.Context) ([]uint64, error)
	ContributionFn     func(ctx context.Context, loanID uint64, lender common.Address) (domain.Amount, error)
	AppendLenderFn     func(ctx context.Context, loanID uint64, lender common.Address, amount domain.Amount) error
	SetContributionFn  func(ctx context.Context, loanID uint64, lender common.Address, amount domain.Amount) error
	RosterFn           func(ctx context.Context, loanID uint64) ([]domain.Contribution, error)
}

func (m *Repo) NextID(ctx context.Context) (uint64, error) {
	if m.NextIDFn != nil {
		return m.NextIDFn(ctx)
	}
	return 0, context.Canceled
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetByID(ctx context.Context, id uint64) (*domain.Loan, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByIDForUpdate(ctx context.Context, id uint64) (*domain.Loan, error) {
	if m.GetByIDForUpdateFn != nil {
		return m.GetByIDForUpdateFn(ctx, id)
	}
	return nil, context.Canceled
}

func (m *Repo) ListIDs(ctx context.Context) ([]uint64, error) {
	if m.ListIDsFn != nil {
		return m.ListIDsFn(ctx)
	}
	return nil, context.Canceled
}

func (m *Repo) Contribution(ctx context.Context, loanID uint64, lender common.Address) (domain.Amount, error) {
	if m.ContributionFn != nil {
		return m.ContributionFn(ctx, loanID, lender)
	}
	return domain.Amount{}, context.Canceled
}

func (m *Repo) AppendLender(ctx context.Context, loanID uint64, lender common.Address, amount domain.Amount) error {
	if m.AppendLenderFn != nil {
		return m.AppendLenderFn(ctx, loanID, lender, amount)
	}
	return nil
}

func (m *Repo) SetContribution(ctx context.Context, loanID uint64, lender common.Address, amount domain.Amount) error {
	if m.SetContributionFn != nil {
		return m.SetContributionFn(ctx, loanID, lender, amount)
	}
	return nil
}

func (m *Repo) Roster(ctx context.Context, loanID uint64) ([]domain.Contribution, error) {
	if m.RosterFn != nil {
		return m.RosterFn(ctx, loanID)
	}
	return nil, context.Canceled
}
