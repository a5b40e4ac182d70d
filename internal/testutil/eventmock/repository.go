package eventmock

import (
	"context"

	domain "microloan/internal/domain/event"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
type Repo struct {
	AppendFn     func(ctx context.Context, e *domain.Event) error
	ListFn       func(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error)
	ListByLoanFn func(ctx context.Context, loanID uint64) ([]domain.Event, error)
}

func (m *Repo) Append(ctx context.Context, e *domain.Event) error {
	if m.AppendFn != nil {
		return m.AppendFn(ctx, e)
	}
	return nil
}

func (m *Repo) List(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, afterSeq, limit)
	}
	return nil, context.Canceled
}

func (m *Repo) ListByLoan(ctx context.Context, loanID uint64) ([]domain.Event, error) {
	if m.ListByLoanFn != nil {
		return m.ListByLoanFn(ctx, loanID)
	}
	return nil, context.Canceled
}
