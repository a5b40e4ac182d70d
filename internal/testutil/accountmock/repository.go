package accountmock

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	domain "microloan/internal/domain/account"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
type Repo struct {
	GetFn          func(ctx context.Context, addr common.Address) (*domain.Account, error)
	GetForUpdateFn func(ctx context.Context, addr common.Address) (*domain.Account, error)
	SaveFn         func(ctx context.Context, a *domain.Account) error
}

func (m *Repo) Get(ctx context.Context, addr common.Address) (*domain.Account, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, addr)
	}
	return nil, context.Canceled
}

func (m *Repo) GetForUpdate(ctx context.Context, addr common.Address) (*domain.Account, error) {
	if m.GetForUpdateFn != nil {
		return m.GetForUpdateFn(ctx, addr)
	}
	return nil, context.Canceled
}

func (m *Repo) Save(ctx context.Context, a *domain.Account) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, a)
	}
	return nil
}
