package mysql

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	accountDomain "microloan/internal/domain/account"
)

type AccountRepository struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) *AccountRepository { return &AccountRepository{db: db} }

func (r *AccountRepository) Get(ctx context.Context, addr common.Address) (*accountDomain.Account, error) {
	return r.get(r.db.WithContext(ctx), addr)
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, addr common.Address) (*accountDomain.Account, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), addr)
}

func (r *AccountRepository) get(q *gorm.DB, addr common.Address) (*accountDomain.Account, error) {
	var out accountDomain.Account
	err := q.Where("address = ?", addr).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &accountDomain.Account{Address: addr}, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *AccountRepository) Save(ctx context.Context, a *accountDomain.Account) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(a).Error
}
