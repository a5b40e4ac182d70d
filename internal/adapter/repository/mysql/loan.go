package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	loanDomain "microloan/internal/domain/loan"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) NextID(ctx context.Context) (uint64, error) {
	var c loanDomain.Counter
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", loanDomain.LoanIDCounter).
		First(&c).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c = loanDomain.Counter{Name: loanDomain.LoanIDCounter, Value: 1}
		if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
			return 0, err
		}
		return c.Value, nil
	case err != nil:
		return 0, err
	}
	c.Value++
	if err := r.db.WithContext(ctx).Model(&c).Update("value", c.Value).Error; err != nil {
		return 0, err
	}
	return c.Value, nil
}

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *LoanRepository) GetByID(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *LoanRepository) get(q *gorm.DB, id uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	err := q.Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("loan %d: %w", id, loanDomain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *LoanRepository) ListIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&loanDomain.Loan{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *LoanRepository) Contribution(ctx context.Context, loanID uint64, lender common.Address) (loanDomain.Amount, error) {
	var c loanDomain.Contribution
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND lender = ?", loanID, lender).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return loanDomain.Amount{}, nil
	}
	if err != nil {
		return loanDomain.Amount{}, err
	}
	return c.Amount, nil
}

func (r *LoanRepository) AppendLender(ctx context.Context, loanID uint64, lender common.Address, amount loanDomain.Amount) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&loanDomain.Contribution{}).Where("loan_id = ?", loanID).Count(&n).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&loanDomain.Contribution{
		LoanID: loanID,
		Lender: lender,
		Amount: amount,
		Seq:    uint32(n),
	}).Error
}

func (r *LoanRepository) SetContribution(ctx context.Context, loanID uint64, lender common.Address, amount loanDomain.Amount) error {
	res := r.db.WithContext(ctx).
		Model(&loanDomain.Contribution{}).
		Where("loan_id = ? AND lender = ?", loanID, lender).
		Update("amount", amount)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("contribution of %s to loan %d not on roster", lender.Hex(), loanID)
	}
	return nil
}

func (r *LoanRepository) Roster(ctx context.Context, loanID uint64) ([]loanDomain.Contribution, error) {
	var out []loanDomain.Contribution
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("seq ASC").Find(&out).Error
	return out, err
}
