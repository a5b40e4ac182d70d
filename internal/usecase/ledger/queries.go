package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
	"microloan/internal/domain/uow"
)

func (u *Usecase) GetLoanDetails(ctx context.Context, id uint64) (*loan.Loan, error) {
	var out *loan.Loan
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.GetByID(ctx, id)
		out = l
		return err
	})
	return out, err
}

func (u *Usecase) GetAllLoanIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		ids, err = r.Loans.ListIDs(ctx)
		return err
	})
	if ids == nil {
		ids = []uint64{}
	}
	return ids, err
}

// GetLenderInvestment is zero for lenders that never funded the loan,
// including loans that do not exist.
func (u *Usecase) GetLenderInvestment(ctx context.Context, id uint64, lender common.Address) (loan.Amount, error) {
	var out loan.Amount
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, err = r.Loans.Contribution(ctx, id, lender)
		return err
	})
	return out, err
}

// GetLenders returns the roster in first-contribution order.
func (u *Usecase) GetLenders(ctx context.Context, id uint64) ([]common.Address, error) {
	out := []common.Address{}
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		if _, err := r.Loans.GetByID(ctx, id); err != nil {
			return err
		}
		roster, err := r.Loans.Roster(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range roster {
			out = append(out, c.Lender)
		}
		return nil
	})
	return out, err
}

func (u *Usecase) BalanceOf(ctx context.Context, addr common.Address) (loan.Amount, error) {
	var out loan.Amount
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		a, err := r.Accounts.Get(ctx, addr)
		if err != nil {
			return err
		}
		out = a.Balance
		return nil
	})
	return out, err
}

// Events pages the activity feed; afterSeq 0 starts at the beginning.
func (u *Usecase) Events(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	out := []event.Event{}
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		evs, err := r.Events.List(ctx, afterSeq, limit)
		if err != nil {
			return err
		}
		out = append(out, evs...)
		return nil
	})
	return out, err
}

func (u *Usecase) LoanEvents(ctx context.Context, id uint64) ([]event.Event, error) {
	out := []event.Event{}
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		evs, err := r.Events.ListByLoan(ctx, id)
		if err != nil {
			return err
		}
		out = append(out, evs...)
		return nil
	})
	return out, err
}

// Credit mints amount into addr. Only the node calls it, for genesis allocations.
func (u *Usecase) Credit(ctx context.Context, addr common.Address, amount loan.Amount) error {
	return u.uow.WithinTx(ctx, func(r uow.Repos) error {
		a, err := r.Accounts.GetForUpdate(ctx, addr)
		if err != nil {
			return err
		}
		sum, overflow := a.Balance.Add(amount)
		if overflow {
			return fmt.Errorf("credit %s to %s: %w", amount, addr.Hex(), loan.ErrInvalidAmount)
		}
		a.Balance = sum
		return r.Accounts.Save(ctx, a)
	})
}

// NonceOf is the nonce of the next signed transaction from addr.
func (u *Usecase) NonceOf(ctx context.Context, addr common.Address) (uint64, error) {
	var out uint64
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		a, err := r.Accounts.Get(ctx, addr)
		if err != nil {
			return err
		}
		out = a.Nonce
		return nil
	})
	return out, err
}

// ConsumeNonce records a transaction whose call failed and rolled back, so
// its nonce stays spent. It reports false when nonce is not the sender's
// current one, which includes a call that already consumed it.
func (u *Usecase) ConsumeNonce(ctx context.Context, addr common.Address, nonce uint64) (bool, error) {
	consumed := false
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		a, err := r.Accounts.GetForUpdate(ctx, addr)
		if err != nil {
			return err
		}
		if a.Nonce != nonce {
			return nil
		}
		a.Nonce++
		consumed = true
		return r.Accounts.Save(ctx, a)
	})
	return consumed, err
}

// SetRejectsIncoming flags addr as a recipient that refuses value.
func (u *Usecase) SetRejectsIncoming(ctx context.Context, addr common.Address, rejects bool) error {
	return u.uow.WithinTx(ctx, func(r uow.Repos) error {
		a, err := r.Accounts.GetForUpdate(ctx, addr)
		if err != nil {
			return err
		}
		a.RejectsIncoming = rejects
		return r.Accounts.Save(ctx, a)
	})
}
