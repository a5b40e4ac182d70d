package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"microloan/internal/domain/loan"
	"microloan/internal/domain/uow"
)

// TotalDue is principal plus principal*bps/10000, truncated.
func TotalDue(principal loan.Amount, bps uint32) (loan.Amount, error) {
	interest, overflow := new(uint256.Int).MulDivOverflow(
		principal.Uint256(), uint256.NewInt(uint64(bps)), uint256.NewInt(BPSDenominator))
	if overflow {
		return loan.Amount{}, fmt.Errorf("interest on %s: %w", principal, loan.ErrInvalidAmount)
	}
	total, overflow := principal.Add(loan.AmountFromUint256(interest))
	if overflow {
		return loan.Amount{}, fmt.Errorf("total due on %s: %w", principal, loan.ErrInvalidAmount)
	}
	return total, nil
}

// Share is contribution*totalDue/requested with a 512-bit intermediate,
// truncated.
func Share(contribution, totalDue, requested loan.Amount) (loan.Amount, error) {
	if requested.IsZero() {
		return loan.Amount{}, fmt.Errorf("share of empty loan: %w", loan.ErrInvalidAmount)
	}
	s, overflow := new(uint256.Int).MulDivOverflow(contribution.Uint256(), totalDue.Uint256(), requested.Uint256())
	if overflow {
		return loan.Amount{}, fmt.Errorf("share %s*%s/%s: %w", contribution, totalDue, requested, loan.ErrInvalidAmount)
	}
	return loan.AmountFromUint256(s), nil
}

// Payout is one lender's slice of a repayment.
type Payout struct {
	Lender       common.Address
	Contribution loan.Amount
	Amount       loan.Amount
}

// Distribute splits totalDue across the roster. The remainder left by
// truncation is returned as dust; it never exceeds len(roster)-1.
func Distribute(roster []loan.Contribution, totalDue, requested loan.Amount) ([]Payout, loan.Amount, error) {
	out := make([]Payout, 0, len(roster))
	var paid loan.Amount
	for _, c := range roster {
		share, err := Share(c.Amount, totalDue, requested)
		if err != nil {
			return nil, loan.Amount{}, err
		}
		out = append(out, Payout{Lender: c.Lender, Contribution: c.Amount, Amount: share})
		paid, _ = paid.Add(share)
	}
	if paid.Cmp(totalDue) > 0 {
		return nil, loan.Amount{}, fmt.Errorf("shares %s exceed total due %s", paid, totalDue)
	}
	return out, totalDue.Sub(paid), nil
}

// transfer moves amount between two accounts inside the caller's transaction.
func transfer(ctx context.Context, r uow.Repos, from, to common.Address, amount loan.Amount) error {
	if amount.IsZero() {
		return nil
	}
	src, err := r.Accounts.GetForUpdate(ctx, from)
	if err != nil {
		return err
	}
	if src.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%s holds %s, needs %s: %w", from.Hex(), src.Balance, amount, loan.ErrInsufficientBalance)
	}
	if from == to {
		if src.RejectsIncoming {
			return fmt.Errorf("%w: %s refuses value", loan.ErrTransferFailed, to.Hex())
		}
		return nil
	}
	dst, err := r.Accounts.GetForUpdate(ctx, to)
	if err != nil {
		return err
	}
	if dst.RejectsIncoming {
		return fmt.Errorf("%w: %s refuses value", loan.ErrTransferFailed, to.Hex())
	}
	credited, overflow := dst.Balance.Add(amount)
	if overflow {
		return fmt.Errorf("%w: balance of %s overflows", loan.ErrTransferFailed, to.Hex())
	}
	src.Balance = src.Balance.Sub(amount)
	dst.Balance = credited
	if err := r.Accounts.Save(ctx, src); err != nil {
		return err
	}
	return r.Accounts.Save(ctx, dst)
}

// collect escrows the attached value of msg.
func (u *Usecase) collect(ctx context.Context, r uow.Repos, msg Msg) error {
	return transfer(ctx, r, msg.From, u.params.Custody, msg.Value)
}

// payout sends value out of custody. A custody shortfall surfaces as a failed
// transfer so the surrounding call reverts as a whole.
func (u *Usecase) payout(ctx context.Context, r uow.Repos, to common.Address, amount loan.Amount) error {
	err := transfer(ctx, r, u.params.Custody, to, amount)
	if errors.Is(err, loan.ErrInsufficientBalance) {
		return fmt.Errorf("%w: pay %s to %s: %w", loan.ErrTransferFailed, amount, to.Hex(), err)
	}
	return err
}
