package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
	"microloan/internal/domain/uow"
	"microloan/internal/infrastructure/metrics"
)

// ErrNonceMismatch means the transaction's nonce was already consumed or
// skips ahead of the sender's next one.
var ErrNonceMismatch = errors.New("transaction nonce does not match sender")

// maxDurationSeconds keeps fundedAt+duration inside int64 for any realistic clock.
const maxDurationSeconds = uint64(math.MaxInt64 / 2)

// Usecase is the loan state machine. Every mutation runs in one unit-of-work
// transaction; committed events are published to the emitter afterwards.
type Usecase struct {
	uow     uow.UnitOfWork
	params  Params
	emitter event.Emitter
	nowFn   func() int64
	metrics *metrics.LedgerMetrics
}

func NewUsecase(u uow.UnitOfWork, p Params) *Usecase {
	return &Usecase{
		uow:     u,
		params:  p,
		emitter: event.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		metrics: metrics.Ledger(),
	}
}

// SetEmitter configures where committed events go. nil resets to a no-op.
func (u *Usecase) SetEmitter(e event.Emitter) {
	if e == nil {
		u.emitter = event.NoopEmitter{}
		return
	}
	u.emitter = e
}

// SetNowFunc overrides the clock (unix seconds). nil restores wall time.
func (u *Usecase) SetNowFunc(now func() int64) {
	if now == nil {
		u.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	u.nowFn = now
}

func (u *Usecase) Params() Params { return u.params }

func (u *Usecase) now() int64 { return u.nowFn() }

func (u *Usecase) validateCreate(in CreateLoanInput) (uint64, error) {
	if in.Amount.IsZero() {
		return 0, loan.ErrInvalidAmount
	}
	if in.DurationDays > maxDurationSeconds/SecondsPerDay {
		return 0, fmt.Errorf("%d days: %w", in.DurationDays, loan.ErrDurationTooLong)
	}
	duration := in.DurationDays * SecondsPerDay
	if duration < u.params.MinDurationSeconds {
		return 0, fmt.Errorf("%ds < %ds: %w", duration, u.params.MinDurationSeconds, loan.ErrDurationTooShort)
	}
	if in.InterestRateBPS == 0 || in.InterestRateBPS > u.params.MaxRateBPS {
		return 0, fmt.Errorf("%d bps: %w", in.InterestRateBPS, loan.ErrRateOutOfRange)
	}
	if strings.TrimSpace(in.Purpose) == "" {
		return 0, loan.ErrEmptyPurpose
	}
	// the repayment amount must be representable from day one
	if _, err := TotalDue(in.Amount, in.InterestRateBPS); err != nil {
		return 0, err
	}
	return duration, nil
}

func (u *Usecase) CreateLoan(ctx context.Context, msg Msg, in CreateLoanInput) (*Result, error) {
	if !msg.Value.IsZero() {
		return nil, loan.ErrValueNotAccepted
	}
	duration, err := u.validateCreate(in)
	if err != nil {
		return nil, err
	}

	now := u.now()
	var res Result
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		if err := useNonce(ctx, r, msg); err != nil {
			return err
		}
		id, err := r.Loans.NextID(ctx)
		if err != nil {
			return err
		}
		l := &loan.Loan{
			ID:               id,
			Borrower:         msg.From,
			AmountRequested:  in.Amount,
			InterestRateBPS:  in.InterestRateBPS,
			DurationSeconds:  duration,
			Purpose:          in.Purpose,
			DetailsURI:       in.DetailsURI,
			CollateralToken:  in.CollateralToken,
			CollateralAmount: in.CollateralAmount,
			Status:           loan.StatusFunding,
			RequestedAt:      now,
		}
		if err := r.Loans.Create(ctx, l); err != nil {
			return err
		}
		j := newJournal(r.Events, now)
		if err := j.record(ctx, id, event.TypeLoanCreated, createdAttrs(l)); err != nil {
			return err
		}
		res = Result{LoanID: id, Events: j.events}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.publish(res.Events)
	return &res, nil
}

func (u *Usecase) FundLoan(ctx context.Context, msg Msg, id uint64) (*Result, error) {
	now := u.now()
	var res Result
	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *loan.Loan) error {
		if err := useNonce(ctx, r, msg); err != nil {
			return err
		}
		if l.Status != loan.StatusFunding {
			return fmt.Errorf("loan %d is %s: %w", id, l.Status, loan.ErrNotFunding)
		}
		if msg.Value.IsZero() {
			return loan.ErrZeroValue
		}
		if l.FullyFunded() {
			return loan.ErrFullyFunded
		}
		if err := u.collect(ctx, r, msg); err != nil {
			return err
		}

		effective := loan.MinAmount(msg.Value, l.Remaining())
		refund := msg.Value.Sub(effective)

		prior, err := r.Loans.Contribution(ctx, id, msg.From)
		if err != nil {
			return err
		}
		if prior.IsZero() {
			err = r.Loans.AppendLender(ctx, id, msg.From, effective)
		} else {
			sum, _ := prior.Add(effective) // bounded by amountRequested
			err = r.Loans.SetContribution(ctx, id, msg.From, sum)
		}
		if err != nil {
			return err
		}
		l.AmountFunded, _ = l.AmountFunded.Add(effective)

		if err := u.payout(ctx, r, msg.From, refund); err != nil {
			return err
		}

		j := newJournal(r.Events, now)
		if err := j.record(ctx, id, event.TypeLoanFunded, fundedAttrs(msg.From, effective, refund, l.AmountFunded)); err != nil {
			return err
		}

		if l.FullyFunded() {
			if err := transition(l, loan.StatusActive); err != nil {
				return err
			}
			l.FundedAt = now
			l.DueDate = now + int64(l.DurationSeconds)
			if err := u.payout(ctx, r, l.Borrower, l.AmountRequested); err != nil {
				return err
			}
			if err := j.record(ctx, id, event.TypeLoanActivated, activatedAttrs(l)); err != nil {
				return err
			}
		}
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		res = Result{LoanID: id, Events: j.events}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.publish(res.Events)
	return &res, nil
}

func (u *Usecase) RepayLoan(ctx context.Context, msg Msg, id uint64) (*Result, error) {
	now := u.now()
	var res Result
	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *loan.Loan) error {
		if err := useNonce(ctx, r, msg); err != nil {
			return err
		}
		if l.Status != loan.StatusActive {
			return fmt.Errorf("loan %d is %s: %w", id, l.Status, loan.ErrNotActive)
		}
		if msg.From != l.Borrower {
			return loan.ErrNotBorrower
		}
		totalDue, err := TotalDue(l.AmountRequested, l.InterestRateBPS)
		if err != nil {
			return err
		}
		if msg.Value.Cmp(totalDue) < 0 {
			return fmt.Errorf("sent %s, due %s: %w", msg.Value, totalDue, loan.ErrInsufficientRepayment)
		}
		if err := u.collect(ctx, r, msg); err != nil {
			return err
		}
		refund := msg.Value.Sub(totalDue)
		if err := u.payout(ctx, r, l.Borrower, refund); err != nil {
			return err
		}

		roster, err := r.Loans.Roster(ctx, id)
		if err != nil {
			return err
		}
		payouts, dust, err := Distribute(roster, totalDue, l.AmountRequested)
		if err != nil {
			return err
		}
		for _, p := range payouts {
			if err := u.payout(ctx, r, p.Lender, p.Amount); err != nil {
				return err
			}
		}

		if err := transition(l, loan.StatusRepaid); err != nil {
			return err
		}
		l.AmountRepaid = totalDue
		l.ClosedAt = now
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}

		j := newJournal(r.Events, now)
		if err := j.record(ctx, id, event.TypeLoanRepaid, repaidAttrs(l, totalDue, refund, dust, len(payouts))); err != nil {
			return err
		}
		for _, p := range payouts {
			if err := j.record(ctx, id, event.TypeLenderPaid, lenderPaidAttrs(p)); err != nil {
				return err
			}
		}
		res = Result{LoanID: id, Events: j.events}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.publish(res.Events)
	return &res, nil
}

func (u *Usecase) CancelLoan(ctx context.Context, msg Msg, id uint64) (*Result, error) {
	if !msg.Value.IsZero() {
		return nil, loan.ErrValueNotAccepted
	}
	return u.close(ctx, msg, id, func(l *loan.Loan, now int64) (loan.Status, event.Type, error) {
		if l.Status != loan.StatusFunding {
			return "", "", fmt.Errorf("loan %d is %s: %w", id, l.Status, loan.ErrNotFunding)
		}
		if !l.AmountFunded.IsZero() {
			return "", "", loan.ErrHasFunds
		}
		if msg.From != l.Borrower {
			return "", "", loan.ErrNotBorrower
		}
		return loan.StatusCancelled, event.TypeLoanCancelled, nil
	})
}

// MarkDefaulted is callable by anyone once the due date has strictly passed.
func (u *Usecase) MarkDefaulted(ctx context.Context, msg Msg, id uint64) (*Result, error) {
	if !msg.Value.IsZero() {
		return nil, loan.ErrValueNotAccepted
	}
	return u.close(ctx, msg, id, func(l *loan.Loan, now int64) (loan.Status, event.Type, error) {
		if l.Status != loan.StatusActive {
			return "", "", fmt.Errorf("loan %d is %s: %w", id, l.Status, loan.ErrNotActive)
		}
		if now <= l.DueDate {
			return "", "", fmt.Errorf("now %d, due %d: %w", now, l.DueDate, loan.ErrNotDue)
		}
		return loan.StatusDefaulted, event.TypeLoanDefaulted, nil
	})
}

// close runs a value-free terminal transition decided by check.
func (u *Usecase) close(ctx context.Context, msg Msg, id uint64, check func(l *loan.Loan, now int64) (loan.Status, event.Type, error)) (*Result, error) {
	now := u.now()
	var res Result
	err := u.uow.WithinLoanTx(ctx, id, func(r uow.Repos, l *loan.Loan) error {
		if err := useNonce(ctx, r, msg); err != nil {
			return err
		}
		next, typ, err := check(l, now)
		if err != nil {
			return err
		}
		if err := transition(l, next); err != nil {
			return err
		}
		l.ClosedAt = now
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		j := newJournal(r.Events, now)
		if err := j.record(ctx, id, typ, closedAttrs(msg.From)); err != nil {
			return err
		}
		res = Result{LoanID: id, Events: j.events}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.publish(res.Events)
	return &res, nil
}

// useNonce consumes msg.Nonce inside the caller's transaction, so a
// committed call can never be executed again.
func useNonce(ctx context.Context, r uow.Repos, msg Msg) error {
	if msg.Nonce == nil {
		return nil
	}
	a, err := r.Accounts.GetForUpdate(ctx, msg.From)
	if err != nil {
		return err
	}
	if a.Nonce != *msg.Nonce {
		return fmt.Errorf("%s: got %d, want %d: %w", msg.From.Hex(), *msg.Nonce, a.Nonce, ErrNonceMismatch)
	}
	a.Nonce++
	return r.Accounts.Save(ctx, a)
}

func transition(l *loan.Loan, next loan.Status) error {
	if !l.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal transition %s -> %s for loan %d", l.Status, next, l.ID)
	}
	l.Status = next
	return nil
}

func (u *Usecase) publish(events []event.Event) {
	for _, e := range events {
		u.observe(e)
		u.emitter.Emit(e)
	}
}

func (u *Usecase) observe(e event.Event) {
	switch e.Type {
	case event.TypeLoanCreated:
		u.metrics.ObserveLoanCreated()
	case event.TypeLoanFunded:
		if a, err := loan.ParseAmount(e.Attr(AttrAmount)); err == nil {
			u.metrics.ObserveFunded(a.Big())
		}
	case event.TypeLoanActivated:
		u.metrics.ObserveTransition(string(loan.StatusActive))
	case event.TypeLoanRepaid:
		u.metrics.ObserveTransition(string(loan.StatusRepaid))
		if d, err := loan.ParseAmount(e.Attr(AttrDust)); err == nil {
			u.metrics.ObserveRoundingDust(d.Big())
		}
	case event.TypeLoanDefaulted:
		u.metrics.ObserveTransition(string(loan.StatusDefaulted))
	case event.TypeLoanCancelled:
		u.metrics.ObserveTransition(string(loan.StatusCancelled))
	}
}
