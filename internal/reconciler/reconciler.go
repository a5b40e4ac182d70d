package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/chain"
)

const idsKey = "ids"

func loanKey(id uint64) string { return "loan:" + strconv.FormatUint(id, 10) }

// Reconciler turns ledger reads into display views. It caches raw ledger
// records only, and never patches them locally: after a confirmed
// transaction the affected loan is read again.
type Reconciler struct {
	src   chain.Reader
	cache Cache
	units Units
	log   *slog.Logger
	nowFn func() time.Time
}

func New(src chain.Reader, cache Cache, units Units, log *slog.Logger) *Reconciler {
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{src: src, cache: cache, units: units, log: log.With("component", "reconciler"), nowFn: time.Now}
}

// SetNowFunc overrides the clock used for the overdue flag.
func (r *Reconciler) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.nowFn = now
}

func (r *Reconciler) Units() Units { return r.units }

// Cache failures fall back to the ledger; they never fail a read.
func (r *Reconciler) cached(ctx context.Context, key string, dst any) bool {
	ok, err := r.cache.Get(ctx, key, dst)
	if err != nil {
		r.log.Warn("cache read failed", "key", key, "err", err)
		return false
	}
	return ok
}

func (r *Reconciler) store(ctx context.Context, key string, v any) {
	if err := r.cache.Set(ctx, key, v); err != nil {
		r.log.Warn("cache write failed", "key", key, "err", err)
	}
}

func (r *Reconciler) ids(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	if r.cached(ctx, idsKey, &ids) {
		return ids, nil
	}
	ids, err := r.src.LoanIDs(ctx)
	if err != nil {
		return nil, err
	}
	r.store(ctx, idsKey, ids)
	return ids, nil
}

func (r *Reconciler) record(ctx context.Context, id uint64) (*record, error) {
	var rec record
	if r.cached(ctx, loanKey(id), &rec) {
		return &rec, nil
	}
	return r.fetch(ctx, id)
}

// fetch always reads the ledger. A failed roster read degrades to
// LendersKnown=false; a failed loan read is an error.
func (r *Reconciler) fetch(ctx context.Context, id uint64) (*record, error) {
	l, err := r.src.LoanDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := &record{Loan: *l}
	lenders, err := r.src.Lenders(ctx, id)
	switch {
	case err == nil:
		rec.Lenders, rec.LendersKnown = lenders, true
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		r.log.Warn("lender roster unavailable", "loan_id", id, "err", err)
	}
	r.store(ctx, loanKey(id), rec)
	return rec, nil
}

func (r *Reconciler) Loan(ctx context.Context, id uint64) (*LoanView, error) {
	rec, err := r.record(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.loanView(rec, r.nowFn()), nil
}

// Loans returns every loan in id order.
func (r *Reconciler) Loans(ctx context.Context) ([]*LoanView, error) {
	ids, err := r.ids(ctx)
	if err != nil {
		return nil, err
	}
	now := r.nowFn()
	out := make([]*LoanView, 0, len(ids))
	for _, id := range ids {
		rec, err := r.record(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r.loanView(rec, now))
	}
	return out, nil
}

func (r *Reconciler) MyLoans(ctx context.Context, account common.Address) ([]*LoanView, error) {
	all, err := r.Loans(ctx)
	if err != nil {
		return nil, err
	}
	out := []*LoanView{}
	for _, v := range all {
		if IsBorrower(account, v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// MyInvestments lists every loan the lender holds a positive contribution in.
func (r *Reconciler) MyInvestments(ctx context.Context, lender common.Address) ([]InvestmentView, error) {
	all, err := r.Loans(ctx)
	if err != nil {
		return nil, err
	}
	out := []InvestmentView{}
	for _, v := range all {
		if v.LendersKnown && !IsLender(lender, v) {
			continue
		}
		c, err := r.src.LenderInvestment(ctx, v.ID, lender)
		if err != nil {
			return nil, err
		}
		if c.IsZero() {
			continue
		}
		out = append(out, r.investmentView(v, lender, c))
	}
	return out, nil
}

func (r *Reconciler) Stats(ctx context.Context) (*PlatformStats, error) {
	all, err := r.Loans(ctx)
	if err != nil {
		return nil, err
	}
	return r.stats(all), nil
}

// AfterConfirmed drops the affected loan and re-reads it. Receipts that name
// no loan only drop the id list.
func (r *Reconciler) AfterConfirmed(ctx context.Context, rcpt *chain.Receipt) (*LoanView, error) {
	if rcpt == nil {
		return nil, errors.New("nil receipt")
	}
	if err := r.cache.Delete(ctx, idsKey, loanKey(rcpt.LoanID)); err != nil {
		r.log.Warn("cache delete failed", "loan_id", rcpt.LoanID, "err", err)
	}
	if rcpt.LoanID == 0 {
		return nil, nil
	}
	rec, err := r.fetch(ctx, rcpt.LoanID)
	if err != nil {
		return nil, err
	}
	r.log.Debug("loan refreshed", "loan_id", rcpt.LoanID, "status", rec.Loan.Status, "tx", rcpt.TxHash.Hex())
	return r.loanView(rec, r.nowFn()), nil
}

// Track waits for p and refreshes the loan it touched. Wait failures are
// returned unchanged.
func (r *Reconciler) Track(ctx context.Context, p *chain.PendingTx) (*LoanView, *chain.Receipt, error) {
	rcpt, err := p.Wait(ctx)
	if err != nil {
		return nil, nil, err
	}
	v, err := r.AfterConfirmed(ctx, rcpt)
	return v, rcpt, err
}

// Invalidate forgets every cached record.
func (r *Reconciler) Invalidate(ctx context.Context) error {
	return r.cache.Flush(ctx)
}

// Reload invalidates and then reads every loan again.
func (r *Reconciler) Reload(ctx context.Context) error {
	if err := r.Invalidate(ctx); err != nil {
		return err
	}
	ids, err := r.ids(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := r.fetch(ctx, id); err != nil {
			return err
		}
	}
	r.log.Info("views reloaded", "loans", len(ids))
	return nil
}
