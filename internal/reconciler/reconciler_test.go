package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"microloan/internal/chain"
	"microloan/internal/domain/loan"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

type fakeSource struct {
	mu          sync.Mutex
	loans       map[uint64]loan.Loan
	rosters     map[uint64][]common.Address
	contrib     map[uint64]map[common.Address]loan.Amount
	lendersErr  error
	detailCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		loans:   make(map[uint64]loan.Loan),
		rosters: make(map[uint64][]common.Address),
		contrib: make(map[uint64]map[common.Address]loan.Amount),
	}
}

func (f *fakeSource) put(l loan.Loan, contributions map[common.Address]uint64, order ...common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loans[l.ID] = l
	f.rosters[l.ID] = order
	f.contrib[l.ID] = make(map[common.Address]loan.Amount)
	for a, v := range contributions {
		f.contrib[l.ID][a] = loan.NewAmount(v)
	}
}

func (f *fakeSource) LoanDetails(_ context.Context, id uint64) (*loan.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	l, ok := f.loans[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	return &l, nil
}

func (f *fakeSource) LoanIDs(context.Context) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uint64, 0, len(f.loans))
	for id := uint64(1); len(ids) < len(f.loans); id++ {
		if _, ok := f.loans[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeSource) LenderInvestment(_ context.Context, id uint64, lender common.Address) (loan.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contrib[id][lender], nil
}

func (f *fakeSource) Lenders(_ context.Context, id uint64) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lendersErr != nil {
		return nil, f.lendersErr
	}
	return f.rosters[id], nil
}

func (f *fakeSource) Balance(context.Context, common.Address) (loan.Amount, error) {
	return loan.Amount{}, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailCalls
}

func baseLoan(id uint64, borrower common.Address, status loan.Status) loan.Loan {
	return loan.Loan{
		ID:              id,
		Borrower:        borrower,
		AmountRequested: loan.NewAmount(100),
		InterestRateBPS: 500,
		DurationSeconds: 30 * 86400,
		Purpose:         "stock",
		Status:          status,
		RequestedAt:     1_700_000_000,
	}
}

func newTestReconciler(src chain.Reader) *Reconciler {
	r := New(src, NewMemoryCache(time.Minute), Units{Decimals: 0}, nil)
	r.SetNowFunc(func() time.Time { return time.Unix(1_700_000_500, 0) })
	return r
}

func TestReconciler_LoanView(t *testing.T) {
	src := newFakeSource()
	l := baseLoan(1, alice, loan.StatusActive)
	l.AmountFunded = loan.NewAmount(100)
	l.FundedAt = 1_700_000_100
	l.DueDate = 1_700_000_400
	src.put(l, map[common.Address]uint64{bob: 60, carol: 40}, bob, carol)
	r := newTestReconciler(src)

	v, err := r.Loan(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "100", v.FundedPercent.String())
	require.Equal(t, "105", v.TotalDue.String())
	require.Equal(t, "5", v.InterestRatePercent.String())
	require.Equal(t, "30", v.DurationDays.String())
	require.Equal(t, "0", v.AmountRemaining.String())
	require.True(t, v.Overdue)
	require.Equal(t, 2, v.LenderCount)
	require.True(t, v.LendersKnown)
	require.Equal(t, time.Unix(1_700_000_400, 0).UTC(), v.DueDate)
	require.True(t, v.ClosedAt.IsZero())

	require.True(t, IsBorrower(alice, v))
	require.False(t, IsBorrower(bob, v))
	require.True(t, IsLender(bob, v))
	require.False(t, IsLender(alice, v))
	require.False(t, IsLender(common.Address{}, v))
	require.False(t, IsBorrower(alice, nil))

	_, err = r.Loan(context.Background(), 9)
	require.ErrorIs(t, err, loan.ErrNotFound)
}

func TestReconciler_CachesUntilConfirmed(t *testing.T) {
	src := newFakeSource()
	src.put(baseLoan(1, alice, loan.StatusFunding), nil)
	r := newTestReconciler(src)
	ctx := context.Background()

	_, err := r.Loan(ctx, 1)
	require.NoError(t, err)
	_, err = r.Loan(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, src.calls())

	funded := baseLoan(1, alice, loan.StatusFunding)
	funded.AmountFunded = loan.NewAmount(30)
	src.put(funded, map[common.Address]uint64{bob: 30}, bob)

	v, err := r.Loan(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "0", v.AmountFunded.String(), "still the cached record")

	v, err = r.AfterConfirmed(ctx, &chain.Receipt{Succeeded: true, LoanID: 1})
	require.NoError(t, err)
	require.Equal(t, "30", v.AmountFunded.String())
	require.Equal(t, "30", v.FundedPercent.String())
	require.Equal(t, 2, src.calls())

	v, err = r.AfterConfirmed(ctx, &chain.Receipt{})
	require.NoError(t, err)
	require.Nil(t, v)
	_, err = r.AfterConfirmed(ctx, nil)
	require.Error(t, err)
}

func TestReconciler_InvalidateAndReload(t *testing.T) {
	src := newFakeSource()
	src.put(baseLoan(1, alice, loan.StatusFunding), nil)
	src.put(baseLoan(2, bob, loan.StatusFunding), nil)
	r := newTestReconciler(src)
	ctx := context.Background()

	all, err := r.Loans(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 2, src.calls())

	require.NoError(t, r.Invalidate(ctx))
	_, err = r.Loan(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 3, src.calls())

	require.NoError(t, r.Reload(ctx))
	require.Equal(t, 5, src.calls())
	_, err = r.Loans(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, src.calls(), "reload warmed the cache")
}

func TestReconciler_MyLoansAndInvestments(t *testing.T) {
	src := newFakeSource()
	repaid := baseLoan(1, alice, loan.StatusRepaid)
	repaid.AmountFunded = loan.NewAmount(100)
	repaid.AmountRepaid = loan.NewAmount(105)
	src.put(repaid, map[common.Address]uint64{bob: 60, carol: 40}, bob, carol)

	rate := baseLoan(2, alice, loan.StatusActive)
	rate.InterestRateBPS = 333
	rate.AmountFunded = loan.NewAmount(100)
	src.put(rate, map[common.Address]uint64{bob: 33, carol: 67}, bob, carol)

	src.put(baseLoan(3, carol, loan.StatusFunding), nil)
	r := newTestReconciler(src)
	ctx := context.Background()

	mine, err := r.MyLoans(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)

	none, err := r.MyLoans(ctx, common.HexToAddress("0x09"))
	require.NoError(t, err)
	require.Empty(t, none)

	inv, err := r.MyInvestments(ctx, bob)
	require.NoError(t, err)
	require.Len(t, inv, 2)
	require.Equal(t, "60", inv[0].Contribution.String())
	require.Equal(t, "63", inv[0].ExpectedReturn.String())
	require.Equal(t, "63", inv[0].Received.String())
	require.Equal(t, "60", inv[0].SharePercent.String())
	// 33 * 103 / 100 truncates to 33
	require.Equal(t, "33", inv[1].ExpectedReturn.String())
	require.True(t, inv[1].Received.IsZero())
}

func TestReconciler_Stats(t *testing.T) {
	ctx := context.Background()

	empty := newTestReconciler(newFakeSource())
	s, err := empty.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, s.TotalLoans)
	require.Equal(t, "100", s.SuccessRatePercent.String())
	require.True(t, s.AverageRatePercent.IsZero())

	src := newFakeSource()
	a := baseLoan(1, alice, loan.StatusRepaid)
	a.AmountFunded = loan.NewAmount(100)
	src.put(a, nil, bob, carol)
	b := baseLoan(2, alice, loan.StatusDefaulted)
	b.InterestRateBPS = 1000
	b.DurationSeconds = 10 * 86400
	b.AmountFunded = loan.NewAmount(100)
	src.put(b, nil, bob)
	src.put(baseLoan(3, bob, loan.StatusFunding), nil)

	s, err = newTestReconciler(src).Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, s.TotalLoans)
	require.Equal(t, 1, s.ByStatus[loan.StatusRepaid])
	require.Equal(t, "300", s.TotalRequested.String())
	require.Equal(t, "200", s.TotalFunded.String())
	require.Equal(t, "6.67", s.AverageRatePercent.String())
	require.Equal(t, "23.33", s.AverageDurationDays.String())
	require.Equal(t, "50", s.SuccessRatePercent.String())
	require.Equal(t, 2, s.UniqueBorrowers)
	require.Equal(t, 2, s.UniqueLenders)
	require.True(t, s.LendersKnown)
}

func TestReconciler_RosterUnavailableDegrades(t *testing.T) {
	src := newFakeSource()
	l := baseLoan(1, alice, loan.StatusFunding)
	l.AmountFunded = loan.NewAmount(10)
	src.put(l, map[common.Address]uint64{bob: 10}, bob)
	src.lendersErr = errors.New("roster index offline")
	r := newTestReconciler(src)
	ctx := context.Background()

	v, err := r.Loan(ctx, 1)
	require.NoError(t, err)
	require.False(t, v.LendersKnown)
	require.Empty(t, v.Lenders)

	s, err := r.Stats(ctx)
	require.NoError(t, err)
	require.False(t, s.LendersKnown)

	// investments fall back to per-loan queries
	inv, err := r.MyInvestments(ctx, bob)
	require.NoError(t, err)
	require.Len(t, inv, 1)
}
