package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
	"microloan/internal/testutil/ledgertest"
	"microloan/internal/usecase/ledger"
)

type harness struct {
	env     *ledgertest.Env
	backend *RPCBackend
}

func newHarness(t *testing.T, mine bool) *harness {
	t.Helper()
	env := ledgertest.New(t)
	if mine {
		env.StartMiner(t)
	}
	b, err := DialRPC(context.Background(), env.URL)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return &harness{env: env, backend: b}
}

func (h *harness) adapter(t *testing.T, key *ecdsa.PrivateKey, cfg Config) (*Adapter, *KeyWallet) {
	t.Helper()
	w := NewKeyWallet(ledgertest.ChainID, key)
	if cfg.ExpectedChainID == 0 {
		cfg.ExpectedChainID = ledgertest.ChainID
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	a := NewAdapter(h.backend, w, NewMemoryGuard(time.Minute), cfg, nil)
	_, err := a.Connect(context.Background())
	require.NoError(t, err)
	return a, w
}

func createCall(amount uint64) Call {
	return Call{Op: OpCreate, Create: &ledger.CreateLoanInput{
		Amount:          loan.NewAmount(amount),
		Purpose:         "sewing machine",
		DurationDays:    30,
		InterestRateBPS: 500,
	}}
}

func submit(t *testing.T, a *Adapter, c Call) *Receipt {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := a.Call(ctx, c)
	require.NoError(t, err)
	r, err := p.Wait(ctx)
	require.NoError(t, err)
	return r
}

func TestAdapter_ReadsWorkWithoutWallet(t *testing.T) {
	h := newHarness(t, false)
	a := NewAdapter(h.backend, nil, nil, Config{}, nil)

	ids, err := a.LoanIDs(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = a.LoanDetails(context.Background(), 42)
	require.ErrorIs(t, err, loan.ErrNotFound)
	require.Equal(t, CategoryNotFound, Classify(err))

	_, err = a.Connect(context.Background())
	require.ErrorIs(t, err, ErrNoWallet)
	_, err = a.Call(context.Background(), Call{Op: OpCancel, LoanID: 1})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestAdapter_Lifecycle(t *testing.T) {
	h := newHarness(t, true)
	bk, borrower := h.env.Account(t, 1000)
	k1, l1 := h.env.Account(t, 1000)
	k2, l2 := h.env.Account(t, 1000)

	b, _ := h.adapter(t, bk, Config{})
	lender1, _ := h.adapter(t, k1, Config{})
	lender2, _ := h.adapter(t, k2, Config{})

	r := submit(t, b, createCall(100))
	require.True(t, r.Succeeded)
	require.Equal(t, uint64(1), r.LoanID)
	require.Equal(t, event.TypeLoanCreated, r.Events[0].Type)

	submit(t, lender1, Call{Op: OpFund, LoanID: 1, Value: loan.NewAmount(60)})
	r = submit(t, lender2, Call{Op: OpFund, LoanID: 1, Value: loan.NewAmount(40)})
	require.Equal(t, event.TypeLoanActivated, r.Events[len(r.Events)-1].Type)

	r = submit(t, b, Call{Op: OpRepay, LoanID: 1, Value: loan.NewAmount(105)})
	require.Equal(t, event.TypeLoanRepaid, r.Events[0].Type)

	ctx := context.Background()
	l, err := b.LoanDetails(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, loan.StatusRepaid, l.Status)

	lenders, err := b.Lenders(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []common.Address{l1, l2}, lenders)

	inv, err := b.LenderInvestment(ctx, 1, l1)
	require.NoError(t, err)
	require.Equal(t, "60", inv.String())

	for addr, want := range map[common.Address]string{borrower: "995", l1: "1003", l2: "1002"} {
		bal, err := b.Balance(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, want, bal.String(), addr.Hex())
	}
}

func TestAdapter_RevertDecodedToLedgerError(t *testing.T) {
	h := newHarness(t, true)
	bk, _ := h.env.Account(t, 1000)
	b, _ := h.adapter(t, bk, Config{})
	submit(t, b, createCall(100))

	ctx := context.Background()
	p, err := b.Call(ctx, Call{Op: OpRepay, LoanID: 1, Value: loan.NewAmount(105)})
	require.NoError(t, err)
	_, err = p.Wait(ctx)

	var reverted *TransactionRevertedError
	require.ErrorAs(t, err, &reverted)
	require.Equal(t, loan.ReasonNotActive, reverted.Reason)
	require.ErrorIs(t, err, loan.ErrNotActive)
	require.Equal(t, CategoryValidation, Classify(err))
}

func TestAdapter_WrongNetwork(t *testing.T) {
	h := newHarness(t, false)
	bk, _ := h.env.Account(t, 0)
	a, w := h.adapter(t, bk, Config{})
	w.SwitchChain(5)

	_, err := a.Call(context.Background(), createCall(10))
	var wrong *WrongNetworkError
	require.ErrorAs(t, err, &wrong)
	require.Equal(t, uint64(ledgertest.ChainID), wrong.Expected)
	require.Equal(t, uint64(5), wrong.Actual)
	require.Equal(t, CategoryConnectivity, Classify(err))
}

func TestAdapter_InFlightGuard(t *testing.T) {
	h := newHarness(t, false)
	bk, _ := h.env.Account(t, 1000)
	a, _ := h.adapter(t, bk, Config{})
	ctx := context.Background()

	p, err := a.Call(ctx, createCall(10))
	require.NoError(t, err)

	_, err = a.Call(ctx, createCall(10))
	require.ErrorIs(t, err, ErrOperationInFlight)

	h.env.Node.Mine(ctx)
	_, err = p.Wait(ctx)
	require.NoError(t, err)

	p, err = a.Call(ctx, createCall(10))
	require.NoError(t, err)
	h.env.Node.Mine(ctx)
	_, err = p.Wait(ctx)
	require.NoError(t, err)
}

func TestAdapter_WaitTimesOut(t *testing.T) {
	h := newHarness(t, false)
	bk, _ := h.env.Account(t, 1000)
	a, _ := h.adapter(t, bk, Config{ConfirmTimeout: 30 * time.Millisecond})

	p, err := a.Call(context.Background(), createCall(10))
	require.NoError(t, err)
	_, err = p.Wait(context.Background())

	var timeout *TransactionTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.Equal(t, p.Hash, timeout.TxHash)

	// the guard is free again
	_, err = a.Call(context.Background(), createCall(10))
	require.NoError(t, err)
}

func TestAdapter_AccountChangeAbandonsWait(t *testing.T) {
	h := newHarness(t, false)
	bk, _ := h.env.Account(t, 1000)
	other, otherAddr := h.env.Account(t, 0)
	a, w := h.adapter(t, bk, Config{})
	w.AddKey(other)

	p, err := a.Call(context.Background(), createCall(10))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := p.Wait(context.Background())
		errc <- err
	}()
	a.HandleAccountChanged(otherAddr)

	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrSessionChanged)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not observe the account change")
	}
	acct, ok := a.Account()
	require.True(t, ok)
	require.Equal(t, otherAddr, acct)
}

func TestAdapter_ChainChangeBeforeMiningFailsWait(t *testing.T) {
	h := newHarness(t, false)
	bk, _ := h.env.Account(t, 1000)
	a, _ := h.adapter(t, bk, Config{})
	ctx := context.Background()

	p, err := a.Call(ctx, createCall(10))
	require.NoError(t, err)
	a.HandleChainChanged(5)
	require.Len(t, h.env.Node.Mine(ctx), 1)

	r, err := p.Wait(ctx)
	require.ErrorIs(t, err, ErrSessionChanged)
	require.Nil(t, r)
}

func TestAdapter_ChainChangeAbortsSigning(t *testing.T) {
	h := newHarness(t, false)
	bk, _ := h.env.Account(t, 1000)
	a, w := h.adapter(t, bk, Config{})

	prompted := make(chan struct{})
	w.SetApprover(func(ctx context.Context, req ApprovalRequest) bool {
		if req.Kind != ApproveSign {
			return true
		}
		close(prompted)
		<-ctx.Done()
		return false
	})
	go func() {
		<-prompted
		a.HandleChainChanged(5)
	}()

	_, err := a.Call(context.Background(), createCall(10))
	require.ErrorIs(t, err, ErrSessionChanged)
	require.Empty(t, h.env.Node.Mine(context.Background()), "nothing was submitted")
}

func TestAdapter_SignRejected(t *testing.T) {
	h := newHarness(t, false)
	bk, _ := h.env.Account(t, 1000)
	a, w := h.adapter(t, bk, Config{})
	w.SetApprover(func(_ context.Context, req ApprovalRequest) bool { return req.Kind != ApproveSign })

	_, err := a.Call(context.Background(), createCall(10))
	require.ErrorIs(t, err, ErrUserRejected)
	require.Equal(t, CategoryConnectivity, Classify(err))

	w.SetApprover(nil)
	_, err = a.Call(context.Background(), createCall(10))
	require.NoError(t, err, "rejection must release the guard")
}

func TestAdapter_DisconnectRequiresReconnect(t *testing.T) {
	h := newHarness(t, false)
	bk, _ := h.env.Account(t, 1000)
	a, _ := h.adapter(t, bk, Config{})

	a.HandleAccountChanged(common.Address{})
	_, err := a.Call(context.Background(), createCall(10))
	require.True(t, errors.Is(err, ErrNotConnected))
}
