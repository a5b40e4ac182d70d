package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/domain/loan"
)

const (
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultPollInterval   = 500 * time.Millisecond
)

type Config struct {
	// ExpectedChainID of zero means "whatever the backend reports".
	ExpectedChainID uint64
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
}

// Adapter is the single gateway between application code and the ledger.
// Reads go straight to the backend; writes need a connected wallet on the
// expected network.
type Adapter struct {
	backend Backend
	wallet  Wallet
	guard   Guard
	cfg     Config
	log     *slog.Logger

	mu        sync.Mutex
	account   common.Address
	connected bool
	epoch     uint64
	epochDone chan struct{}

	// serialises prepare -> send so nonces are taken in order
	sendMu sync.Mutex
}

// NewAdapter accepts a nil wallet (read-only use) and a nil guard (in-memory).
func NewAdapter(backend Backend, wallet Wallet, guard Guard, cfg Config, log *slog.Logger) *Adapter {
	if guard == nil {
		guard = NewMemoryGuard(DefaultGuardTTL)
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		backend:   backend,
		wallet:    wallet,
		guard:     guard,
		cfg:       cfg,
		log:       log,
		epochDone: make(chan struct{}),
	}
}

// Connect asks the wallet for its accounts and binds the first one.
func (a *Adapter) Connect(ctx context.Context) (common.Address, error) {
	if a.wallet == nil {
		return common.Address{}, ErrNoWallet
	}
	accounts, err := a.wallet.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoWallet
	}
	a.mu.Lock()
	if a.account != accounts[0] {
		a.bumpLocked()
	}
	a.account, a.connected = accounts[0], true
	a.mu.Unlock()
	a.log.Info("wallet connected", "account", accounts[0].Hex())
	return accounts[0], nil
}

// Account returns the bound account, if any.
func (a *Adapter) Account() (common.Address, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.account, a.connected
}

// EnsureCorrectNetwork reports a mismatch; it never switches networks.
func (a *Adapter) EnsureCorrectNetwork(ctx context.Context) error {
	if a.wallet == nil {
		return ErrNoWallet
	}
	expected := a.cfg.ExpectedChainID
	if expected == 0 {
		id, err := a.backend.ChainID(ctx)
		if err != nil {
			return err
		}
		expected = id
	}
	actual, err := a.wallet.ChainID(ctx)
	if err != nil {
		return err
	}
	if actual != expected {
		return &WrongNetworkError{Expected: expected, Actual: actual}
	}
	return nil
}

// HandleAccountChanged rebinds the session. The zero address disconnects.
func (a *Adapter) HandleAccountChanged(account common.Address) {
	a.mu.Lock()
	a.bumpLocked()
	a.account = account
	a.connected = account != (common.Address{})
	a.mu.Unlock()
	a.log.Info("wallet account changed", "account", account.Hex())
}

func (a *Adapter) HandleChainChanged(chainID uint64) {
	a.mu.Lock()
	a.bumpLocked()
	a.mu.Unlock()
	a.log.Info("wallet chain changed", "chain_id", chainID)
}

// bumpLocked ends the current session epoch. Anything waiting on the old
// epoch fails with ErrSessionChanged.
func (a *Adapter) bumpLocked() {
	a.epoch++
	close(a.epochDone)
	a.epochDone = make(chan struct{})
}

type session struct {
	account common.Address
	epoch   uint64
	done    <-chan struct{}
}

func (a *Adapter) session() (session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return session{}, ErrNotConnected
	}
	return session{account: a.account, epoch: a.epoch, done: a.epochDone}, nil
}

func (a *Adapter) current(s session) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epoch == s.epoch
}

// Call submits a state-changing operation and returns as soon as the backend
// accepted it. Use PendingTx.Wait for the outcome.
func (a *Adapter) Call(ctx context.Context, c Call) (*PendingTx, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	s, err := a.session()
	if err != nil {
		return nil, err
	}
	if err := a.EnsureCorrectNetwork(ctx); err != nil {
		return nil, err
	}
	release, err := a.guard.Acquire(ctx, c.GuardKey(s.account))
	if err != nil {
		return nil, err
	}
	hash, err := a.submit(ctx, s, c)
	if err != nil {
		release()
		a.log.Warn("transaction not submitted", "op", c.Op, "loan_id", c.LoanID, "err", err)
		return nil, err
	}
	a.log.Info("transaction submitted", "op", c.Op, "loan_id", c.LoanID, "tx", hash.Hex())
	return &PendingTx{Hash: hash, Call: c, adapter: a, session: s, release: release}, nil
}

func (a *Adapter) submit(ctx context.Context, s session, c Call) (common.Hash, error) {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	unsigned, err := a.backend.Prepare(ctx, s.account, c)
	if err != nil {
		return common.Hash{}, fmt.Errorf("prepare %s: %w", c.Op, err)
	}

	signCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-signCtx.Done():
		}
	}()
	sig, err := a.wallet.SignHash(signCtx, s.account, unsigned.SigningHash())
	if !a.current(s) {
		return common.Hash{}, ErrSessionChanged
	}
	if err != nil {
		return common.Hash{}, err
	}
	return a.backend.Send(ctx, unsigned, sig)
}

func (a *Adapter) LoanDetails(ctx context.Context, id uint64) (*loan.Loan, error) {
	return a.backend.LoanDetails(ctx, id)
}

func (a *Adapter) LoanIDs(ctx context.Context) ([]uint64, error) {
	return a.backend.LoanIDs(ctx)
}

func (a *Adapter) LenderInvestment(ctx context.Context, id uint64, lender common.Address) (loan.Amount, error) {
	return a.backend.LenderInvestment(ctx, id, lender)
}

func (a *Adapter) Lenders(ctx context.Context, id uint64) ([]common.Address, error) {
	return a.backend.Lenders(ctx, id)
}

func (a *Adapter) Balance(ctx context.Context, addr common.Address) (loan.Amount, error) {
	return a.backend.Balance(ctx, addr)
}

// PendingTx is a submitted transaction awaiting confirmation.
type PendingTx struct {
	Hash common.Hash
	Call Call

	adapter *Adapter
	session session
	release func()
}

// Wait polls for the receipt. It fails with *TransactionRevertedError when
// the ledger rejected the call, *TransactionTimeoutError when the confirm
// timeout elapses, and ErrSessionChanged when the wallet switched account or
// network meanwhile. The in-flight guard is released on return.
func (p *PendingTx) Wait(ctx context.Context) (*Receipt, error) {
	defer p.release()
	a := p.adapter
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if !a.current(p.session) {
			return nil, ErrSessionChanged
		}
		r, err := a.backend.Receipt(waitCtx, p.Hash)
		// the outcome belongs to the old account or network
		if err == nil && !a.current(p.session) {
			return nil, ErrSessionChanged
		}
		switch {
		case err == nil && !r.Succeeded:
			a.log.Warn("transaction reverted", "tx", p.Hash.Hex(), "reason", r.Reason)
			return nil, &TransactionRevertedError{TxHash: p.Hash, Reason: r.Reason, Message: r.Message}
		case err == nil:
			a.log.Info("transaction confirmed", "tx", p.Hash.Hex(), "block", r.BlockNumber)
			return r, nil
		case !errors.Is(err, ErrPending) && waitCtx.Err() == nil:
			return nil, err
		}
		select {
		case <-p.session.done:
			return nil, ErrSessionChanged
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, &TransactionTimeoutError{TxHash: p.Hash, After: a.cfg.ConfirmTimeout}
		case <-ticker.C:
		}
	}
}
