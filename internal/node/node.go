package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/domain/loan"
	"microloan/internal/infrastructure/metrics"
	"microloan/internal/usecase/ledger"
)

// Ledger is the state machine a node executes transactions against.
type Ledger interface {
	CreateLoan(ctx context.Context, msg ledger.Msg, in ledger.CreateLoanInput) (*ledger.Result, error)
	FundLoan(ctx context.Context, msg ledger.Msg, id uint64) (*ledger.Result, error)
	RepayLoan(ctx context.Context, msg ledger.Msg, id uint64) (*ledger.Result, error)
	CancelLoan(ctx context.Context, msg ledger.Msg, id uint64) (*ledger.Result, error)
	MarkDefaulted(ctx context.Context, msg ledger.Msg, id uint64) (*ledger.Result, error)

	// NonceOf and ConsumeNonce keep sender nonces in the ledger's store so
	// they survive restarts.
	NonceOf(ctx context.Context, addr common.Address) (uint64, error)
	ConsumeNonce(ctx context.Context, addr common.Address, nonce uint64) (bool, error)
}

type Config struct {
	ChainID       uint64
	BlockInterval time.Duration
}

type pendingTx struct {
	hash common.Hash
	from common.Address
	tx   *SignedTx
}

// Node orders signed transactions into blocks. Exactly one block is
// executed at a time, so ledger calls never interleave.
type Node struct {
	cfg     Config
	ledger  Ledger
	log     *slog.Logger
	metrics *metrics.LedgerMetrics

	mineMu sync.Mutex

	mu       sync.Mutex
	nonces   map[common.Address]uint64
	pool     []pendingTx
	known    map[common.Hash]struct{}
	receipts map[common.Hash]*Receipt
	block    uint64
}

func New(cfg Config, l Ledger, log *slog.Logger) *Node {
	if cfg.BlockInterval <= 0 {
		cfg.BlockInterval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Node{
		cfg:      cfg,
		ledger:   l,
		log:      log.With("component", "node"),
		metrics:  metrics.Ledger(),
		nonces:   make(map[common.Address]uint64),
		known:    make(map[common.Hash]struct{}),
		receipts: make(map[common.Hash]*Receipt),
	}
}

func (n *Node) ChainID() uint64 { return n.cfg.ChainID }

func (n *Node) BlockNumber() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.block
}

// PendingNonce is the nonce the sender's next transaction must carry: the
// persisted nonce plus whatever this node has queued.
func (n *Node) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	n.mu.Lock()
	next, ok := n.nonces[addr]
	n.mu.Unlock()
	if ok {
		return next, nil
	}
	return n.ledger.NonceOf(ctx, addr)
}

// SendTransaction validates and queues stx, returning its hash before execution.
func (n *Node) SendTransaction(ctx context.Context, stx *SignedTx) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	if stx.Tx.ChainID != n.cfg.ChainID {
		return common.Hash{}, fmt.Errorf("got %d, want %d: %w", stx.Tx.ChainID, n.cfg.ChainID, ErrWrongChain)
	}
	if stx.Tx.Value != nil && stx.Tx.Value.Sign() < 0 {
		return common.Hash{}, ErrNegativeValue
	}
	if !KnownMethod(stx.Tx.Method) {
		return common.Hash{}, fmt.Errorf("%q: %w", stx.Tx.Method, ErrUnknownMethod)
	}
	from, err := stx.Sender()
	if err != nil {
		return common.Hash{}, err
	}
	hash := stx.Hash()
	// senders this node has not seen continue from the persisted nonce
	persisted, err := n.ledger.NonceOf(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read nonce: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.known[hash]; ok {
		return common.Hash{}, ErrKnownTx
	}
	next, ok := n.nonces[from]
	if !ok {
		next = persisted
	}
	switch {
	case stx.Tx.Nonce < next:
		return common.Hash{}, fmt.Errorf("%s: got %d, want %d: %w", from.Hex(), stx.Tx.Nonce, next, ErrNonceTooLow)
	case stx.Tx.Nonce > next:
		return common.Hash{}, fmt.Errorf("%s: got %d, want %d: %w", from.Hex(), stx.Tx.Nonce, next, ErrNonceTooHigh)
	}
	n.nonces[from] = next + 1
	n.known[hash] = struct{}{}
	n.pool = append(n.pool, pendingTx{hash: hash, from: from, tx: stx})
	n.metrics.SetMempoolSize(len(n.pool))
	n.log.Debug("transaction queued", "hash", hash.Hex(), "from", from.Hex(), "method", stx.Tx.Method, "nonce", stx.Tx.Nonce)
	return hash, nil
}

// Receipt returns the receipt of a mined transaction; ok is false while it is
// pending or unknown.
func (n *Node) Receipt(hash common.Hash) (*Receipt, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.receipts[hash]
	return r, ok
}

// Pending reports whether hash is queued but not yet mined.
func (n *Node) Pending(hash common.Hash) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, known := n.known[hash]
	_, mined := n.receipts[hash]
	return known && !mined
}

// Mine executes every queued transaction in FIFO order as one block and
// returns the receipts. An empty pool produces no block.
func (n *Node) Mine(ctx context.Context) []*Receipt {
	n.mineMu.Lock()
	defer n.mineMu.Unlock()

	n.mu.Lock()
	batch := n.pool
	n.pool = nil
	if len(batch) > 0 {
		n.block++
	}
	height := n.block
	n.mu.Unlock()
	n.metrics.SetMempoolSize(0)

	if len(batch) == 0 {
		return nil
	}

	out := make([]*Receipt, 0, len(batch))
	for _, p := range batch {
		r := n.execute(ctx, p)
		r.BlockNumber = height
		if !r.Succeeded() {
			n.consumeNonce(ctx, p)
		}
		out = append(out, r)

		status := "success"
		if !r.Succeeded() {
			status = "reverted"
			n.log.Info("transaction reverted", "hash", p.hash.Hex(), "method", r.Method, "loanId", r.LoanID, "reason", r.Reason)
		}
		n.metrics.ObserveTx(status)
	}

	n.mu.Lock()
	for _, r := range out {
		n.receipts[r.TxHash] = r
	}
	n.mu.Unlock()
	n.metrics.SetBlockHeight(height)
	n.log.Debug("block produced", "height", height, "txs", len(out))
	return out
}

func (n *Node) execute(ctx context.Context, p pendingTx) *Receipt {
	r := &Receipt{TxHash: p.hash, From: p.from, Method: p.tx.Tx.Method, Status: ReceiptStatusFailed}

	value, err := loan.AmountFromBig(p.tx.Tx.Value)
	if err != nil {
		return r.fail(err)
	}
	nonce := p.tx.Tx.Nonce
	msg := ledger.Msg{From: p.from, Value: value, Nonce: &nonce}

	var res *ledger.Result
	if p.tx.Tx.Method == MethodCreateLoan {
		var in ledger.CreateLoanInput
		if err := json.Unmarshal(p.tx.Tx.Args, &in); err != nil {
			return r.fail(fmt.Errorf("decode args: %w", err))
		}
		res, err = n.ledger.CreateLoan(ctx, msg, in)
	} else {
		var args LoanArgs
		if err := json.Unmarshal(p.tx.Tx.Args, &args); err != nil {
			return r.fail(fmt.Errorf("decode args: %w", err))
		}
		r.LoanID = args.LoanID
		switch p.tx.Tx.Method {
		case MethodFundLoan:
			res, err = n.ledger.FundLoan(ctx, msg, args.LoanID)
		case MethodRepayLoan:
			res, err = n.ledger.RepayLoan(ctx, msg, args.LoanID)
		case MethodCancelLoan:
			res, err = n.ledger.CancelLoan(ctx, msg, args.LoanID)
		case MethodMarkDefaulted:
			res, err = n.ledger.MarkDefaulted(ctx, msg, args.LoanID)
		default:
			err = ErrUnknownMethod
		}
	}
	if err != nil {
		return r.fail(err)
	}
	r.Status = ReceiptStatusSuccessful
	r.LoanID = res.LoanID
	r.Events = res.Events
	return r
}

// consumeNonce spends the nonce of a transaction whose call rolled back.
func (n *Node) consumeNonce(ctx context.Context, p pendingTx) {
	consumed, err := n.ledger.ConsumeNonce(ctx, p.from, p.tx.Tx.Nonce)
	if err != nil {
		n.log.Error("nonce not recorded", "hash", p.hash.Hex(), "from", p.from.Hex(), "nonce", p.tx.Tx.Nonce, "err", err)
		return
	}
	if !consumed {
		n.log.Warn("nonce already spent", "hash", p.hash.Hex(), "from", p.from.Hex(), "nonce", p.tx.Tx.Nonce)
	}
}

func (r *Receipt) fail(err error) *Receipt {
	r.Status = ReceiptStatusFailed
	r.Reason = loan.ReasonOf(err)
	r.Message = err.Error()
	return r
}

// Run mines a block every BlockInterval until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.BlockInterval)
	defer ticker.Stop()
	n.log.Info("miner started", "chainId", n.cfg.ChainID, "interval", n.cfg.BlockInterval.String())
	for {
		select {
		case <-ctx.Done():
			n.log.Info("miner stopped", "height", n.BlockNumber())
			return nil
		case <-ticker.C:
			// a block already in progress finishes with its own context
			n.Mine(context.WithoutCancel(ctx))
		}
	}
}
