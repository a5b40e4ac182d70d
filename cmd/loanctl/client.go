package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"

	"microloan/internal/chain"
	"microloan/internal/config"
	"microloan/internal/domain/event"
	"microloan/internal/infrastructure/cache"
	"microloan/internal/reconciler"
)

const (
	backendRPC = "rpc"
	backendEVM = "evm"
)

// options are the connection flags every command accepts.
type options struct {
	rpc      string
	backend  string
	contract string
	chainID  uint64
	decimals int
	redis    string
	redisDB  int
	key      string
	address  string
	timeout  time.Duration
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *options) {
	cfg := config.Load()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &options{}
	fs.StringVar(&o.rpc, "rpc", cfg.RPCURL, "ledger JSON-RPC URL, or EVM endpoint with --backend evm")
	fs.StringVar(&o.backend, "backend", backendRPC, "rpc (ledgerd) or evm (deployed contract)")
	fs.StringVar(&o.contract, "contract", "", "contract address for --backend evm")
	fs.Uint64Var(&o.chainID, "chain-id", 0, "expected chain id (0 accepts the backend's)")
	fs.IntVar(&o.decimals, "decimals", cfg.DisplayDecimals, "display decimals of the ledger unit")
	fs.StringVar(&o.redis, "redis", cfg.RedisAddr, "redis address for the in-flight guard and view cache")
	fs.IntVar(&o.redisDB, "redis-db", cfg.RedisDB, "redis database")
	fs.DurationVar(&o.timeout, "timeout", cfg.ConfirmTimeout(), "confirmation timeout")
	return fs, o
}

func (o *options) bindKey(fs *flag.FlagSet) {
	fs.StringVar(&o.key, "key", "", "hex private key file")
}

func (o *options) bindAddress(fs *flag.FlagSet) {
	o.bindKey(fs)
	fs.StringVar(&o.address, "address", "", "account address")
}

// account resolves --address, falling back to the address of --key.
func (o *options) account() (common.Address, error) {
	if o.address != "" {
		if !common.IsHexAddress(o.address) {
			return common.Address{}, fmt.Errorf("invalid address %q", o.address)
		}
		return common.HexToAddress(o.address), nil
	}
	if o.key == "" {
		return common.Address{}, errors.New("--key or --address is required")
	}
	key, err := crypto.LoadECDSA(o.key)
	if err != nil {
		return common.Address{}, fmt.Errorf("load key %s: %w", o.key, err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

type client struct {
	backend chain.Backend
	adapter *chain.Adapter
	views   *reconciler.Reconciler
	closers []func()
}

// open dials the backend and builds the adapter and reconciler. A wallet is
// loaded and connected only when --key is set.
func (o *options) open(ctx context.Context) (*client, error) {
	units, err := reconciler.NewUnits(int32(o.decimals))
	if err != nil {
		return nil, err
	}
	c := &client{}
	switch o.backend {
	case backendRPC:
		b, err := chain.DialRPC(ctx, o.rpc)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", o.rpc, err)
		}
		c.backend = b
		c.closers = append(c.closers, b.Close)
	case backendEVM:
		if !common.IsHexAddress(o.contract) {
			return nil, errors.New("--contract is required with --backend evm")
		}
		ec, err := chain.DialEVMClient(o.rpc)
		if err != nil {
			return nil, err
		}
		c.backend = chain.NewEVMBackend(ec, common.HexToAddress(o.contract))
		c.closers = append(c.closers, ec.Close)
	default:
		return nil, fmt.Errorf("unknown backend %q", o.backend)
	}

	var (
		guard chain.Guard
		views reconciler.Cache
	)
	if o.redis != "" {
		rdb, err := cache.OpenRedis(o.redis, o.redisDB)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		guard, views = redisStack(rdb)
	}

	var wallet chain.Wallet
	if o.key != "" {
		chainID, err := c.backend.ChainID(ctx)
		if err != nil {
			c.Close()
			return nil, err
		}
		w, err := chain.LoadKeyWallet(chainID, o.key)
		if err != nil {
			c.Close()
			return nil, err
		}
		wallet = w
	}

	c.adapter = chain.NewAdapter(c.backend, wallet, guard, chain.Config{
		ExpectedChainID: o.chainID,
		ConfirmTimeout:  o.timeout,
	}, nil)
	if wallet != nil {
		if _, err := c.adapter.Connect(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}
	c.views = reconciler.New(c.adapter, views, units, nil)
	return c, nil
}

func redisStack(rdb *redis.Client) (chain.Guard, reconciler.Cache) {
	return chain.NewRedisGuard(rdb, "", chain.DefaultGuardTTL),
		reconciler.NewRedisCache(rdb, "", reconciler.DefaultCacheTTL)
}

func (c *client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// submit sends call and waits for the refreshed loan.
func (c *client) submit(ctx context.Context, call chain.Call) (*txResult, error) {
	p, err := c.adapter.Call(ctx, call)
	if err != nil {
		return nil, err
	}
	v, rcpt, err := c.views.Track(ctx, p)
	if err != nil {
		return nil, err
	}
	return &txResult{
		TxHash:      rcpt.TxHash.Hex(),
		BlockNumber: rcpt.BlockNumber,
		LoanID:      rcpt.LoanID,
		Events:      rcpt.Events,
		Loan:        v,
	}, nil
}

type txResult struct {
	TxHash      string               `json:"txHash"`
	BlockNumber uint64               `json:"blockNumber"`
	LoanID      uint64               `json:"loanId"`
	Events      []event.Event        `json:"events"`
	Loan        *reconciler.LoanView `json:"loan,omitempty"`
}

func writeJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return 1
	}
	return 0
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error (%s): %v\n", chain.Classify(err), err)
	return 1
}
