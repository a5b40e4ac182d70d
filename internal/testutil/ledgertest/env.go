// Package ledgertest runs a complete ledger node behind a JSON-RPC endpoint
// for tests of the client side.
package ledgertest

import (
	"context"
	"crypto/ecdsa"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	httpadp "microloan/internal/adapter/http"
	"microloan/internal/adapter/repository/mysql"
	"microloan/internal/domain/loan"
	"microloan/internal/infrastructure/db"
	"microloan/internal/node"
	"microloan/internal/usecase/ledger"
)

const ChainID = 1337

type Env struct {
	Ledger *ledger.Usecase
	Node   *node.Node
	URL    string
}

// New starts the node without a miner; call StartMiner or Node.Mine.
func New(t testing.TB) *Env {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb, mysql.Models()...))

	l := ledger.NewUsecase(mysql.NewGormUoW(gdb), ledger.DefaultParams())
	n := node.New(node.Config{ChainID: ChainID, BlockInterval: 5 * time.Millisecond}, l, nil)
	e, srv, err := httpadp.NewServer(httpadp.NewHandler(n), httpadp.NewLedgerAPI(n, l))
	require.NoError(t, err)
	ts := httptest.NewServer(e)
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
		_ = sqlDB.Close()
	})
	return &Env{Ledger: l, Node: n, URL: ts.URL + "/rpc"}
}

func (e *Env) StartMiner(t testing.TB) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Node.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// Account creates a key holding balance in the ledger.
func (e *Env) Account(t testing.TB, balance uint64) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if balance > 0 {
		require.NoError(t, e.Ledger.Credit(context.Background(), addr, loan.NewAmount(balance)))
	}
	return key, addr
}
