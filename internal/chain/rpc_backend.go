package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	httpadp "microloan/internal/adapter/http"
	"microloan/internal/domain/loan"
	"microloan/internal/node"
)

var opMethods = map[Op]string{
	OpCreate:  node.MethodCreateLoan,
	OpFund:    node.MethodFundLoan,
	OpRepay:   node.MethodRepayLoan,
	OpCancel:  node.MethodCancelLoan,
	OpDefault: node.MethodMarkDefaulted,
}

// RPCBackend talks to a ledger node over JSON-RPC.
type RPCBackend struct {
	c *rpc.Client
}

func DialRPC(ctx context.Context, url string) (*RPCBackend, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewRPCBackend(c), nil
}

func NewRPCBackend(c *rpc.Client) *RPCBackend { return &RPCBackend{c: c} }

func (b *RPCBackend) Close() { b.c.Close() }

func (b *RPCBackend) call(ctx context.Context, out any, method string, args ...any) error {
	if err := b.c.CallContext(ctx, out, httpadp.RPCNamespace+"_"+method, args...); err != nil {
		return decodeRPCError(err)
	}
	return nil
}

// decodeRPCError restores the ledger sentinel from the error data reason.
func decodeRPCError(err error) error {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return err
	}
	data, _ := de.ErrorData().(map[string]any)
	reason, _ := data["reason"].(string)
	if sentinel := loan.ErrorForReason(loan.Reason(reason)); sentinel != nil {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return err
}

func (b *RPCBackend) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	err := b.call(ctx, &id, "chainId")
	return uint64(id), err
}

func (b *RPCBackend) Prepare(ctx context.Context, from common.Address, c Call) (Unsigned, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	var nonce hexutil.Uint64
	if err := b.call(ctx, &nonce, "getTransactionCount", httpadp.AccountQuery{Address: from.Hex()}); err != nil {
		return nil, err
	}
	var args any = node.LoanArgs{LoanID: c.LoanID}
	if c.Op == OpCreate {
		args = c.Create
	}
	tx, err := node.NewTx(chainID, uint64(nonce), opMethods[c.Op], args, c.Value.Big())
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (b *RPCBackend) Send(ctx context.Context, u Unsigned, sig []byte) (common.Hash, error) {
	tx, ok := u.(*node.Tx)
	if !ok {
		return common.Hash{}, fmt.Errorf("rpc backend cannot send %T", u)
	}
	var hash common.Hash
	err := b.call(ctx, &hash, "sendTransaction", node.ToRPC(&node.SignedTx{Tx: *tx, Sig: sig}))
	return hash, err
}

func (b *RPCBackend) Receipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var r *node.Receipt
	if err := b.call(ctx, &r, "getTransactionReceipt", httpadp.ReceiptQuery{Hash: hash.Hex()}); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrPending
	}
	return &Receipt{
		TxHash:      r.TxHash,
		BlockNumber: r.BlockNumber,
		Succeeded:   r.Succeeded(),
		LoanID:      r.LoanID,
		Reason:      r.Reason,
		Message:     r.Message,
		Events:      r.Events,
	}, nil
}

func (b *RPCBackend) LoanDetails(ctx context.Context, id uint64) (*loan.Loan, error) {
	var out loan.Loan
	if err := b.call(ctx, &out, "getLoanDetails", httpadp.LoanQuery{LoanID: hexutil.Uint64(id)}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *RPCBackend) LoanIDs(ctx context.Context) ([]uint64, error) {
	var ids []hexutil.Uint64
	if err := b.call(ctx, &ids, "getAllLoanIds"); err != nil {
		return nil, err
	}
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out, nil
}

func (b *RPCBackend) LenderInvestment(ctx context.Context, id uint64, lender common.Address) (loan.Amount, error) {
	var out loan.Amount
	err := b.call(ctx, &out, "getLenderInvestment", httpadp.InvestmentQuery{LoanID: hexutil.Uint64(id), Lender: lender.Hex()})
	return out, err
}

func (b *RPCBackend) Lenders(ctx context.Context, id uint64) ([]common.Address, error) {
	var out []common.Address
	err := b.call(ctx, &out, "getLenders", httpadp.LoanQuery{LoanID: hexutil.Uint64(id)})
	return out, err
}

func (b *RPCBackend) Balance(ctx context.Context, addr common.Address) (loan.Amount, error) {
	var out loan.Amount
	err := b.call(ctx, &out, "getBalance", httpadp.AccountQuery{Address: addr.Hex()})
	return out, err
}
