package http

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
	"microloan/internal/node"
)

const maxPageSize = 1000

// Reader serves the ledger's read-only queries.
type Reader interface {
	GetLoanDetails(ctx context.Context, id uint64) (*loan.Loan, error)
	GetAllLoanIDs(ctx context.Context) ([]uint64, error)
	GetLenderInvestment(ctx context.Context, id uint64, lender common.Address) (loan.Amount, error)
	GetLenders(ctx context.Context, id uint64) ([]common.Address, error)
	BalanceOf(ctx context.Context, addr common.Address) (loan.Amount, error)
	Events(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error)
}

// Chain is the transaction side of a node.
type Chain interface {
	ChainInfo
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
	SendTransaction(ctx context.Context, stx *node.SignedTx) (common.Hash, error)
	Receipt(hash common.Hash) (*node.Receipt, bool)
}

type LoanQuery struct {
	LoanID hexutil.Uint64 `json:"loanId"`
}

type InvestmentQuery struct {
	LoanID hexutil.Uint64 `json:"loanId"`
	Lender string         `json:"lender" validate:"required,eth_addr"`
}

type AccountQuery struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

type ReceiptQuery struct {
	Hash string `json:"hash" validate:"required,len=66,hexadecimal"`
}

type EventsQuery struct {
	AfterSeq hexutil.Uint64 `json:"afterSeq"`
	Limit    int            `json:"limit" validate:"pagesize"`
}

// LedgerAPI is registered under the "ledger" namespace, so GetLoanDetails is
// served as ledger_getLoanDetails.
type LedgerAPI struct {
	chain     Chain
	reader    Reader
	validator *CustomValidator
}

func NewLedgerAPI(chain Chain, reader Reader) *LedgerAPI {
	return &LedgerAPI{chain: chain, reader: reader, validator: NewValidator()}
}

func (api *LedgerAPI) validate(p any) error {
	if err := api.validator.Validate(p); err != nil {
		return invalidParams(err)
	}
	return nil
}

func (api *LedgerAPI) ChainId() hexutil.Uint64 {
	return hexutil.Uint64(api.chain.ChainID())
}

func (api *LedgerAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.chain.BlockNumber())
}

func (api *LedgerAPI) GetTransactionCount(ctx context.Context, p AccountQuery) (hexutil.Uint64, error) {
	if err := api.validate(p); err != nil {
		return 0, err
	}
	nonce, err := api.chain.PendingNonce(ctx, common.HexToAddress(p.Address))
	if err != nil {
		return 0, err
	}
	return hexutil.Uint64(nonce), nil
}

func (api *LedgerAPI) SendTransaction(ctx context.Context, tx node.RPCTx) (common.Hash, error) {
	if err := api.validate(tx); err != nil {
		return common.Hash{}, err
	}
	hash, err := api.chain.SendTransaction(ctx, tx.Signed())
	if err != nil {
		return common.Hash{}, submitError(err)
	}
	return hash, nil
}

// GetTransactionReceipt returns null while the transaction is pending.
func (api *LedgerAPI) GetTransactionReceipt(p ReceiptQuery) (*node.Receipt, error) {
	if err := api.validate(p); err != nil {
		return nil, err
	}
	r, ok := api.chain.Receipt(common.HexToHash(p.Hash))
	if !ok {
		return nil, nil
	}
	return r, nil
}

func (api *LedgerAPI) GetLoanDetails(ctx context.Context, p LoanQuery) (*loan.Loan, error) {
	l, err := api.reader.GetLoanDetails(ctx, uint64(p.LoanID))
	if err != nil {
		return nil, ledgerError(err)
	}
	return l, nil
}

func (api *LedgerAPI) GetAllLoanIds(ctx context.Context) ([]hexutil.Uint64, error) {
	ids, err := api.reader.GetAllLoanIDs(ctx)
	if err != nil {
		return nil, ledgerError(err)
	}
	out := make([]hexutil.Uint64, len(ids))
	for i, id := range ids {
		out[i] = hexutil.Uint64(id)
	}
	return out, nil
}

func (api *LedgerAPI) GetLenderInvestment(ctx context.Context, p InvestmentQuery) (loan.Amount, error) {
	if err := api.validate(p); err != nil {
		return loan.Amount{}, err
	}
	a, err := api.reader.GetLenderInvestment(ctx, uint64(p.LoanID), common.HexToAddress(p.Lender))
	if err != nil {
		return loan.Amount{}, ledgerError(err)
	}
	return a, nil
}

func (api *LedgerAPI) GetLenders(ctx context.Context, p LoanQuery) ([]common.Address, error) {
	out, err := api.reader.GetLenders(ctx, uint64(p.LoanID))
	if err != nil {
		return nil, ledgerError(err)
	}
	return out, nil
}

func (api *LedgerAPI) GetBalance(ctx context.Context, p AccountQuery) (loan.Amount, error) {
	if err := api.validate(p); err != nil {
		return loan.Amount{}, err
	}
	a, err := api.reader.BalanceOf(ctx, common.HexToAddress(p.Address))
	if err != nil {
		return loan.Amount{}, ledgerError(err)
	}
	return a, nil
}

func (api *LedgerAPI) GetEvents(ctx context.Context, p EventsQuery) ([]event.Event, error) {
	if err := api.validate(p); err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit == 0 {
		limit = maxPageSize
	}
	evs, err := api.reader.Events(ctx, uint64(p.AfterSeq), limit)
	if err != nil {
		return nil, ledgerError(err)
	}
	return evs, nil
}
