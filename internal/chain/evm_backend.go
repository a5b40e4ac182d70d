package chain

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"microloan/internal/domain/event"
	"microloan/internal/domain/loan"
)

//go:embed microloan.abi.json
var microloanABIJSON string

// MicroloanABI is the interface of the Solidity deployment of the ledger.
var MicroloanABI = mustParseABI(microloanABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI: %v", err))
	}
	return parsed
}

var contractMethods = map[Op]string{
	OpCreate:  "createLoan",
	OpFund:    "fundLoan",
	OpRepay:   "repayLoan",
	OpCancel:  "cancelLoan",
	OpDefault: "markDefaulted",
}

// Custom error name -> ledger reason.
var contractErrors = map[string]loan.Reason{
	"LoanNotFound":          loan.ReasonNotFound,
	"InvalidAmount":         loan.ReasonInvalidAmount,
	"DurationTooShort":      loan.ReasonDurationTooShort,
	"DurationTooLong":       loan.ReasonDurationTooLong,
	"RateOutOfRange":        loan.ReasonRateOutOfRange,
	"EmptyPurpose":          loan.ReasonEmptyPurpose,
	"ValueNotAccepted":      loan.ReasonValueNotAccepted,
	"NotFunding":            loan.ReasonNotFunding,
	"NotActive":             loan.ReasonNotActive,
	"ZeroValue":             loan.ReasonZeroValue,
	"FullyFunded":           loan.ReasonFullyFunded,
	"InsufficientRepayment": loan.ReasonInsufficientRepayment,
	"NotBorrower":           loan.ReasonNotBorrower,
	"HasFunds":              loan.ReasonHasFunds,
	"NotDue":                loan.ReasonNotDue,
	"TransferFailed":        loan.ReasonTransferFailed,
}

var contractEvents = map[string]event.Type{
	"LoanCreated":   event.TypeLoanCreated,
	"LoanFunded":    event.TypeLoanFunded,
	"LoanActivated": event.TypeLoanActivated,
	"LoanRepaid":    event.TypeLoanRepaid,
	"LenderPaid":    event.TypeLenderPaid,
	"LoanDefaulted": event.TypeLoanDefaulted,
	"LoanCancelled": event.TypeLoanCancelled,
}

// Contract status enum order.
var contractStatuses = []loan.Status{
	loan.StatusFunding,
	loan.StatusActive,
	loan.StatusRepaid,
	loan.StatusDefaulted,
	loan.StatusCancelled,
}

// EVMClient defines the subset of the Ethereum RPC used by the backend.
type EVMClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// DialEVMClient initialises an EVM RPC client for the provided endpoint.
func DialEVMClient(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// EVMBackend drives a Solidity deployment of the ledger at a fixed address.
type EVMBackend struct {
	client   EVMClient
	contract common.Address
}

func NewEVMBackend(client EVMClient, contract common.Address) *EVMBackend {
	return &EVMBackend{client: client, contract: contract}
}

type evmTx struct {
	tx     *gethtypes.Transaction
	signer gethtypes.Signer
}

func (t *evmTx) SigningHash() common.Hash { return t.signer.Hash(t.tx) }

func (b *EVMBackend) ChainID(ctx context.Context) (uint64, error) {
	id, err := b.client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain id: %w", err)
	}
	return id.Uint64(), nil
}

func (b *EVMBackend) pack(c Call) ([]byte, error) {
	method := contractMethods[c.Op]
	if c.Op != OpCreate {
		return MicroloanABI.Pack(method, new(big.Int).SetUint64(c.LoanID))
	}
	in := c.Create
	return MicroloanABI.Pack(method,
		in.Amount.Big(),
		in.Purpose,
		new(big.Int).SetUint64(in.DurationDays),
		new(big.Int).SetUint64(uint64(in.InterestRateBPS)),
		in.DetailsURI,
		in.CollateralToken,
		in.CollateralAmount.Big(),
	)
}

// Prepare estimates gas against pending state, so a call the contract would
// reject fails here with the decoded ledger error.
func (b *EVMBackend) Prepare(ctx context.Context, from common.Address, c Call) (Unsigned, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	data, err := b.pack(c)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", c.Op, err)
	}
	chainID, err := b.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	to := b.contract
	value := c.Value.Big()
	gas, err := b.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, GasPrice: gasPrice, Value: value, Data: data})
	if err != nil {
		return nil, revertError(err)
	}
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	return &evmTx{tx: tx, signer: gethtypes.LatestSignerForChainID(chainID)}, nil
}

func (b *EVMBackend) Send(ctx context.Context, u Unsigned, sig []byte) (common.Hash, error) {
	t, ok := u.(*evmTx)
	if !ok {
		return common.Hash{}, fmt.Errorf("evm backend cannot send %T", u)
	}
	signed, err := t.tx.WithSignature(t.signer, sig)
	if err != nil {
		return common.Hash{}, fmt.Errorf("attach signature: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, revertError(err)
	}
	return signed.Hash(), nil
}

func (b *EVMBackend) Receipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	rcpt, err := b.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrPending
	}
	if err != nil {
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}
	if rcpt == nil {
		return nil, ErrPending
	}
	out := &Receipt{TxHash: hash, Succeeded: rcpt.Status == gethtypes.ReceiptStatusSuccessful}
	if rcpt.BlockNumber != nil {
		out.BlockNumber = rcpt.BlockNumber.Uint64()
	}
	if !out.Succeeded {
		out.Reason, out.Message = b.replay(ctx, hash, rcpt.BlockNumber)
		return out, nil
	}
	for _, lg := range rcpt.Logs {
		if lg == nil || lg.Address != b.contract {
			continue
		}
		ev, err := decodeLog(lg)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			continue
		}
		if len(out.Events) == 0 {
			out.LoanID = ev.LoanID
		}
		out.Events = append(out.Events, *ev)
	}
	return out, nil
}

// replay re-executes a failed transaction as a call against the parent block
// to recover its revert data. Receipts do not carry it.
func (b *EVMBackend) replay(ctx context.Context, hash common.Hash, block *big.Int) (loan.Reason, string) {
	tx, _, err := b.client.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		return loan.ReasonUnknown, "revert reason unavailable"
	}
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return loan.ReasonUnknown, "revert reason unavailable"
	}
	var at *big.Int
	if block != nil && block.Sign() > 0 {
		at = new(big.Int).Sub(block, big.NewInt(1))
	}
	_, err = b.client.CallContract(ctx, ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}, at)
	if err == nil {
		return loan.ReasonUnknown, "transaction failed without revert data"
	}
	reason, msg, _ := decodeRevert(err)
	return reason, msg
}

// decodeRevert extracts the ledger reason from an execution error. Custom
// errors are matched by selector, Error(string) reverts are unpacked into
// the message.
func decodeRevert(err error) (loan.Reason, string, bool) {
	if errors.Is(err, core.ErrInsufficientFunds) {
		return loan.ReasonInsufficientBalance, err.Error(), true
	}
	var de rpc.DataError
	if !errors.As(err, &de) {
		return loan.ReasonUnknown, err.Error(), false
	}
	hexData, ok := de.ErrorData().(string)
	if !ok {
		return loan.ReasonUnknown, err.Error(), false
	}
	data, decErr := hexutil.Decode(hexData)
	if decErr != nil || len(data) < 4 {
		return loan.ReasonUnknown, err.Error(), false
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	if e, lookupErr := MicroloanABI.ErrorByID(sel); lookupErr == nil {
		if reason, known := contractErrors[e.Name]; known {
			return reason, e.Name, true
		}
		return loan.ReasonUnknown, e.Name, true
	}
	if msg, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
		return loan.ReasonUnknown, msg, true
	}
	return loan.ReasonUnknown, err.Error(), false
}

func revertError(err error) error {
	reason, msg, ok := decodeRevert(err)
	if !ok {
		return err
	}
	if sentinel := loan.ErrorForReason(reason); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("execution reverted: %s", msg)
}

// decodeLog maps a contract log to a ledger event. Logs of unknown events
// yield nil.
func decodeLog(lg *gethtypes.Log) (*event.Event, error) {
	if len(lg.Topics) == 0 {
		return nil, nil
	}
	ev, err := MicroloanABI.EventByID(lg.Topics[0])
	if err != nil {
		return nil, nil
	}
	typ, ok := contractEvents[ev.Name]
	if !ok {
		return nil, nil
	}
	fields := make(map[string]any)
	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("decode %s topics: %w", ev.Name, err)
	}
	if err := ev.Inputs.NonIndexed().UnpackIntoMap(fields, lg.Data); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", ev.Name, err)
	}
	out := &event.Event{Type: typ, Attributes: make(map[string]string, len(fields))}
	for name, v := range fields {
		if name == "loanId" {
			id, ok := v.(*big.Int)
			if !ok || !id.IsUint64() {
				return nil, fmt.Errorf("decode %s: bad loan id", ev.Name)
			}
			out.LoanID = id.Uint64()
			continue
		}
		out.Attributes[name] = formatABIValue(v)
	}
	return out, nil
}

func formatABIValue(v any) string {
	switch x := v.(type) {
	case common.Address:
		return x.Hex()
	case *big.Int:
		return x.String()
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func (b *EVMBackend) view(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := MicroloanABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := b.contract
	raw, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, revertError(err)
	}
	out, err := MicroloanABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func bigAmount(v any) (loan.Amount, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return loan.Amount{}, fmt.Errorf("expected uint256, got %T", v)
	}
	return loan.AmountFromBig(b)
}

func bigUint(v any) (uint64, error) {
	b, ok := v.(*big.Int)
	if !ok || !b.IsUint64() {
		return 0, fmt.Errorf("expected uint64-sized uint256, got %v", v)
	}
	return b.Uint64(), nil
}

func (b *EVMBackend) LoanDetails(ctx context.Context, id uint64) (*loan.Loan, error) {
	out, err := b.view(ctx, "getLoanDetails", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	if len(out) != 12 {
		return nil, fmt.Errorf("getLoanDetails: %d outputs", len(out))
	}
	l := &loan.Loan{ID: id}
	var ok bool
	if l.Borrower, ok = out[0].(common.Address); !ok {
		return nil, fmt.Errorf("getLoanDetails: bad borrower %T", out[0])
	}
	if l.Purpose, ok = out[4].(string); !ok {
		return nil, fmt.Errorf("getLoanDetails: bad purpose %T", out[4])
	}
	status, ok := out[5].(uint8)
	if !ok || int(status) >= len(contractStatuses) {
		return nil, fmt.Errorf("getLoanDetails: bad status %v", out[5])
	}
	l.Status = contractStatuses[status]

	amounts := []struct {
		dst *loan.Amount
		idx int
	}{{&l.AmountRequested, 1}, {&l.AmountFunded, 6}, {&l.AmountRepaid, 7}}
	for _, a := range amounts {
		if *a.dst, err = bigAmount(out[a.idx]); err != nil {
			return nil, fmt.Errorf("getLoanDetails: %w", err)
		}
	}
	rate, err := bigUint(out[2])
	if err != nil || rate > uint64(^uint32(0)) {
		return nil, fmt.Errorf("getLoanDetails: bad rate %v", out[2])
	}
	l.InterestRateBPS = uint32(rate)
	if l.DurationSeconds, err = bigUint(out[3]); err != nil {
		return nil, fmt.Errorf("getLoanDetails: %w", err)
	}
	times := []struct {
		dst *int64
		idx int
	}{{&l.RequestedAt, 8}, {&l.FundedAt, 9}, {&l.DueDate, 10}, {&l.ClosedAt, 11}}
	for _, t := range times {
		v, err := bigUint(out[t.idx])
		if err != nil {
			return nil, fmt.Errorf("getLoanDetails: %w", err)
		}
		*t.dst = int64(v)
	}
	return l, nil
}

func (b *EVMBackend) LoanIDs(ctx context.Context) ([]uint64, error) {
	out, err := b.view(ctx, "getAllLoanIds")
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAllLoanIds: bad output %T", out[0])
	}
	ids := make([]uint64, 0, len(raw))
	for _, v := range raw {
		id, err := bigUint(v)
		if err != nil {
			return nil, fmt.Errorf("getAllLoanIds: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *EVMBackend) LenderInvestment(ctx context.Context, id uint64, lender common.Address) (loan.Amount, error) {
	out, err := b.view(ctx, "getLenderInvestment", new(big.Int).SetUint64(id), lender)
	if err != nil {
		return loan.Amount{}, err
	}
	return bigAmount(out[0])
}

func (b *EVMBackend) Lenders(ctx context.Context, id uint64) ([]common.Address, error) {
	out, err := b.view(ctx, "getLenders", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	lenders, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getLenders: bad output %T", out[0])
	}
	return lenders, nil
}

func (b *EVMBackend) Balance(ctx context.Context, addr common.Address) (loan.Amount, error) {
	bal, err := b.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return loan.Amount{}, fmt.Errorf("balance: %w", err)
	}
	return loan.AmountFromBig(bal)
}
