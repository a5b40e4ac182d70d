package node

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Ledger call names carried in Tx.Method.
const (
	MethodCreateLoan    = "createLoan"
	MethodFundLoan      = "fundLoan"
	MethodRepayLoan     = "repayLoan"
	MethodCancelLoan    = "cancelLoan"
	MethodMarkDefaulted = "markDefaulted"
)

func KnownMethod(m string) bool {
	switch m {
	case MethodCreateLoan, MethodFundLoan, MethodRepayLoan, MethodCancelLoan, MethodMarkDefaulted:
		return true
	}
	return false
}

// Tx is the signed payload. Args holds the JSON-encoded call arguments.
type Tx struct {
	ChainID uint64
	Nonce   uint64
	Method  string
	Args    []byte
	Value   *big.Int
}

// LoanArgs are the arguments of every call that targets an existing loan.
type LoanArgs struct {
	LoanID uint64 `json:"loanId"`
}

func (tx *Tx) SigningHash() common.Hash {
	return rlpHash(tx)
}

type SignedTx struct {
	Tx  Tx
	Sig []byte
}

func (s *SignedTx) Hash() common.Hash {
	return rlpHash(s)
}

// Sender recovers the signing address from the 65-byte [R || S || V] signature.
func (s *SignedTx) Sender() (common.Address, error) {
	if len(s.Sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature length %d: %w", len(s.Sig), ErrInvalidSignature)
	}
	hash := s.Tx.SigningHash()
	pub, err := crypto.SigToPub(hash.Bytes(), s.Sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func SignTx(tx Tx, key *ecdsa.PrivateKey) (*SignedTx, error) {
	if key == nil {
		return nil, errors.New("node: nil signing key")
	}
	sig, err := crypto.Sign(tx.SigningHash().Bytes(), key)
	if err != nil {
		return nil, err
	}
	return &SignedTx{Tx: tx, Sig: sig}, nil
}

// NewTx encodes args as JSON into a Tx.
func NewTx(chainID, nonce uint64, method string, args any, value *big.Int) (Tx, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Tx{}, fmt.Errorf("encode %s args: %w", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}
	return Tx{ChainID: chainID, Nonce: nonce, Method: method, Args: raw, Value: value}, nil
}

func rlpHash(v any) common.Hash {
	enc, err := rlp.EncodeToBytes(v)
	if err != nil {
		// only reachable with a negative Value, which no constructor produces
		panic(fmt.Sprintf("rlp encode: %v", err))
	}
	return crypto.Keccak256Hash(enc)
}

// RPCTx is the JSON form of a SignedTx.
type RPCTx struct {
	ChainID hexutil.Uint64 `json:"chainId"`
	Nonce   hexutil.Uint64 `json:"nonce"`
	Method  string         `json:"method" validate:"required"`
	Args    hexutil.Bytes  `json:"args"`
	Value   *hexutil.Big   `json:"value"`
	Sig     hexutil.Bytes  `json:"sig" validate:"required,len=65"`
}

func ToRPC(s *SignedTx) RPCTx {
	out := RPCTx{
		ChainID: hexutil.Uint64(s.Tx.ChainID),
		Nonce:   hexutil.Uint64(s.Tx.Nonce),
		Method:  s.Tx.Method,
		Args:    s.Tx.Args,
		Sig:     s.Sig,
	}
	if s.Tx.Value != nil {
		out.Value = (*hexutil.Big)(s.Tx.Value)
	}
	return out
}

func (r RPCTx) Signed() *SignedTx {
	value := new(big.Int)
	if r.Value != nil {
		value = r.Value.ToInt()
	}
	return &SignedTx{
		Tx: Tx{
			ChainID: uint64(r.ChainID),
			Nonce:   uint64(r.Nonce),
			Method:  r.Method,
			Args:    r.Args,
			Value:   value,
		},
		Sig: r.Sig,
	}
}
