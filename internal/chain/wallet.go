package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type WalletEventKind string

const (
	AccountsChanged WalletEventKind = "accountsChanged"
	ChainChanged    WalletEventKind = "chainChanged"
	Disconnected    WalletEventKind = "disconnected"
)

// WalletEvent is a notification pushed by the wallet. Account is the zero
// address when the wallet exposes no account anymore.
type WalletEvent struct {
	Kind    WalletEventKind
	Account common.Address
	ChainID uint64
}

// Wallet holds the user's keys. Every call may block on user approval.
type Wallet interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	SignHash(ctx context.Context, account common.Address, hash common.Hash) ([]byte, error)
	Events() <-chan WalletEvent
}

type ApprovalKind string

const (
	ApproveConnect ApprovalKind = "connect"
	ApproveSign    ApprovalKind = "sign"
)

type ApprovalRequest struct {
	Kind    ApprovalKind
	Account common.Address
	Hash    common.Hash
}

// Approver decides a wallet prompt. It may block until the user answers or
// ctx is done.
type Approver func(ctx context.Context, req ApprovalRequest) bool

func AutoApprove(context.Context, ApprovalRequest) bool { return true }

// KeyWallet is an in-process wallet over secp256k1 keys.
type KeyWallet struct {
	mu      sync.Mutex
	keys    map[common.Address]*ecdsa.PrivateKey
	order   []common.Address
	active  common.Address
	chainID uint64
	approve Approver
	events  chan WalletEvent
}

func NewKeyWallet(chainID uint64, keys ...*ecdsa.PrivateKey) *KeyWallet {
	w := &KeyWallet{
		keys:    make(map[common.Address]*ecdsa.PrivateKey),
		chainID: chainID,
		approve: AutoApprove,
		events:  make(chan WalletEvent, 16),
	}
	for _, k := range keys {
		w.AddKey(k)
	}
	return w
}

// LoadKeyWallet reads a hex-encoded private key file.
func LoadKeyWallet(chainID uint64, keyFile string) (*KeyWallet, error) {
	key, err := crypto.LoadECDSA(keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", keyFile, err)
	}
	return NewKeyWallet(chainID, key), nil
}

func (w *KeyWallet) SetApprover(a Approver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a == nil {
		a = AutoApprove
	}
	w.approve = a
}

// AddKey registers key; the first key added becomes the active account.
func (w *KeyWallet) AddKey(key *ecdsa.PrivateKey) common.Address {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.keys[addr]; !ok {
		w.order = append(w.order, addr)
	}
	w.keys[addr] = key
	if w.active == (common.Address{}) {
		w.active = addr
	}
	return addr
}

// RequestAccounts returns the active account first.
func (w *KeyWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	w.mu.Lock()
	if w.active == (common.Address{}) && len(w.order) > 0 {
		w.active = w.order[0]
	}
	active, approve := w.active, w.approve
	out := []common.Address{}
	if active != (common.Address{}) {
		out = append(out, active)
	}
	for _, a := range w.order {
		if a != active {
			out = append(out, a)
		}
	}
	w.mu.Unlock()

	if len(out) == 0 {
		return nil, ErrNoWallet
	}
	if !approve(ctx, ApprovalRequest{Kind: ApproveConnect, Account: active}) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrUserRejected
	}
	return out, nil
}

func (w *KeyWallet) ChainID(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, ctx.Err()
}

func (w *KeyWallet) SignHash(ctx context.Context, account common.Address, hash common.Hash) ([]byte, error) {
	w.mu.Lock()
	key, ok := w.keys[account]
	approve := w.approve
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("account %s: %w", account.Hex(), ErrNoWallet)
	}
	if !approve(ctx, ApprovalRequest{Kind: ApproveSign, Account: account, Hash: hash}) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrUserRejected
	}
	return crypto.Sign(hash.Bytes(), key)
}

func (w *KeyWallet) Events() <-chan WalletEvent { return w.events }

// SwitchAccount makes addr the active account and notifies listeners.
func (w *KeyWallet) SwitchAccount(addr common.Address) error {
	w.mu.Lock()
	if _, ok := w.keys[addr]; !ok {
		w.mu.Unlock()
		return fmt.Errorf("account %s: %w", addr.Hex(), ErrNoWallet)
	}
	w.active = addr
	chainID := w.chainID
	w.mu.Unlock()
	w.emit(WalletEvent{Kind: AccountsChanged, Account: addr, ChainID: chainID})
	return nil
}

func (w *KeyWallet) SwitchChain(chainID uint64) {
	w.mu.Lock()
	w.chainID = chainID
	active := w.active
	w.mu.Unlock()
	w.emit(WalletEvent{Kind: ChainChanged, Account: active, ChainID: chainID})
}

// Disconnect forgets the active account.
func (w *KeyWallet) Disconnect() {
	w.mu.Lock()
	w.active = common.Address{}
	chainID := w.chainID
	w.mu.Unlock()
	w.emit(WalletEvent{Kind: Disconnected, ChainID: chainID})
}

// emit never blocks; a listener that falls 16 events behind misses the rest.
func (w *KeyWallet) emit(ev WalletEvent) {
	select {
	case w.events <- ev:
	default:
	}
}
