package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"microloan/internal/chain"
)

// Session is the adapter side of a wallet session.
type Session interface {
	HandleAccountChanged(account common.Address)
	HandleChainChanged(chainID uint64)
}

// Views is the cache that must not outlive a session.
type Views interface {
	Invalidate(ctx context.Context) error
	Reload(ctx context.Context) error
}

// Change is delivered to subscribers after the session and views were
// updated. Err carries a failed invalidate or reload.
type Change struct {
	Event chain.WalletEvent
	Err   error
}

type subscriber struct {
	id uint64
	fn func(Change)
}

// Watcher reacts to wallet notifications. An account change invalidates all
// views; a chain change forces a full reload because the deployment behind
// the views may be a different one.
type Watcher struct {
	session Session
	views   Views
	log     *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
}

func NewWatcher(s Session, v Views, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{session: s, views: v, log: log.With("component", "session")}
}

// Subscribe registers fn. Callbacks run synchronously in registration order;
// the returned func removes fn and is safe to call more than once.
func (w *Watcher) Subscribe(fn func(Change)) (unsubscribe func()) {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.subs = append(w.subs, subscriber{id: id, fn: fn})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, s := range w.subs {
			if s.id == id {
				w.subs = append(w.subs[:i:i], w.subs[i+1:]...)
				return
			}
		}
	}
}

// Handle applies one wallet event.
func (w *Watcher) Handle(ctx context.Context, ev chain.WalletEvent) {
	var err error
	switch ev.Kind {
	case chain.AccountsChanged:
		w.session.HandleAccountChanged(ev.Account)
		err = w.views.Invalidate(ctx)
	case chain.Disconnected:
		w.session.HandleAccountChanged(common.Address{})
		err = w.views.Invalidate(ctx)
	case chain.ChainChanged:
		w.session.HandleChainChanged(ev.ChainID)
		err = w.views.Reload(ctx)
	default:
		w.log.Warn("unknown wallet event", "kind", ev.Kind)
		return
	}
	if err != nil {
		w.log.Error("refreshing views failed", "kind", ev.Kind, "err", err)
	} else {
		w.log.Info("session changed", "kind", ev.Kind, "account", ev.Account.Hex(), "chain_id", ev.ChainID)
	}

	w.mu.Lock()
	subs := append([]subscriber(nil), w.subs...)
	w.mu.Unlock()
	for _, s := range subs {
		s.fn(Change{Event: ev, Err: err})
	}
}

// Run handles events until ctx is done or events is closed.
func (w *Watcher) Run(ctx context.Context, events <-chan chain.WalletEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.Handle(ctx, ev)
		}
	}
}
