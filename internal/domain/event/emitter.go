package event

import (
	"context"
	"sync"
)

// Emitter broadcasts committed events to downstream subscribers (RPC feeds,
// metrics, logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// Recorder keeps every emitted event in emission order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Multi fans out to several emitters in order.
type Multi []Emitter

func (m Multi) Emit(e Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(e)
		}
	}
}

type Repository interface {
	Append(ctx context.Context, e *Event) error
	// List returns up to limit events with Seq > afterSeq, oldest first.
	List(ctx context.Context, afterSeq uint64, limit int) ([]Event, error)
	ListByLoan(ctx context.Context, loanID uint64) ([]Event, error)
}
