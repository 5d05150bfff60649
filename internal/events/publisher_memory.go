package events

import (
	"context"
	"sync"
	"time"
)

// InMemoryPublisher is an append-only sink used in tests and when no stream
// backend is configured.
type InMemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewInMemoryPublisher returns an empty sink.
func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (p *InMemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// OfKind filters the snapshot by event kind.
func (p *InMemoryPublisher) OfKind(kind Kind) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
