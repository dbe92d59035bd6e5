// Package memory contains an in-memory event publisher for tests and dev mode.
package memory

import (
	"context"
	"sync"

	"github.com/admitkit/deadline-crawler/internal/events"
)

// Publisher records published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []events.Event
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event.
func (p *Publisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []events.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]events.Event, len(p.events))
	copy(out, p.events)
	return out
}
