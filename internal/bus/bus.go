// Package bus is the in-process publish mechanism for inbound SMS events.
// Publish dispatches synchronously to every subscribed listener, in
// subscription order, before returning.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Enriquefft/openclaw-sms-webhook/internal/sms"
)

// SourceSMSWebhook tags envelopes published by the inbound SMS webhook.
const SourceSMSWebhook = "webhook.sms"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus closed")

// Envelope wraps a published event with its origin.
type Envelope struct {
	ID         string           `json:"id"`
	Source     string           `json:"source"`
	ReceivedAt time.Time        `json:"received_at"`
	Event      sms.MessageEvent `json:"event"`
}

// NewEnvelope tags ev with source, a fresh ID and the current time.
func NewEnvelope(source string, ev sms.MessageEvent) Envelope {
	return Envelope{
		ID:         uuid.New().String(),
		Source:     source,
		ReceivedAt: time.Now().UTC(),
		Event:      ev,
	}
}

// Publisher hands an envelope to whoever is listening.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Listener consumes published envelopes.
type Listener interface {
	Handle(ctx context.Context, env Envelope) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, env Envelope) error

func (f ListenerFunc) Handle(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

type subscription struct {
	name     string
	listener Listener
}

// Bus fans each envelope out to all subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a named listener. Names only label errors and logs.
func (b *Bus) Subscribe(name string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, listener: l})
}

// Publish calls every listener once, even when an earlier one fails. The
// returned error joins all listener failures.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := s.listener.Handle(ctx, env); err != nil {
			errs = append(errs, fmt.Errorf("listener %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close stops further publishing.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// ListenerCount returns the number of subscribed listeners.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

var _ Publisher = (*Bus)(nil)
