// Package memory holds in-process adapter implementations used by the
// default embedded deployment.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EventBus = (*EventBus)(nil)

// subscriberBuffer bounds how many undelivered events a slow consumer can
// hold before new ones are dropped.
const subscriberBuffer = 256

// EventBus is the in-process publish/subscribe bus. Each subscriber drains
// its own buffered channel on a dedicated goroutine, so Publish never blocks
// on a slow consumer; when a buffer fills, events for that subscriber are
// dropped and counted.
type EventBus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	nextID int
	subs   map[domain.EventCategory]map[int]*subscriber

	wg sync.WaitGroup
}

type subscriber struct {
	ch      chan domain.Event
	dropped int
}

// NewEventBus creates the bus. Pass nil to use slog.Default().
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		logger: logger,
		subs:   make(map[domain.EventCategory]map[int]*subscriber),
	}
}

// Publish delivers an event to all subscribers of its category.
func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}

	for _, sub := range b.subs[event.Category] {
		select {
		case sub.ch <- event:
		default:
			sub.dropped++
			b.logger.Warn("event dropped for slow subscriber",
				"category", string(event.Category), "type", string(event.Type),
				"dropped_total", sub.dropped)
		}
	}
	return nil
}

// Subscribe registers a handler for one category and returns an unsubscribe
// function, safe to call more than once.
func (b *EventBus) Subscribe(category domain.EventCategory, handler func(domain.Event)) (func(), error) {
	sub := &subscriber{ch: make(chan domain.Event, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[category] == nil {
		b.subs[category] = make(map[int]*subscriber)
	}
	id := b.nextID
	b.nextID++
	b.subs[category][id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range sub.ch {
			handler(ev)
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[category], id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return unsubscribe, nil
}

// Close tears down all subscriptions and waits for in-flight handlers.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for id, sub := range subs {
			delete(subs, id)
			close(sub.ch)
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
