// Package nats fans sync events out to a NATS JetStream stream so external
// consumers (notifiers, indexers, other instances) can follow the sync
// lifecycle. Optional; the in-process bus is the default.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EventBus = (*EventBus)(nil)

const (
	streamName    = "MAILSYNC_EVENTS"
	subjectPrefix = "mailsync.events."

	// dedupWindow is the JetStream duplicate-suppression window keyed on the
	// event ID, so a redelivered publish is stored once.
	dedupWindow = 2 * time.Minute
)

// EventBus implements driven.EventBus over NATS JetStream. Every event
// category maps to one subject under mailsync.events.>; publishes carry the
// event ID as the JetStream message ID for dedup.
type EventBus struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewEventBus creates the bus and provisions the stream if missing.
// The connection stays owned by the caller.
func NewEventBus(conn *nats.Conn, logger *slog.Logger) (*EventBus, error) {
	if logger == nil {
		logger = slog.Default()
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.StreamInfo(streamName)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       streamName,
			Subjects:   []string{subjectPrefix + ">"},
			Duplicates: dedupWindow,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", streamName, err)
	}

	return &EventBus{conn: conn, js: js, logger: logger}, nil
}

// subjectFor maps an event category to its stream subject
func subjectFor(category domain.EventCategory) string {
	return subjectPrefix + string(category)
}

// Publish delivers an event to the category's subject. The event ID doubles
// as the JetStream message ID.
func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	opts := []nats.PubOpt{nats.Context(ctx)}
	if event.ID != "" {
		opts = append(opts, nats.MsgId(event.ID))
	}

	if _, err := b.js.Publish(subjectFor(event.Category), data, opts...); err != nil {
		return fmt.Errorf("publish %s: %w", string(event.Type), err)
	}
	return nil
}

// Subscribe registers a handler for one category. Delivery starts at new
// messages; the stream's history is not replayed.
func (b *EventBus) Subscribe(category domain.EventCategory, handler func(domain.Event)) (func(), error) {
	sub, err := b.js.Subscribe(subjectFor(category), func(msg *nats.Msg) {
		var ev domain.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Warn("dropping malformed event", "subject", msg.Subject, "error", err)
			return
		}
		handler(ev)
	}, nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", string(category), err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil {
				b.logger.Warn("unsubscribe failed", "subject", subjectFor(category), "error", err)
			}
		})
	}
	return unsubscribe, nil
}

// Close drains all subscriptions. The connection is left open for the caller.
func (b *EventBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ping checks connection health for the readiness probe.
func (b *EventBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats: not connected (status %s)", b.conn.Status())
	}
	return nil
}
