package driven

import (
	"context"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// EventBus is the explicit publish/subscribe channel used for every event
// category (sync lifecycle, conflicts, throttle changes, user actions).
// Subscriptions are torn down with their owner via the returned unsubscribe.
type EventBus interface {
	// Publish delivers an event to all subscribers of its category.
	// Publishing never blocks on slow consumers.
	Publish(ctx context.Context, event domain.Event) error

	// Subscribe registers a handler for one category and returns an
	// unsubscribe function, safe to call more than once.
	Subscribe(category domain.EventCategory, handler func(domain.Event)) (unsubscribe func(), err error)

	// Close tears down all subscriptions
	Close() error
}
