package domain

import "time"

// EventCategory groups events into independent pub/sub channels.
// Consumers subscribe per category and are torn down with their owner.
type EventCategory string

const (
	// EventCategoryLifecycle carries per-item sync lifecycle transitions
	EventCategoryLifecycle EventCategory = "lifecycle"
	// EventCategoryConflict carries pending-conflict raised/resolved events
	EventCategoryConflict EventCategory = "conflict"
	// EventCategoryThrottle carries rate-limiter status transitions
	EventCategoryThrottle EventCategory = "throttle"
	// EventCategoryBankruptcy carries bankruptcy declarations
	EventCategoryBankruptcy EventCategory = "bankruptcy"
	// EventCategoryUserAction carries qualifying local user actions
	// (send/archive/label) that reset the adaptive sync cadence
	EventCategoryUserAction EventCategory = "user-action"
)

// EventType names a specific event within a category
type EventType string

const (
	EventQueued         EventType = "queued"
	EventProcessing     EventType = "processing"
	EventSynced         EventType = "synced"
	EventFailed         EventType = "failed"
	EventRetryScheduled EventType = "retry-scheduled"

	EventConflictRaised   EventType = "conflict-raised"
	EventConflictResolved EventType = "conflict-resolved"

	EventThrottleChanged EventType = "throttle-changed"

	EventBankruptcyDeclared EventType = "bankruptcy-declared"

	EventUserSend    EventType = "user-send"
	EventUserArchive EventType = "user-archive"
	EventUserLabel   EventType = "user-label"
)

// QualifiesForIntervalReset reports whether a user action resets the
// adaptive polling cadence for its account.
func (t EventType) QualifiesForIntervalReset() bool {
	return t == EventUserSend || t == EventUserArchive || t == EventUserLabel
}

// Event is a single published message on the event bus.
type Event struct {
	ID        string         `json:"id"`
	Category  EventCategory  `json:"category"`
	Type      EventType      `json:"type"`
	AccountID string         `json:"account_id,omitempty"`
	EmailID   string         `json:"email_id,omitempty"`
	Provider  ProviderType   `json:"provider,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	At        time.Time      `json:"at"`
}
