package domain

import "time"

// AdaptiveState tracks per-account polling activity used to pick the next
// sync interval tier. Persisted so cadence survives restarts.
type AdaptiveState struct {
	AccountID string `json:"account_id"`

	// ConsecutiveIdleSyncs counts syncs in a row that found no new messages
	ConsecutiveIdleSyncs int `json:"consecutive_idle_syncs"`

	// LastSyncHadActivity is true when the most recent sync found new messages
	LastSyncHadActivity bool `json:"last_sync_had_activity"`

	// LastUserActionAt is when a qualifying local action (send/archive/label)
	// last forced the active tier
	LastUserActionAt *time.Time `json:"last_user_action_at,omitempty"`

	// CurrentInterval is the most recently computed polling delay
	CurrentInterval time.Duration `json:"current_interval"`

	UpdatedAt time.Time `json:"updated_at"`
}

// BreakerState is the lifecycle state of a provider circuit breaker
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)
