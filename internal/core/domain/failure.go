package domain

import "time"

// ErrorClass is the retry-relevant classification of a failure
type ErrorClass string

const (
	// ErrorClassTransient failures are retried with backoff
	ErrorClassTransient ErrorClass = "transient"
	// ErrorClassPermanent failures are never retried
	ErrorClassPermanent ErrorClass = "permanent"
	// ErrorClassUnknown failures are retried like transient ones but capped
	ErrorClassUnknown ErrorClass = "unknown"
)

// Classification is the result of classifying a raw provider failure
type Classification struct {
	Class      ErrorClass    `json:"class"`
	HTTPStatus int           `json:"http_status,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Message    string        `json:"message"`
}

// Retryable reports whether this class of error is ever worth retrying.
func (c Classification) Retryable() bool {
	return c.Class != ErrorClassPermanent
}

// FailureStatus is the lifecycle state of a per-item sync failure
type FailureStatus string

const (
	FailureStatusPending   FailureStatus = "pending"
	FailureStatusRetrying  FailureStatus = "retrying"
	FailureStatusResolved  FailureStatus = "resolved"
	FailureStatusExhausted FailureStatus = "exhausted"
	FailureStatusPermanent FailureStatus = "permanent"
	FailureStatusDismissed FailureStatus = "dismissed"
)

// Open reports whether the failure still needs attention (not terminal-success).
func (s FailureStatus) Open() bool {
	return s == FailureStatusPending || s == FailureStatusRetrying ||
		s == FailureStatusExhausted || s == FailureStatusPermanent
}

// SyncFailure records the failure lifecycle of a single email within an
// account. There is at most one open record per (email, account); repeat
// failures update it in place.
type SyncFailure struct {
	ID         string        `json:"id"`
	EmailID    string        `json:"email_id"`
	AccountID  string        `json:"account_id"`
	Class      ErrorClass    `json:"class"`
	HTTPStatus int           `json:"http_status,omitempty"`
	Message    string        `json:"message"`
	Status     FailureStatus `json:"status"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	FirstFailedAt time.Time  `json:"first_failed_at"`
	LastAttemptAt time.Time  `json:"last_attempt_at"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// FailureStats rolls up failure counts by status so sync can report partial
// success (N succeeded, M failed, K retrying) instead of a pass/fail boolean.
type FailureStats struct {
	AccountID      string `json:"account_id,omitempty"`
	PendingCount   int    `json:"pending_count"`
	RetryingCount  int    `json:"retrying_count"`
	ResolvedCount  int    `json:"resolved_count"`
	ExhaustedCount int    `json:"exhausted_count"`
	PermanentCount int    `json:"permanent_count"`
	DismissedCount int    `json:"dismissed_count"`
}

// TotalOpen returns the number of failures still awaiting a retry or a user action.
func (s FailureStats) TotalOpen() int {
	return s.PendingCount + s.RetryingCount + s.ExhaustedCount + s.PermanentCount
}
