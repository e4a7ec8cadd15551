package driving

import (
	"context"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// SyncOrchestrator is the top-level scheduling surface exposed to the UI
// layer and the HTTP API.
type SyncOrchestrator interface {
	// Start begins one reschedule loop per registered account
	Start(ctx context.Context) error

	// Stop cancels every per-account timer and unsubscribes all listeners.
	// Synchronous: no timer or subscription outlives the call.
	Stop()

	// TriggerSync runs a sync for the account immediately, outside the
	// schedule. Fails fast with domain.ErrSyncInProgress when one is running.
	TriggerSync(ctx context.Context, accountID string) error

	// SwitchAccount cancels the account's pending timer and syncs immediately
	SwitchAccount(ctx context.Context, accountID string) error

	// GetProgress returns the account's sync progress snapshot
	GetProgress(ctx context.Context, accountID string) (*domain.Progress, error)
}

// ConflictManager exposes pending-conflict inspection and manual resolution.
type ConflictManager interface {
	// ListPending returns unresolved conflicts; empty accountID means all
	ListPending(ctx context.Context, accountID string) ([]*domain.PendingConflict, error)

	// Resolve applies a user-directed choice to a pending conflict
	Resolve(ctx context.Context, conflictID string, strategy domain.ResolutionStrategy, merged *domain.EmailRecord, resolvedBy string) (*domain.Resolution, error)

	// SetPreference pins a standing resolution for a conflict type
	SetPreference(ctx context.Context, pref *domain.ConflictPreference) error
}

// FailureQuery exposes failure inspection and manual retry actions.
type FailureQuery interface {
	// Stats rolls up failure counts; empty accountID means all accounts
	Stats(ctx context.Context, accountID string) (*domain.FailureStats, error)

	// List returns failure records; empty accountID means all accounts
	List(ctx context.Context, accountID string) ([]*domain.SyncFailure, error)

	// RetryAllExhausted resets exhausted failures to immediately-eligible pending
	RetryAllExhausted(ctx context.Context, accountID string) (int, error)

	// Dismiss marks a failure as dismissed
	Dismiss(ctx context.Context, failureID string) error
}
