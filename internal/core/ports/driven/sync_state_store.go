package driven

import (
	"context"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// SyncStateStore handles per-account sync state persistence
type SyncStateStore interface {
	// Save creates or updates sync state
	Save(ctx context.Context, state *domain.SyncState) error

	// Get retrieves sync state for an account
	Get(ctx context.Context, accountID string) (*domain.SyncState, error)

	// List retrieves sync states for all accounts
	List(ctx context.Context) ([]*domain.SyncState, error)

	// Delete deletes sync state for an account
	Delete(ctx context.Context, accountID string) error

	// UpdateStatus updates only the status field
	UpdateStatus(ctx context.Context, accountID string, status domain.SyncStatus) error

	// UpdateCursor updates the incremental cursor
	UpdateCursor(ctx context.Context, accountID string, cursor string) error
}

// AdaptiveStateStore persists per-account adaptive polling state so cadence
// survives restarts
type AdaptiveStateStore interface {
	// Save creates or updates adaptive state
	Save(ctx context.Context, state *domain.AdaptiveState) error

	// Get retrieves adaptive state for an account
	Get(ctx context.Context, accountID string) (*domain.AdaptiveState, error)

	// Delete removes adaptive state for an account
	Delete(ctx context.Context, accountID string) error
}
