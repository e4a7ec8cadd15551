package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// FailureStore persists per-item sync failure records
type FailureStore interface {
	// Save creates or updates a failure record
	Save(ctx context.Context, failure *domain.SyncFailure) error

	// Get retrieves a failure record by ID
	Get(ctx context.Context, id string) (*domain.SyncFailure, error)

	// GetOpen retrieves the open (non-resolved, non-dismissed) record for an
	// (email, account) pair, or domain.ErrNotFound
	GetOpen(ctx context.Context, accountID, emailID string) (*domain.SyncFailure, error)

	// ListByAccount retrieves failure records for an account; an empty
	// accountID means all accounts
	ListByAccount(ctx context.Context, accountID string) ([]*domain.SyncFailure, error)

	// ListDue retrieves pending records whose NextRetryAt is at or before now;
	// an empty accountID means all accounts
	ListDue(ctx context.Context, accountID string, now time.Time) ([]*domain.SyncFailure, error)

	// ListByStatus retrieves records with the given status; an empty
	// accountID means all accounts
	ListByStatus(ctx context.Context, accountID string, status domain.FailureStatus) ([]*domain.SyncFailure, error)

	// Stats rolls up counts by status; an empty accountID means all accounts
	Stats(ctx context.Context, accountID string) (*domain.FailureStats, error)

	// DeleteByAccount removes all failure records for an account
	DeleteByAccount(ctx context.Context, accountID string) error
}
