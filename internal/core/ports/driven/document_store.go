package driven

import (
	"context"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// EmailStore is the local document store for canonical email records.
// Implementations guarantee atomic per-document upsert/delete; the sync
// engine never assumes multi-document transactions.
type EmailStore interface {
	// Upsert creates or replaces a record by ID
	Upsert(ctx context.Context, rec *domain.EmailRecord) error

	// Get retrieves a record by ID
	Get(ctx context.Context, id string) (*domain.EmailRecord, error)

	// Find returns records matching the filter
	Find(ctx context.Context, filter EmailFilter) ([]*domain.EmailRecord, error)

	// Delete removes a record by ID. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteCachedByAccount removes an account's cached records. Drafts are
	// never deleted. Returns the number of records removed.
	DeleteCachedByAccount(ctx context.Context, accountID string) (int, error)

	// CountByAccount returns the number of stored records for an account
	CountByAccount(ctx context.Context, accountID string) (int, error)

	// Ping checks backend health
	Ping(ctx context.Context) error
}

// EmailFilter selects email records. Zero values mean "any".
type EmailFilter struct {
	AccountID string
	ThreadID  string
	Label     string
	DirtyOnly bool
	Limit     int
	Offset    int
}
