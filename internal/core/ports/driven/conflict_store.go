package driven

import (
	"context"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// ConflictAuditStore archives resolved conflicts for history. Records are
// immutable once written.
type ConflictAuditStore interface {
	// Append writes an audit record
	Append(ctx context.Context, audit *domain.ConflictAudit) error

	// ListByAccount retrieves audit records for an account, newest first
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.ConflictAudit, error)
}

// PreferenceStore persists standing conflict-resolution preferences
type PreferenceStore interface {
	// SavePreference creates or updates a preference
	SavePreference(ctx context.Context, pref *domain.ConflictPreference) error

	// GetPreference retrieves the preference for an account and conflict
	// type, or domain.ErrNotFound
	GetPreference(ctx context.Context, accountID string, conflictType domain.ConflictType) (*domain.ConflictPreference, error)

	// DeletePreference removes a preference
	DeletePreference(ctx context.Context, accountID string, conflictType domain.ConflictType) error
}
