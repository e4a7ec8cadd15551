package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.ConflictAuditStore = (*ConflictAuditStore)(nil)
	_ driven.PreferenceStore    = (*PreferenceStore)(nil)
)

// ConflictAuditStore implements driven.ConflictAuditStore using PostgreSQL.
// Records are append-only.
type ConflictAuditStore struct {
	db *DB
}

// NewConflictAuditStore creates a new ConflictAuditStore
func NewConflictAuditStore(db *DB) *ConflictAuditStore {
	return &ConflictAuditStore{db: db}
}

// Append writes an audit record
func (s *ConflictAuditStore) Append(ctx context.Context, audit *domain.ConflictAudit) error {
	changes, err := json.Marshal(audit.Changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	if audit.Changes == nil {
		changes = []byte("[]")
	}

	query := `
		INSERT INTO conflict_audits (id, account_id, email_id, type, strategy, changes, resolved_by, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		audit.ID,
		audit.AccountID,
		audit.EmailID,
		string(audit.Type),
		string(audit.Strategy),
		changes,
		audit.ResolvedBy,
		audit.ResolvedAt,
	)
	return err
}

// ListByAccount retrieves audit records for an account, newest first
func (s *ConflictAuditStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.ConflictAudit, error) {
	query := `
		SELECT id, account_id, email_id, type, strategy, changes, resolved_by, resolved_at
		FROM conflict_audits
		WHERE account_id = $1
		ORDER BY resolved_at DESC
	`
	args := []any{accountID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var audits []*domain.ConflictAudit
	for rows.Next() {
		var a domain.ConflictAudit
		var changes []byte
		if err := rows.Scan(
			&a.ID, &a.AccountID, &a.EmailID, &a.Type, &a.Strategy, &changes, &a.ResolvedBy, &a.ResolvedAt,
		); err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &a.Changes); err != nil {
				return nil, fmt.Errorf("unmarshal changes: %w", err)
			}
		}
		audits = append(audits, &a)
	}
	return audits, rows.Err()
}

// PreferenceStore implements driven.PreferenceStore using PostgreSQL
type PreferenceStore struct {
	db *DB
}

// NewPreferenceStore creates a new PreferenceStore
func NewPreferenceStore(db *DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// SavePreference creates or updates a preference
func (s *PreferenceStore) SavePreference(ctx context.Context, pref *domain.ConflictPreference) error {
	query := `
		INSERT INTO conflict_preferences (account_id, type, strategy, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, type) DO UPDATE SET
			strategy = EXCLUDED.strategy,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		pref.AccountID,
		string(pref.Type),
		string(pref.Strategy),
		pref.UpdatedAt,
	)
	return err
}

// GetPreference retrieves the preference for an account and conflict type
func (s *PreferenceStore) GetPreference(ctx context.Context, accountID string, conflictType domain.ConflictType) (*domain.ConflictPreference, error) {
	query := `
		SELECT account_id, type, strategy, updated_at
		FROM conflict_preferences
		WHERE account_id = $1 AND type = $2
	`
	var pref domain.ConflictPreference
	err := s.db.QueryRowContext(ctx, query, accountID, string(conflictType)).Scan(
		&pref.AccountID, &pref.Type, &pref.Strategy, &pref.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// DeletePreference removes a preference
func (s *PreferenceStore) DeletePreference(ctx context.Context, accountID string, conflictType domain.ConflictType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conflict_preferences WHERE account_id = $1 AND type = $2`,
		accountID, string(conflictType),
	)
	return err
}
