package sqlite

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

// ConflictAuditStore implements driven.ConflictAuditStore using SQLite.
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
	changes := []byte("[]")
	if audit.Changes != nil {
		var err error
		changes, err = json.Marshal(audit.Changes)
		if err != nil {
			return fmt.Errorf("marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO conflict_audits (id, account_id, email_id, type, strategy, changes, resolved_by, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		audit.ID,
		audit.AccountID,
		audit.EmailID,
		string(audit.Type),
		string(audit.Strategy),
		string(changes),
		audit.ResolvedBy,
		ms(audit.ResolvedAt),
	)
	return err
}

// ListByAccount retrieves audit records for an account, newest first
func (s *ConflictAuditStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.ConflictAudit, error) {
	query := `
		SELECT id, account_id, email_id, type, strategy, changes, resolved_by, resolved_at
		FROM conflict_audits
		WHERE account_id = ?
		ORDER BY resolved_at DESC
	`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var audits []*domain.ConflictAudit
	for rows.Next() {
		var a domain.ConflictAudit
		var changes string
		var resolvedAt int64
		if err := rows.Scan(
			&a.ID, &a.AccountID, &a.EmailID, &a.Type, &a.Strategy, &changes, &a.ResolvedBy, &resolvedAt,
		); err != nil {
			return nil, err
		}
		if changes != "" {
			if err := json.Unmarshal([]byte(changes), &a.Changes); err != nil {
				return nil, fmt.Errorf("unmarshal changes: %w", err)
			}
		}
		a.ResolvedAt = msTime(resolvedAt)
		audits = append(audits, &a)
	}
	return audits, rows.Err()
}

// PreferenceStore implements driven.PreferenceStore using SQLite
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
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id, type) DO UPDATE SET
			strategy = excluded.strategy,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		pref.AccountID,
		string(pref.Type),
		string(pref.Strategy),
		ms(pref.UpdatedAt),
	)
	return err
}

// GetPreference retrieves the preference for an account and conflict type
func (s *PreferenceStore) GetPreference(ctx context.Context, accountID string, conflictType domain.ConflictType) (*domain.ConflictPreference, error) {
	query := `
		SELECT account_id, type, strategy, updated_at
		FROM conflict_preferences
		WHERE account_id = ? AND type = ?
	`
	var pref domain.ConflictPreference
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query, accountID, string(conflictType)).Scan(
		&pref.AccountID, &pref.Type, &pref.Strategy, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pref.UpdatedAt = msTime(updatedAt)
	return &pref, nil
}

// DeletePreference removes a preference
func (s *PreferenceStore) DeletePreference(ctx context.Context, accountID string, conflictType domain.ConflictType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conflict_preferences WHERE account_id = ? AND type = ?`,
		accountID, string(conflictType),
	)
	return err
}
