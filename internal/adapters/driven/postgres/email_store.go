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
var _ driven.EmailStore = (*EmailStore)(nil)

// EmailStore implements driven.EmailStore using PostgreSQL. The whole record
// is stored as a JSONB document; the extracted columns exist for filtering.
type EmailStore struct {
	db *DB
}

// NewEmailStore creates a new EmailStore
func NewEmailStore(db *DB) *EmailStore {
	return &EmailStore{db: db}
}

// Upsert creates or replaces a record by ID
func (s *EmailStore) Upsert(ctx context.Context, rec *domain.EmailRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal email record: %w", err)
	}
	labels, err := json.Marshal(rec.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	if rec.Labels == nil {
		labels = []byte("[]")
	}

	query := `
		INSERT INTO email_records (id, account_id, thread_id, draft, dirty, labels, doc, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			thread_id = EXCLUDED.thread_id,
			draft = EXCLUDED.draft,
			dirty = EXCLUDED.dirty,
			labels = EXCLUDED.labels,
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.AccountID,
		rec.ThreadID,
		rec.Draft,
		rec.Dirty(),
		labels,
		doc,
		rec.UpdatedAt,
	)
	return err
}

// Get retrieves a record by ID
func (s *EmailStore) Get(ctx context.Context, id string) (*domain.EmailRecord, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM email_records WHERE id = $1`, id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec domain.EmailRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal email record: %w", err)
	}
	return &rec, nil
}

// Find returns records matching the filter
func (s *EmailStore) Find(ctx context.Context, filter driven.EmailFilter) ([]*domain.EmailRecord, error) {
	query := `SELECT doc FROM email_records WHERE 1=1`
	var args []any

	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if filter.ThreadID != "" {
		args = append(args, filter.ThreadID)
		query += fmt.Sprintf(" AND thread_id = $%d", len(args))
	}
	if filter.Label != "" {
		args = append(args, filter.Label)
		query += fmt.Sprintf(" AND labels ? $%d", len(args))
	}
	if filter.DirtyOnly {
		query += " AND dirty"
	}

	query += " ORDER BY id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.EmailRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rec domain.EmailRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal email record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Delete removes a record by ID. Deleting a missing record is not an error.
func (s *EmailStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM email_records WHERE id = $1`, id)
	return err
}

// DeleteCachedByAccount removes an account's cached records. Drafts are
// never deleted.
func (s *EmailStore) DeleteCachedByAccount(ctx context.Context, accountID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM email_records WHERE account_id = $1 AND NOT draft`, accountID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountByAccount returns the number of stored records for an account
func (s *EmailStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_records WHERE account_id = $1`, accountID,
	).Scan(&n)
	return n, err
}

// Ping checks backend health
func (s *EmailStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
