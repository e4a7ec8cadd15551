package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FailureStore = (*FailureStore)(nil)

// FailureStore implements driven.FailureStore using SQLite
type FailureStore struct {
	db *DB
}

// NewFailureStore creates a new FailureStore
func NewFailureStore(db *DB) *FailureStore {
	return &FailureStore{db: db}
}

const failureColumns = `id, email_id, account_id, class, http_status, message, status,
	retry_count, max_retries, first_failed_at, last_attempt_at, next_retry_at, resolved_at`

// Save creates or updates a failure record
func (s *FailureStore) Save(ctx context.Context, failure *domain.SyncFailure) error {
	query := `
		INSERT INTO sync_failures (` + failureColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			class = excluded.class,
			http_status = excluded.http_status,
			message = excluded.message,
			status = excluded.status,
			retry_count = excluded.retry_count,
			max_retries = excluded.max_retries,
			last_attempt_at = excluded.last_attempt_at,
			next_retry_at = excluded.next_retry_at,
			resolved_at = excluded.resolved_at
	`
	_, err := s.db.ExecContext(ctx, query,
		failure.ID,
		failure.EmailID,
		failure.AccountID,
		string(failure.Class),
		failure.HTTPStatus,
		failure.Message,
		string(failure.Status),
		failure.RetryCount,
		failure.MaxRetries,
		ms(failure.FirstFailedAt),
		ms(failure.LastAttemptAt),
		nullMs(failure.NextRetryAt),
		nullMs(failure.ResolvedAt),
	)
	return err
}

// Get retrieves a failure record by ID
func (s *FailureStore) Get(ctx context.Context, id string) (*domain.SyncFailure, error) {
	query := `SELECT ` + failureColumns + ` FROM sync_failures WHERE id = ?`

	f, err := scanFailure(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// GetOpen retrieves the open record for an (email, account) pair
func (s *FailureStore) GetOpen(ctx context.Context, accountID, emailID string) (*domain.SyncFailure, error) {
	query := `
		SELECT ` + failureColumns + `
		FROM sync_failures
		WHERE account_id = ? AND email_id = ?
			AND status IN ('pending', 'retrying', 'exhausted', 'permanent')
		ORDER BY first_failed_at DESC
		LIMIT 1
	`
	f, err := scanFailure(s.db.QueryRowContext(ctx, query, accountID, emailID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListByAccount retrieves failure records for an account; an empty accountID
// means all accounts
func (s *FailureStore) ListByAccount(ctx context.Context, accountID string) ([]*domain.SyncFailure, error) {
	query := `SELECT ` + failureColumns + ` FROM sync_failures`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY first_failed_at`
	return s.queryFailures(ctx, query, args...)
}

// ListDue retrieves pending records whose NextRetryAt is at or before now
func (s *FailureStore) ListDue(ctx context.Context, accountID string, now time.Time) ([]*domain.SyncFailure, error) {
	query := `
		SELECT ` + failureColumns + `
		FROM sync_failures
		WHERE status = 'pending' AND next_retry_at IS NOT NULL AND next_retry_at <= ?
	`
	args := []any{now.UnixMilli()}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY next_retry_at`
	return s.queryFailures(ctx, query, args...)
}

// ListByStatus retrieves records with the given status
func (s *FailureStore) ListByStatus(ctx context.Context, accountID string, status domain.FailureStatus) ([]*domain.SyncFailure, error) {
	query := `SELECT ` + failureColumns + ` FROM sync_failures WHERE status = ?`
	args := []any{string(status)}
	if accountID != "" {
		query += ` AND account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY first_failed_at`
	return s.queryFailures(ctx, query, args...)
}

// Stats rolls up counts by status
func (s *FailureStore) Stats(ctx context.Context, accountID string) (*domain.FailureStats, error) {
	query := `SELECT status, COUNT(*) FROM sync_failures`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.FailureStats{AccountID: accountID}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch domain.FailureStatus(status) {
		case domain.FailureStatusPending:
			stats.PendingCount = count
		case domain.FailureStatusRetrying:
			stats.RetryingCount = count
		case domain.FailureStatusResolved:
			stats.ResolvedCount = count
		case domain.FailureStatusExhausted:
			stats.ExhaustedCount = count
		case domain.FailureStatusPermanent:
			stats.PermanentCount = count
		case domain.FailureStatusDismissed:
			stats.DismissedCount = count
		}
	}
	return stats, rows.Err()
}

// DeleteByAccount removes all failure records for an account
func (s *FailureStore) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_failures WHERE account_id = ?`, accountID)
	return err
}

func (s *FailureStore) queryFailures(ctx context.Context, query string, args ...any) ([]*domain.SyncFailure, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []*domain.SyncFailure
	for rows.Next() {
		f, err := scanFailure(rows)
		if err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func scanFailure(row scanner) (*domain.SyncFailure, error) {
	var f domain.SyncFailure
	var firstFailedAt, lastAttemptAt int64
	var nextRetryAt, resolvedAt sql.NullInt64

	err := row.Scan(
		&f.ID,
		&f.EmailID,
		&f.AccountID,
		&f.Class,
		&f.HTTPStatus,
		&f.Message,
		&f.Status,
		&f.RetryCount,
		&f.MaxRetries,
		&firstFailedAt,
		&lastAttemptAt,
		&nextRetryAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	f.FirstFailedAt = msTime(firstFailedAt)
	f.LastAttemptAt = msTime(lastAttemptAt)
	f.NextRetryAt = msPtr(nextRetryAt)
	f.ResolvedAt = msPtr(resolvedAt)
	return &f, nil
}
