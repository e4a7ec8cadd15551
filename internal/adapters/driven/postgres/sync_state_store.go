package postgres

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SyncStateStore = (*SyncStateStore)(nil)

// SyncStateStore implements driven.SyncStateStore using PostgreSQL
type SyncStateStore struct {
	db *DB
}

// NewSyncStateStore creates a new SyncStateStore
func NewSyncStateStore(db *DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

const syncStateColumns = `account_id, provider, status, cursor, page_token, initial_sync_done,
	emails_synced, total_emails, error_count, last_error,
	last_sync_at, next_sync_at, sync_started_at, updated_at`

// Save creates or updates sync state
func (s *SyncStateStore) Save(ctx context.Context, state *domain.SyncState) error {
	query := `
		INSERT INTO sync_states (` + syncStateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (account_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			status = EXCLUDED.status,
			cursor = EXCLUDED.cursor,
			page_token = EXCLUDED.page_token,
			initial_sync_done = EXCLUDED.initial_sync_done,
			emails_synced = EXCLUDED.emails_synced,
			total_emails = EXCLUDED.total_emails,
			error_count = EXCLUDED.error_count,
			last_error = EXCLUDED.last_error,
			last_sync_at = EXCLUDED.last_sync_at,
			next_sync_at = EXCLUDED.next_sync_at,
			sync_started_at = EXCLUDED.sync_started_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		state.AccountID,
		string(state.Provider),
		string(state.Status),
		state.Cursor,
		state.PageToken,
		state.InitialSyncDone,
		state.EmailsSynced,
		state.TotalEmailsToSync,
		state.ErrorCount,
		state.LastError,
		NullTime(state.LastSyncAt),
		NullTime(state.NextSyncAt),
		NullTime(state.SyncStartedAt),
		state.UpdatedAt,
	)
	return err
}

// Get retrieves sync state for an account
func (s *SyncStateStore) Get(ctx context.Context, accountID string) (*domain.SyncState, error) {
	query := `SELECT ` + syncStateColumns + ` FROM sync_states WHERE account_id = $1`

	state, err := scanSyncState(s.db.QueryRowContext(ctx, query, accountID))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// List retrieves sync states for all accounts
func (s *SyncStateStore) List(ctx context.Context) ([]*domain.SyncState, error) {
	query := `SELECT ` + syncStateColumns + ` FROM sync_states ORDER BY account_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*domain.SyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// Delete deletes sync state for an account
func (s *SyncStateStore) Delete(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_states WHERE account_id = $1`, accountID)
	return err
}

// UpdateStatus updates only the status field
func (s *SyncStateStore) UpdateStatus(ctx context.Context, accountID string, status domain.SyncStatus) error {
	query := `
		INSERT INTO sync_states (account_id, status)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = now()
	`
	_, err := s.db.ExecContext(ctx, query, accountID, string(status))
	return err
}

// UpdateCursor updates the incremental cursor
func (s *SyncStateStore) UpdateCursor(ctx context.Context, accountID string, cursor string) error {
	query := `
		INSERT INTO sync_states (account_id, cursor)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET
			cursor = EXCLUDED.cursor,
			updated_at = now()
	`
	_, err := s.db.ExecContext(ctx, query, accountID, cursor)
	return err
}

// scanner covers sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanSyncState(row scanner) (*domain.SyncState, error) {
	var state domain.SyncState
	var lastSyncAt, nextSyncAt, syncStartedAt sql.NullTime

	err := row.Scan(
		&state.AccountID,
		&state.Provider,
		&state.Status,
		&state.Cursor,
		&state.PageToken,
		&state.InitialSyncDone,
		&state.EmailsSynced,
		&state.TotalEmailsToSync,
		&state.ErrorCount,
		&state.LastError,
		&lastSyncAt,
		&nextSyncAt,
		&syncStartedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	state.LastSyncAt = TimePtr(lastSyncAt)
	state.NextSyncAt = TimePtr(nextSyncAt)
	state.SyncStartedAt = TimePtr(syncStartedAt)
	return &state, nil
}
