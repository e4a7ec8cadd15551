package sqlite

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SyncStateStore = (*SyncStateStore)(nil)

// SyncStateStore implements driven.SyncStateStore using SQLite
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			provider = excluded.provider,
			status = excluded.status,
			cursor = excluded.cursor,
			page_token = excluded.page_token,
			initial_sync_done = excluded.initial_sync_done,
			emails_synced = excluded.emails_synced,
			total_emails = excluded.total_emails,
			error_count = excluded.error_count,
			last_error = excluded.last_error,
			last_sync_at = excluded.last_sync_at,
			next_sync_at = excluded.next_sync_at,
			sync_started_at = excluded.sync_started_at,
			updated_at = excluded.updated_at
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
		nullMs(state.LastSyncAt),
		nullMs(state.NextSyncAt),
		nullMs(state.SyncStartedAt),
		ms(state.UpdatedAt),
	)
	return err
}

// Get retrieves sync state for an account
func (s *SyncStateStore) Get(ctx context.Context, accountID string) (*domain.SyncState, error) {
	query := `SELECT ` + syncStateColumns + ` FROM sync_states WHERE account_id = ?`

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
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_states WHERE account_id = ?`, accountID)
	return err
}

// UpdateStatus updates only the status field
func (s *SyncStateStore) UpdateStatus(ctx context.Context, accountID string, status domain.SyncStatus) error {
	query := `
		INSERT INTO sync_states (account_id, status)
		VALUES (?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			status = excluded.status
	`
	_, err := s.db.ExecContext(ctx, query, accountID, string(status))
	return err
}

// UpdateCursor updates the incremental cursor
func (s *SyncStateStore) UpdateCursor(ctx context.Context, accountID string, cursor string) error {
	query := `
		INSERT INTO sync_states (account_id, cursor)
		VALUES (?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			cursor = excluded.cursor
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
	var lastSyncAt, nextSyncAt, syncStartedAt sql.NullInt64
	var updatedAt int64

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
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	state.LastSyncAt = msPtr(lastSyncAt)
	state.NextSyncAt = msPtr(nextSyncAt)
	state.SyncStartedAt = msPtr(syncStartedAt)
	state.UpdatedAt = msTime(updatedAt)
	return &state, nil
}
