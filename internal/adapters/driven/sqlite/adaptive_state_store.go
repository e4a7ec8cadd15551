package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.AdaptiveStateStore = (*AdaptiveStateStore)(nil)

// AdaptiveStateStore implements driven.AdaptiveStateStore using SQLite.
// Intervals are stored as milliseconds.
type AdaptiveStateStore struct {
	db *DB
}

// NewAdaptiveStateStore creates a new AdaptiveStateStore
func NewAdaptiveStateStore(db *DB) *AdaptiveStateStore {
	return &AdaptiveStateStore{db: db}
}

// Save creates or updates adaptive state
func (s *AdaptiveStateStore) Save(ctx context.Context, state *domain.AdaptiveState) error {
	query := `
		INSERT INTO adaptive_states (account_id, consecutive_idle_syncs, last_sync_had_activity,
			last_user_action_at, current_interval_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			consecutive_idle_syncs = excluded.consecutive_idle_syncs,
			last_sync_had_activity = excluded.last_sync_had_activity,
			last_user_action_at = excluded.last_user_action_at,
			current_interval_ms = excluded.current_interval_ms,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		state.AccountID,
		state.ConsecutiveIdleSyncs,
		state.LastSyncHadActivity,
		nullMs(state.LastUserActionAt),
		state.CurrentInterval.Milliseconds(),
		ms(state.UpdatedAt),
	)
	return err
}

// Get retrieves adaptive state for an account
func (s *AdaptiveStateStore) Get(ctx context.Context, accountID string) (*domain.AdaptiveState, error) {
	query := `
		SELECT account_id, consecutive_idle_syncs, last_sync_had_activity,
			last_user_action_at, current_interval_ms, updated_at
		FROM adaptive_states
		WHERE account_id = ?
	`
	var state domain.AdaptiveState
	var lastUserActionAt sql.NullInt64
	var intervalMs, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&state.AccountID,
		&state.ConsecutiveIdleSyncs,
		&state.LastSyncHadActivity,
		&lastUserActionAt,
		&intervalMs,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	state.LastUserActionAt = msPtr(lastUserActionAt)
	state.CurrentInterval = time.Duration(intervalMs) * time.Millisecond
	state.UpdatedAt = msTime(updatedAt)
	return &state, nil
}

// Delete removes adaptive state for an account
func (s *AdaptiveStateStore) Delete(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM adaptive_states WHERE account_id = ?`, accountID)
	return err
}
