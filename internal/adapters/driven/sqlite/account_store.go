package sqlite

import (
	"context"
	"database/sql"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.AccountStore = (*AccountStore)(nil)

// AccountStore implements driven.AccountStore using SQLite
type AccountStore struct {
	db *DB
}

// NewAccountStore creates a new AccountStore
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

// Save creates or updates an account
func (s *AccountStore) Save(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, email, provider, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			provider = excluded.provider,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		account.ID,
		account.Email,
		string(account.Provider),
		account.Enabled,
		ms(account.CreatedAt),
		ms(account.UpdatedAt),
	)
	return err
}

// Get retrieves an account by ID
func (s *AccountStore) Get(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT id, email, provider, enabled, created_at, updated_at
		FROM accounts
		WHERE id = ?
	`
	var acc domain.Account
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&acc.ID, &acc.Email, &acc.Provider, &acc.Enabled, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	acc.CreatedAt = msTime(createdAt)
	acc.UpdatedAt = msTime(updatedAt)
	return &acc, nil
}

// List retrieves all accounts
func (s *AccountStore) List(ctx context.Context) ([]*domain.Account, error) {
	query := `
		SELECT id, email, provider, enabled, created_at, updated_at
		FROM accounts
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var acc domain.Account
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&acc.ID, &acc.Email, &acc.Provider, &acc.Enabled, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}
		acc.CreatedAt = msTime(createdAt)
		acc.UpdatedAt = msTime(updatedAt)
		accounts = append(accounts, &acc)
	}
	return accounts, rows.Err()
}

// Delete removes an account
func (s *AccountStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}
