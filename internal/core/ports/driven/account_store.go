package driven

import (
	"context"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

// AccountStore handles connected-account persistence
type AccountStore interface {
	// Save creates or updates an account
	Save(ctx context.Context, account *domain.Account) error

	// Get retrieves an account by ID
	Get(ctx context.Context, id string) (*domain.Account, error)

	// List retrieves all accounts
	List(ctx context.Context) ([]*domain.Account, error)

	// Delete removes an account
	Delete(ctx context.Context, id string) error
}
