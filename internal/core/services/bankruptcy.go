package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// DefaultBankruptcyThreshold is how stale an account may get before
// incremental catch-up is abandoned for a fresh full sync.
const DefaultBankruptcyThreshold = 7 * 24 * time.Hour

// BankruptcyChecker decides when an account's incremental state is too stale
// to be worth catching up, and performs the reset. Past a provider's cursor
// retention window the catch-up would fail anyway, or be slower than a
// fresh pull.
type BankruptcyChecker struct {
	emails    driven.EmailStore
	syncStore driven.SyncStateStore
	adaptive  driven.AdaptiveStateStore
	bus       driven.EventBus
	threshold time.Duration
	logger    *slog.Logger

	now func() time.Time
}

// BankruptcyCheckerConfig holds dependencies for BankruptcyChecker.
type BankruptcyCheckerConfig struct {
	EmailStore    driven.EmailStore
	SyncStore     driven.SyncStateStore
	AdaptiveStore driven.AdaptiveStateStore
	Bus           driven.EventBus
	Threshold     time.Duration
	Logger        *slog.Logger
}

// NewBankruptcyChecker creates a checker with the default 7-day threshold
// unless configured otherwise.
func NewBankruptcyChecker(cfg BankruptcyCheckerConfig) *BankruptcyChecker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultBankruptcyThreshold
	}
	return &BankruptcyChecker{
		emails:    cfg.EmailStore,
		syncStore: cfg.SyncStore,
		adaptive:  cfg.AdaptiveStore,
		bus:       cfg.Bus,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// ShouldDeclare reports whether the account's last sync is older than the
// staleness threshold. Accounts that have never completed an initial sync
// are not bankrupt; they simply need a full sync.
func (b *BankruptcyChecker) ShouldDeclare(state *domain.SyncState) bool {
	if state == nil || state.LastSyncAt == nil || !state.InitialSyncDone {
		return false
	}
	return b.now().Sub(*state.LastSyncAt) > b.threshold
}

// Declare discards the account's incremental state: cached email records are
// deleted (drafts survive), the sync cursor and progress reset to pre-sync
// defaults, and adaptive cadence starts over. Emits an auditable event.
func (b *BankruptcyChecker) Declare(ctx context.Context, state *domain.SyncState) error {
	accountID := state.AccountID

	removed, err := b.emails.DeleteCachedByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("delete cached emails: %w", err)
	}

	staleSince := time.Time{}
	if state.LastSyncAt != nil {
		staleSince = *state.LastSyncAt
	}

	state.Reset()
	if err := b.syncStore.Save(ctx, state); err != nil {
		return fmt.Errorf("reset sync state: %w", err)
	}

	if err := b.adaptive.Delete(ctx, accountID); err != nil && err != domain.ErrNotFound {
		b.logger.Warn("failed to reset adaptive state", "account_id", accountID, "error", err)
	}

	b.logger.Info("declared sync bankruptcy",
		"account_id", accountID,
		"stale_since", staleSince,
		"records_dropped", removed,
	)

	if b.bus != nil {
		_ = b.bus.Publish(ctx, domain.Event{
			ID:        uuid.NewString(),
			Category:  domain.EventCategoryBankruptcy,
			Type:      domain.EventBankruptcyDeclared,
			AccountID: accountID,
			Provider:  state.Provider,
			Payload: map[string]any{
				"records_dropped": removed,
				"stale_since":     staleSince,
			},
			At: b.now(),
		})
	}

	return nil
}
