package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// AdaptiveIntervals holds the polling tiers. Intervals are clamped to
// [Min, Max] after tier selection.
type AdaptiveIntervals struct {
	Active   time.Duration // sync just found new messages, or recent user action
	Baseline time.Duration // default cadence
	Mid      time.Duration // >= MidIdleThreshold consecutive idle syncs
	Slow     time.Duration // >= SlowIdleThreshold consecutive idle syncs
	Min      time.Duration
	Max      time.Duration

	MidIdleThreshold  int
	SlowIdleThreshold int
}

// DefaultAdaptiveIntervals returns the standard tier ladder.
func DefaultAdaptiveIntervals() AdaptiveIntervals {
	return AdaptiveIntervals{
		Active:            30 * time.Second,
		Baseline:          2 * time.Minute,
		Mid:               5 * time.Minute,
		Slow:              15 * time.Minute,
		Min:               15 * time.Second,
		Max:               30 * time.Minute,
		MidIdleThreshold:  3,
		SlowIdleThreshold: 10,
	}
}

// AdaptiveScheduler computes the next polling delay per account from recent
// sync activity and local user actions. State persists across restarts.
type AdaptiveScheduler struct {
	store     driven.AdaptiveStateStore
	intervals AdaptiveIntervals
	disabled  bool
	logger    *slog.Logger

	now func() time.Time
}

// AdaptiveSchedulerConfig holds dependencies for AdaptiveScheduler.
type AdaptiveSchedulerConfig struct {
	Store     driven.AdaptiveStateStore
	Intervals AdaptiveIntervals
	// Disabled falls back to the fixed baseline interval for all accounts
	Disabled bool
	Logger   *slog.Logger
}

// NewAdaptiveScheduler creates the service.
func NewAdaptiveScheduler(cfg AdaptiveSchedulerConfig) *AdaptiveScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	iv := cfg.Intervals
	if iv.Baseline == 0 {
		iv = DefaultAdaptiveIntervals()
	}
	return &AdaptiveScheduler{
		store:     cfg.Store,
		intervals: iv,
		disabled:  cfg.Disabled,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordSyncResult updates idle streaks after a sync attempt and returns the
// next interval for the account.
func (a *AdaptiveScheduler) RecordSyncResult(ctx context.Context, accountID string, foundNewMessages bool) (time.Duration, error) {
	if a.disabled {
		return a.clamp(a.intervals.Baseline), nil
	}

	state, err := a.load(ctx, accountID)
	if err != nil {
		return 0, err
	}

	if foundNewMessages {
		state.ConsecutiveIdleSyncs = 0
		state.LastSyncHadActivity = true
	} else {
		state.ConsecutiveIdleSyncs++
		state.LastSyncHadActivity = false
	}

	interval := a.tierFor(state)
	state.CurrentInterval = interval
	state.UpdatedAt = a.now()

	if err := a.store.Save(ctx, state); err != nil {
		return 0, err
	}
	return interval, nil
}

// RecordUserAction resets the idle streak and forces the active tier on the
// next schedule, regardless of prior idle streak.
func (a *AdaptiveScheduler) RecordUserAction(ctx context.Context, accountID string) error {
	if a.disabled {
		return nil
	}

	state, err := a.load(ctx, accountID)
	if err != nil {
		return err
	}

	now := a.now()
	state.ConsecutiveIdleSyncs = 0
	state.LastSyncHadActivity = true
	state.LastUserActionAt = &now
	state.CurrentInterval = a.clamp(a.intervals.Active)
	state.UpdatedAt = now

	return a.store.Save(ctx, state)
}

// NextInterval returns the account's current interval without mutating state.
func (a *AdaptiveScheduler) NextInterval(ctx context.Context, accountID string) time.Duration {
	if a.disabled {
		return a.clamp(a.intervals.Baseline)
	}

	state, err := a.store.Get(ctx, accountID)
	if err != nil || state.CurrentInterval <= 0 {
		return a.clamp(a.intervals.Baseline)
	}
	return a.clamp(state.CurrentInterval)
}

// Reset clears the account's adaptive state (used on bankruptcy or removal).
func (a *AdaptiveScheduler) Reset(ctx context.Context, accountID string) error {
	err := a.store.Delete(ctx, accountID)
	if err == domain.ErrNotFound {
		return nil
	}
	return err
}

// tierFor picks the interval tier from the idle streak.
func (a *AdaptiveScheduler) tierFor(state *domain.AdaptiveState) time.Duration {
	switch {
	case state.LastSyncHadActivity:
		return a.clamp(a.intervals.Active)
	case state.ConsecutiveIdleSyncs >= a.intervals.SlowIdleThreshold:
		return a.clamp(a.intervals.Slow)
	case state.ConsecutiveIdleSyncs >= a.intervals.MidIdleThreshold:
		return a.clamp(a.intervals.Mid)
	default:
		return a.clamp(a.intervals.Baseline)
	}
}

// clamp bounds an interval to [Min, Max].
func (a *AdaptiveScheduler) clamp(d time.Duration) time.Duration {
	if a.intervals.Min > 0 && d < a.intervals.Min {
		return a.intervals.Min
	}
	if a.intervals.Max > 0 && d > a.intervals.Max {
		return a.intervals.Max
	}
	return d
}

// load fetches state, creating the zero-value record for new accounts.
func (a *AdaptiveScheduler) load(ctx context.Context, accountID string) (*domain.AdaptiveState, error) {
	state, err := a.store.Get(ctx, accountID)
	if err == nil {
		return state, nil
	}
	if err != domain.ErrNotFound {
		return nil, err
	}
	return &domain.AdaptiveState{AccountID: accountID}, nil
}
