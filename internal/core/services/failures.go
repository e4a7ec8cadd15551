package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driving"
)

var _ driving.FailureQuery = (*FailureTracker)(nil)

// FailureTracker owns the per-item failure lifecycle:
// pending → retrying → {resolved | exhausted | permanent | dismissed}.
// One open record per (email, account); repeat failures update it in place.
type FailureTracker struct {
	store  driven.FailureStore
	policy *RetryPolicy
	bus    driven.EventBus // optional
	logger *slog.Logger

	now func() time.Time
}

// NewFailureTracker creates a tracker using the given retry policy to
// compute next-retry times and the retry budget. A nil bus suppresses
// retry-scheduled events.
func NewFailureTracker(store driven.FailureStore, policy *RetryPolicy, bus driven.EventBus, logger *slog.Logger) *FailureTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &FailureTracker{
		store:  store,
		policy: policy,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// RecordFailure creates or updates the failure record for an item. Permanent
// classifications go straight to permanent status; others get a computed
// NextRetryAt. Returns the stored record.
func (t *FailureTracker) RecordFailure(ctx context.Context, accountID, emailID string, c domain.Classification) (*domain.SyncFailure, error) {
	now := t.now()

	f, err := t.store.GetOpen(ctx, accountID, emailID)
	switch err {
	case nil:
		// Repeat failure for an open record: increment in place, never duplicate
		f.RetryCount++
		f.Class = c.Class
		f.HTTPStatus = c.HTTPStatus
		f.Message = c.Message
		f.LastAttemptAt = now
	case domain.ErrNotFound:
		f = &domain.SyncFailure{
			ID:            domain.GenerateID(),
			EmailID:       emailID,
			AccountID:     accountID,
			Class:         c.Class,
			HTTPStatus:    c.HTTPStatus,
			Message:       c.Message,
			RetryCount:    0,
			MaxRetries:    t.policy.MaxRetries,
			FirstFailedAt: now,
			LastAttemptAt: now,
		}
	default:
		return nil, fmt.Errorf("load failure record: %w", err)
	}

	t.assignStatus(f, c, now)

	if err := t.store.Save(ctx, f); err != nil {
		return nil, fmt.Errorf("save failure record: %w", err)
	}
	if f.Status == domain.FailureStatusPending {
		t.publishRetryScheduled(ctx, f)
	}
	return f, nil
}

// publishRetryScheduled announces that an item got a future retry slot.
func (t *FailureTracker) publishRetryScheduled(ctx context.Context, f *domain.SyncFailure) {
	if t.bus == nil || f.NextRetryAt == nil {
		return
	}
	_ = t.bus.Publish(ctx, domain.Event{
		ID:        domain.GenerateID(),
		Category:  domain.EventCategoryLifecycle,
		Type:      domain.EventRetryScheduled,
		AccountID: f.AccountID,
		EmailID:   f.EmailID,
		Payload: map[string]any{
			"retry_count":   f.RetryCount,
			"next_retry_at": f.NextRetryAt.Format(time.RFC3339),
		},
		At: t.now(),
	})
}

// assignStatus recomputes status and NextRetryAt from the classification and
// the retry budget.
func (t *FailureTracker) assignStatus(f *domain.SyncFailure, c domain.Classification, now time.Time) {
	switch {
	case c.Class == domain.ErrorClassPermanent:
		f.Status = domain.FailureStatusPermanent
		f.NextRetryAt = nil
	case f.RetryCount >= f.MaxRetries:
		f.Status = domain.FailureStatusExhausted
		f.NextRetryAt = nil
	default:
		f.Status = domain.FailureStatusPending
		next := now.Add(t.policy.DelayFor(f.RetryCount, c))
		f.NextRetryAt = &next
	}
}

// MarkRetrying flags a record as being retried right now.
func (t *FailureTracker) MarkRetrying(ctx context.Context, f *domain.SyncFailure) error {
	f.Status = domain.FailureStatusRetrying
	f.LastAttemptAt = t.now()
	return t.store.Save(ctx, f)
}

// MarkResolved closes a record after a later attempt succeeded.
func (t *FailureTracker) MarkResolved(ctx context.Context, f *domain.SyncFailure) error {
	now := t.now()
	f.Status = domain.FailureStatusResolved
	f.NextRetryAt = nil
	f.ResolvedAt = &now
	return t.store.Save(ctx, f)
}

// MarkResolvedByEmailID closes the open record for an (email, account) pair
// if one exists. Missing records are not an error: most successful syncs have
// no failure history.
func (t *FailureTracker) MarkResolvedByEmailID(ctx context.Context, accountID, emailID string) error {
	f, err := t.store.GetOpen(ctx, accountID, emailID)
	if err == domain.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return t.MarkResolved(ctx, f)
}

// Dismiss marks a failure dismissed so it no longer counts as open.
func (t *FailureTracker) Dismiss(ctx context.Context, failureID string) error {
	f, err := t.store.Get(ctx, failureID)
	if err != nil {
		return err
	}
	f.Status = domain.FailureStatusDismissed
	f.NextRetryAt = nil
	return t.store.Save(ctx, f)
}

// GetPendingRetries returns pending records whose NextRetryAt has passed,
// enabling a startup or periodic sweep to resume stalled retries without a
// live timer per item. Empty accountID means all accounts.
func (t *FailureTracker) GetPendingRetries(ctx context.Context, accountID string) ([]*domain.SyncFailure, error) {
	return t.store.ListDue(ctx, accountID, t.now())
}

// RetryAllExhausted resets exhausted records to pending with immediate
// eligibility (the manual "retry all" action). Returns how many were reset.
func (t *FailureTracker) RetryAllExhausted(ctx context.Context, accountID string) (int, error) {
	exhausted, err := t.store.ListByStatus(ctx, accountID, domain.FailureStatusExhausted)
	if err != nil {
		return 0, err
	}

	now := t.now()
	count := 0
	for _, f := range exhausted {
		f.Status = domain.FailureStatusPending
		f.RetryCount = 0
		f.NextRetryAt = &now
		if err := t.store.Save(ctx, f); err != nil {
			t.logger.Warn("failed to reset exhausted failure", "failure_id", f.ID, "error", err)
			continue
		}
		t.publishRetryScheduled(ctx, f)
		count++
	}
	return count, nil
}

// Stats rolls up failure counts by status. Empty accountID means all.
func (t *FailureTracker) Stats(ctx context.Context, accountID string) (*domain.FailureStats, error) {
	return t.store.Stats(ctx, accountID)
}

// List returns failure records for an account; empty means all.
func (t *FailureTracker) List(ctx context.Context, accountID string) ([]*domain.SyncFailure, error) {
	return t.store.ListByAccount(ctx, accountID)
}
