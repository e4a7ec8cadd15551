package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// DefaultCheckpointEvery is how many synced items pass between sync-state
// checkpoints during a full sync. An interrupted run resumes from the last
// checkpoint instead of starting over.
const DefaultCheckpointEvery = 25

// SyncResult summarizes one sync run for the orchestrator and the adaptive
// scheduler.
type SyncResult struct {
	AccountID    string
	FullSync     bool
	ItemsSynced  int
	ItemsFailed  int
	ItemsRemoved int
	// FoundNewMessages feeds the adaptive cadence: any remote activity counts
	FoundNewMessages bool
	// CursorExpired is true when an incremental run fell back to a full sync
	CursorExpired bool
	Duration      time.Duration
}

// SyncEngine runs full and incremental syncs for one account. The same state
// machine serves both provider families; cursor and paging semantics live
// behind the provider adapter. A full sync pages through message ids and
// fetches each item; an incremental sync applies the provider's change feed.
//
// The engine guards against concurrent runs for its account and fails fast
// with domain.ErrSyncInProgress.
type SyncEngine struct {
	account   *domain.Account
	adapter   driven.ProviderAdapter
	emails    driven.EmailStore
	syncStore driven.SyncStateStore
	creds     driven.CredentialProvider
	limiter   *RateLimiter
	retry     *RetryPolicy
	failures  *FailureTracker
	conflicts *ConflictResolver
	bus       driven.EventBus
	logger    *slog.Logger

	checkpointEvery int
	cursorValid     func(cursor string) bool

	mu       sync.Mutex
	inflight bool

	now func() time.Time
}

// SyncEngineConfig holds dependencies for SyncEngine.
type SyncEngineConfig struct {
	Account         *domain.Account
	Adapter         driven.ProviderAdapter
	EmailStore      driven.EmailStore
	SyncStore       driven.SyncStateStore
	Credentials     driven.CredentialProvider
	Limiter         *RateLimiter
	Retry           *RetryPolicy
	Failures        *FailureTracker
	Conflicts       *ConflictResolver
	Bus             driven.EventBus
	Logger          *slog.Logger
	CheckpointEvery int

	// CursorValid rejects malformed stored cursors up front; nil accepts any
	CursorValid func(cursor string) bool
}

// NewSyncEngine creates an engine for one account.
func NewSyncEngine(cfg SyncEngineConfig) *SyncEngine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	every := cfg.CheckpointEvery
	if every <= 0 {
		every = DefaultCheckpointEvery
	}
	return &SyncEngine{
		account:         cfg.Account,
		adapter:         cfg.Adapter,
		emails:          cfg.EmailStore,
		syncStore:       cfg.SyncStore,
		creds:           cfg.Credentials,
		limiter:         cfg.Limiter,
		retry:           retry,
		failures:        cfg.Failures,
		conflicts:       cfg.Conflicts,
		bus:             cfg.Bus,
		logger:          logger.With("account_id", cfg.Account.ID, "provider", string(cfg.Account.Provider)),
		checkpointEvery: every,
		cursorValid:     cfg.CursorValid,
		now:             time.Now,
	}
}

// NewEngineForProvider creates an engine tuned by the provider's profile.
// The limiter should be shared by every engine of the same provider so token
// accounting spans accounts.
func NewEngineForProvider(profile ProviderProfile, limiter *RateLimiter, cfg SyncEngineConfig) *SyncEngine {
	cfg.Limiter = limiter
	if cfg.Retry == nil {
		cfg.Retry = profile.Retry
	}
	if cfg.CursorValid == nil {
		cfg.CursorValid = profile.CursorValid
	}
	return NewSyncEngine(cfg)
}

// Account returns the account this engine syncs.
func (e *SyncEngine) Account() *domain.Account { return e.account }

// Sync runs one sync pass. The first run (or any run without a cursor) is a
// full sync; later runs are incremental. An expired cursor falls back to a
// full sync transparently within the same call.
func (e *SyncEngine) Sync(ctx context.Context) (*SyncResult, error) {
	e.mu.Lock()
	if e.inflight {
		e.mu.Unlock()
		return nil, domain.ErrSyncInProgress
	}
	e.inflight = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inflight = false
		e.mu.Unlock()
	}()

	started := e.now()
	state, err := e.loadState(ctx)
	if err != nil {
		return nil, err
	}

	state.Status = domain.SyncStatusSyncing
	state.SyncStartedAt = &started
	state.UpdatedAt = started
	if err := e.syncStore.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("mark syncing: %w", err)
	}

	e.publishLifecycle(ctx, domain.EventProcessing, "", nil)

	if state.Cursor != "" && e.cursorValid != nil && !e.cursorValid(state.Cursor) {
		e.logger.Warn("stored cursor is malformed, forcing full sync", "cursor", state.Cursor)
		state.Cursor = ""
		state.InitialSyncDone = false
	}

	result := &SyncResult{AccountID: e.account.ID}
	err = e.retryPending(ctx, state, result)
	if err == nil {
		if state.Cursor == "" || !state.InitialSyncDone {
			result.FullSync = true
			err = e.fullSync(ctx, state, result)
		} else {
			err = e.incrementalSync(ctx, state, result)
			if errors.Is(err, domain.ErrCursorExpired) {
				e.logger.Info("cursor expired, falling back to full sync")
				state.Cursor = ""
				state.PageToken = ""
				state.InitialSyncDone = false
				result.FullSync = true
				result.CursorExpired = true
				err = e.fullSync(ctx, state, result)
			}
		}
	}

	finished := e.now()
	result.Duration = finished.Sub(started)
	result.FoundNewMessages = result.ItemsSynced > 0 || result.ItemsRemoved > 0

	state.LastSyncAt = &finished
	state.SyncStartedAt = nil
	state.UpdatedAt = finished
	switch {
	case err == nil:
		state.Status = domain.SyncStatusIdle
		state.LastError = ""
	case isOffline(err):
		// Network loss pauses the account rather than counting as an error;
		// the next online transition or scheduled attempt resumes it
		state.Status = domain.SyncStatusPaused
		state.LastError = domain.ErrOffline.Error()
	default:
		state.Status = domain.SyncStatusError
		state.LastError = err.Error()
		state.ErrorCount++
	}
	if saveErr := e.syncStore.Save(ctx, state); saveErr != nil {
		e.logger.Error("failed to persist sync state", "error", saveErr)
		if err == nil {
			err = saveErr
		}
	}

	if err != nil {
		return result, err
	}

	e.logger.Info("sync completed",
		"full_sync", result.FullSync,
		"items_synced", result.ItemsSynced,
		"items_failed", result.ItemsFailed,
		"items_removed", result.ItemsRemoved,
		"duration", result.Duration,
	)
	return result, nil
}

// fullSync pages through the provider's message listing and fetches every
// item. A fresh cursor is captured before paging starts so changes arriving
// mid-sync are picked up by the next incremental run, then persisted only
// once the listing completes.
func (e *SyncEngine) fullSync(ctx context.Context, state *domain.SyncState, result *SyncResult) error {
	var cursor string
	err := e.providerCall(ctx, func(ctx context.Context) error {
		var err error
		cursor, err = e.adapter.LatestCursor(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("obtain cursor: %w", err)
	}

	if state.PageToken == "" {
		state.EmailsSynced = 0
		state.TotalEmailsToSync = 0
	}

	sinceCheckpoint := 0
	for {
		var page driven.ListPageResult
		err := e.providerCall(ctx, func(ctx context.Context) error {
			var err error
			page, err = e.adapter.ListPage(ctx, state.PageToken)
			return err
		})
		if err != nil {
			return fmt.Errorf("list page: %w", err)
		}

		if page.Total > 0 && state.TotalEmailsToSync == 0 {
			state.TotalEmailsToSync = page.Total
		}

		for _, itemID := range page.ItemIDs {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if err := e.syncItem(ctx, itemID); err != nil {
				if isFatal(err) {
					return err
				}
				result.ItemsFailed++
				state.ErrorCount++
				continue
			}

			result.ItemsSynced++
			state.EmailsSynced++
			sinceCheckpoint++
			if sinceCheckpoint >= e.checkpointEvery {
				sinceCheckpoint = 0
				state.UpdatedAt = e.now()
				if err := e.syncStore.Save(ctx, state); err != nil {
					e.logger.Warn("checkpoint save failed", "error", err)
				}
			}
		}

		state.PageToken = page.NextPageToken
		state.UpdatedAt = e.now()
		if err := e.syncStore.Save(ctx, state); err != nil {
			e.logger.Warn("checkpoint save failed", "error", err)
		}

		if page.NextPageToken == "" {
			break
		}
	}

	state.Cursor = cursor
	state.PageToken = ""
	state.InitialSyncDone = true
	return nil
}

// incrementalSync applies the provider's change feed since the stored cursor.
// Returns domain.ErrCursorExpired (unwrapped by errors.Is) when the provider
// no longer honors the cursor.
func (e *SyncEngine) incrementalSync(ctx context.Context, state *domain.SyncState, result *SyncResult) error {
	var delta driven.DeltaResult
	err := e.providerCall(ctx, func(ctx context.Context) error {
		var err error
		delta, err = e.adapter.FetchDelta(ctx, state.Cursor)
		return err
	})
	if err != nil {
		return err
	}

	for _, change := range delta.Changes {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch change.Kind {
		case driven.DeltaRemoved:
			id := e.recordID(change.ItemID)
			if err := e.emails.Delete(ctx, id); err != nil {
				e.logger.Warn("failed to delete removed record", "email_id", id, "error", err)
				continue
			}
			result.ItemsRemoved++

		default: // added or updated: fetch the full item either way
			if err := e.syncItem(ctx, change.ItemID); err != nil {
				if isFatal(err) {
					return err
				}
				result.ItemsFailed++
				state.ErrorCount++
				continue
			}
			result.ItemsSynced++
			state.EmailsSynced++
		}
	}

	state.Cursor = delta.NewCursor
	return nil
}

// retryPending re-attempts items whose failure records have come due, ahead
// of the main pass. The incremental feed never redelivers an item that did
// not change remotely, so without this sweep a transiently failed item would
// stay pending forever.
func (e *SyncEngine) retryPending(ctx context.Context, state *domain.SyncState, result *SyncResult) error {
	if e.failures == nil {
		return nil
	}

	due, err := e.failures.GetPendingRetries(ctx, e.account.ID)
	if err != nil {
		e.logger.Warn("failed to list due retries", "error", err)
		return nil
	}

	for _, f := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := e.failures.MarkRetrying(ctx, f); err != nil {
			e.logger.Warn("failed to mark failure retrying", "failure_id", f.ID, "error", err)
			continue
		}

		if err := e.syncItem(ctx, e.itemID(f.EmailID)); err != nil {
			if isFatal(err) {
				return err
			}
			result.ItemsFailed++
			state.ErrorCount++
			continue
		}
		result.ItemsSynced++
		state.EmailsSynced++
	}
	return nil
}

// syncItem fetches, normalizes, reconciles, and stores one message. Failures
// past the retry budget are recorded in the failure tracker so the item is
// retried on later runs without blocking the rest of this one.
func (e *SyncEngine) syncItem(ctx context.Context, itemID string) error {
	e.publishLifecycle(ctx, domain.EventQueued, e.recordID(itemID), nil)

	err := e.retry.Do(ctx, func(ctx context.Context) error {
		return e.fetchAndStore(ctx, itemID)
	})

	emailID := e.recordID(itemID)
	if err != nil {
		c := Classify(err)
		if e.failures != nil {
			if _, recErr := e.failures.RecordFailure(ctx, e.account.ID, emailID, c); recErr != nil {
				e.logger.Warn("failed to record item failure", "email_id", emailID, "error", recErr)
			}
		}
		e.logger.Warn("item sync failed",
			"email_id", emailID, "class", string(c.Class), "http_status", c.HTTPStatus, "error", err)
		e.publishLifecycle(ctx, domain.EventFailed, emailID, map[string]any{
			"class":       string(c.Class),
			"http_status": c.HTTPStatus,
		})
		return err
	}

	if e.failures != nil {
		if err := e.failures.MarkResolvedByEmailID(ctx, e.account.ID, emailID); err != nil {
			e.logger.Warn("failed to close failure record", "email_id", emailID, "error", err)
		}
	}
	e.publishLifecycle(ctx, domain.EventSynced, emailID, nil)
	return nil
}

// fetchAndStore is one attempt at syncing a single item.
func (e *SyncEngine) fetchAndStore(ctx context.Context, itemID string) error {
	var raw driven.RawMessage
	err := e.providerCall(ctx, func(ctx context.Context) error {
		var err error
		raw, err = e.adapter.FetchItem(ctx, itemID)
		return err
	})
	if err != nil {
		return err
	}

	remote, err := e.adapter.Normalize(raw)
	if err != nil {
		return fmt.Errorf("normalize %s: %w", itemID, err)
	}

	toStore := remote
	if e.conflicts != nil {
		local, err := e.emails.Get(ctx, remote.ID)
		if err != nil && err != domain.ErrNotFound {
			return fmt.Errorf("load local record: %w", err)
		}
		if local != nil {
			toStore, err = e.conflicts.Reconcile(ctx, local, remote)
			if err != nil {
				return err
			}
			if toStore == nil {
				// Content conflict pending user resolution; local state stands
				return nil
			}
		}
	}

	toStore.UpdatedAt = e.now()
	return e.emails.Upsert(ctx, toStore)
}

// providerCall wraps a provider request with rate limiting and a single
// token-refresh retry on 401. A second 401 after refresh, or a failed
// refresh, surfaces domain.ErrReauthRequired.
func (e *SyncEngine) providerCall(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.limiter != nil {
		if err := e.limiter.AcquireWithThrottling(ctx, 1); err != nil {
			return err
		}
	}

	err := fn(ctx)
	if !isUnauthorized(err) {
		return err
	}

	if e.creds == nil {
		return fmt.Errorf("%w: %v", domain.ErrReauthRequired, err)
	}
	if _, refreshErr := e.creds.Refresh(ctx, e.account.ID); refreshErr != nil {
		return fmt.Errorf("%w: token refresh failed: %v", domain.ErrReauthRequired, refreshErr)
	}

	e.logger.Debug("retrying after token refresh")
	err = fn(ctx)
	if isUnauthorized(err) {
		return fmt.Errorf("%w: %v", domain.ErrReauthRequired, err)
	}
	return err
}

// loadState fetches sync state, creating the pre-initial-sync record on first
// contact.
func (e *SyncEngine) loadState(ctx context.Context) (*domain.SyncState, error) {
	state, err := e.syncStore.Get(ctx, e.account.ID)
	if err == nil {
		return state, nil
	}
	if err != domain.ErrNotFound {
		return nil, err
	}
	return domain.NewSyncState(e.account.ID, e.account.Provider), nil
}

// recordID namespaces a provider item id into the globally unique record id.
func (e *SyncEngine) recordID(itemID string) string {
	return fmt.Sprintf("%s:%s", e.account.Provider, itemID)
}

// itemID strips the provider namespace off a record id.
func (e *SyncEngine) itemID(recordID string) string {
	return strings.TrimPrefix(recordID, string(e.account.Provider)+":")
}

// publishLifecycle emits a per-item or per-run lifecycle event.
func (e *SyncEngine) publishLifecycle(ctx context.Context, typ domain.EventType, emailID string, payload map[string]any) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(ctx, domain.Event{
		ID:        uuid.NewString(),
		Category:  domain.EventCategoryLifecycle,
		Type:      typ,
		AccountID: e.account.ID,
		EmailID:   emailID,
		Provider:  e.account.Provider,
		Payload:   payload,
		At:        e.now(),
	})
}

// isUnauthorized reports whether the error is a provider 401.
func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	var provErr *domain.ProviderError
	return errors.As(err, &provErr) && provErr.StatusCode == 401
}

// isFatal reports whether an item-level error must abort the whole run
// instead of being recorded and skipped.
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrReauthRequired) ||
		isOffline(err)
}

// isOffline reports whether the error stems from network loss rather than
// the provider. Context errors are excluded: a canceled run is not a
// connectivity signal.
func isOffline(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrOffline) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}
