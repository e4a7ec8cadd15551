package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven/mocks"
)

// orchestratorFixture bundles the orchestrator under test with its mocks
type orchestratorFixture struct {
	orch      *Orchestrator
	accounts  *mocks.MockAccountStore
	syncStore *mocks.MockSyncStateStore
	adaptive  *mocks.MockAdaptiveStateStore
	emails    *mocks.MockEmailStore
	adapter   *mocks.MockProviderAdapter
	network   *mocks.MockNetworkMonitor
	lock      *mocks.MockDistributedLock
	bus       *mocks.MockEventBus
}

// newOrchestratorFixture wires an orchestrator with one enabled gmail account
func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	accounts := mocks.NewMockAccountStore()
	syncStore := mocks.NewMockSyncStateStore()
	adaptiveStore := mocks.NewMockAdaptiveStateStore()
	emails := mocks.NewMockEmailStore()
	adapter := mocks.NewMockProviderAdapter(domain.ProviderGmail)
	network := mocks.NewMockNetworkMonitor(true)
	lock := mocks.NewMockDistributedLock()
	bus := mocks.NewMockEventBus()

	ctx := context.Background()
	accounts.Save(ctx, &domain.Account{
		ID: "acc-1", Email: "a@example.com", Provider: domain.ProviderGmail, Enabled: true,
	})
	accounts.Save(ctx, &domain.Account{
		ID: "acc-disabled", Email: "b@example.com", Provider: domain.ProviderGmail, Enabled: false,
	})

	adapter.SetCursor("100")
	adapter.AddPage("", driven.ListPageResult{})

	retry := DefaultRetryPolicy()
	retry.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	orch := NewOrchestrator(OrchestratorConfig{
		Accounts:  accounts,
		SyncStore: syncStore,
		Adaptive:  NewAdaptiveScheduler(AdaptiveSchedulerConfig{Store: adaptiveStore}),
		Bankruptcy: NewBankruptcyChecker(BankruptcyCheckerConfig{
			EmailStore:    emails,
			SyncStore:     syncStore,
			AdaptiveStore: adaptiveStore,
			Bus:           bus,
		}),
		Network: network,
		Lock:    lock,
		Bus:     bus,
		EngineFactory: func(acc *domain.Account) *SyncEngine {
			return NewSyncEngine(SyncEngineConfig{
				Account:     acc,
				Adapter:     adapter,
				EmailStore:  emails,
				SyncStore:   syncStore,
				Credentials: mocks.NewMockCredentialProvider("token"),
				Retry:       retry,
				Bus:         bus,
			})
		},
		BreakerThreshold: 2,
		BreakerCoolDown:  time.Minute,
	})

	return &orchestratorFixture{
		orch:      orch,
		accounts:  accounts,
		syncStore: syncStore,
		adaptive:  adaptiveStore,
		emails:    emails,
		adapter:   adapter,
		network:   network,
		lock:      lock,
		bus:       bus,
	}
}

// startOrchestrator starts the fixture and registers cleanup
func (f *orchestratorFixture) start(t *testing.T) {
	t.Helper()
	if err := f.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(f.orch.Stop)
}

// TestOrchestrator_StartRegistersEnabledAccounts tests account registration
func TestOrchestrator_StartRegistersEnabledAccounts(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)

	if _, _, err := f.orch.lookup("acc-1"); err != nil {
		t.Errorf("enabled account should be registered: %v", err)
	}
	if _, _, err := f.orch.lookup("acc-disabled"); err != domain.ErrNotFound {
		t.Error("disabled account must not be registered")
	}

	if err := f.orch.Start(context.Background()); err == nil {
		t.Error("double start should fail")
	}
}

// TestOrchestrator_SkipsAccountsWithoutEngine tests that accounts whose
// provider has no adapter are left unregistered instead of running a nil engine
func TestOrchestrator_SkipsAccountsWithoutEngine(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.orch.engineFor = func(acc *domain.Account) *SyncEngine { return nil }
	f.start(t)

	if _, _, err := f.orch.lookup("acc-1"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound for the skipped account, got %v", err)
	}
	if err := f.orch.TriggerSync(context.Background(), "acc-1"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound from TriggerSync, got %v", err)
	}
}

// TestOrchestrator_TriggerSyncRunsImmediately tests the manual trigger path
func TestOrchestrator_TriggerSyncRunsImmediately(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)

	if err := f.orch.TriggerSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	state, err := f.syncStore.Get(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("expected sync state after trigger: %v", err)
	}
	if !state.InitialSyncDone {
		t.Error("expected a completed full sync")
	}

	if err := f.orch.TriggerSync(context.Background(), "missing"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown account, got %v", err)
	}
}

// TestOrchestrator_StopIsTerminal tests that a stopped orchestrator rejects work
func TestOrchestrator_StopIsTerminal(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)
	f.orch.Stop()

	if err := f.orch.TriggerSync(context.Background(), "acc-1"); err != domain.ErrOrchestratorStopped {
		t.Errorf("expected ErrOrchestratorStopped, got %v", err)
	}

	// Stop is idempotent
	f.orch.Stop()
}

// TestOrchestrator_OfflineSkipsSilently tests the connectivity gate
func TestOrchestrator_OfflineSkipsSilently(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)
	f.network.SetOnline(false)

	if err := f.orch.TriggerSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("offline skip must not error: %v", err)
	}
	if _, err := f.syncStore.Get(context.Background(), "acc-1"); err != domain.ErrNotFound {
		t.Error("no sync should have run while offline")
	}
}

// TestOrchestrator_ReconnectTriggersSync tests sync on connectivity restore
func TestOrchestrator_ReconnectTriggersSync(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.network.SetOnline(false)
	f.start(t)

	f.network.SetOnline(true)

	state, err := f.syncStore.Get(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("expected sync after reconnect: %v", err)
	}
	if !state.InitialSyncDone {
		t.Error("expected a completed sync on reconnect")
	}
}

// TestOrchestrator_OpenBreakerSkips tests the per-provider circuit gate
func TestOrchestrator_OpenBreakerSkips(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)

	breaker := f.orch.breakers[domain.ProviderGmail]
	breaker.RecordFailure(domain.ErrorClassTransient)
	breaker.RecordFailure(domain.ErrorClassTransient)
	if breaker.State() != domain.BreakerOpen {
		t.Fatal("breaker should be open")
	}

	if err := f.orch.TriggerSync(context.Background(), "acc-1"); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

// TestOrchestrator_SyncFailureFeedsBreaker tests breaker accounting
func TestOrchestrator_SyncFailureFeedsBreaker(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)

	f.adapter.LatestCursorFn = func() (string, error) {
		return "", domain.NewProviderError(503, "unavailable")
	}

	// Threshold is 2
	f.orch.TriggerSync(context.Background(), "acc-1")
	f.orch.TriggerSync(context.Background(), "acc-1")

	if got := f.orch.breakers[domain.ProviderGmail].State(); got != domain.BreakerOpen {
		t.Errorf("expected open breaker after repeated failures, got %s", got)
	}
}

// TestOrchestrator_BankruptcyDeclaredBeforeSync tests the staleness pre-check
func TestOrchestrator_BankruptcyDeclaredBeforeSync(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	// A stale account with leftover cached records
	last := time.Now().Add(-8 * 24 * time.Hour)
	f.syncStore.Save(ctx, &domain.SyncState{
		AccountID:       "acc-1",
		Provider:        domain.ProviderGmail,
		Status:          domain.SyncStatusIdle,
		Cursor:          "stale",
		InitialSyncDone: true,
		LastSyncAt:      &last,
	})
	f.emails.Upsert(ctx, &domain.EmailRecord{ID: "gmail:old", AccountID: "acc-1"})

	f.start(t)
	if err := f.orch.TriggerSync(ctx, "acc-1"); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	if _, err := f.emails.Get(ctx, "gmail:old"); err != domain.ErrNotFound {
		t.Error("stale cached records should be dropped before syncing")
	}
	if len(f.bus.PublishedOfType(domain.EventBankruptcyDeclared)) != 1 {
		t.Error("expected a bankruptcy event")
	}

	// The run after the reset completes as a fresh full sync
	state, _ := f.syncStore.Get(ctx, "acc-1")
	if state.Cursor != "100" {
		t.Errorf("expected fresh cursor from full sync, got %q", state.Cursor)
	}
}

// TestOrchestrator_HeldLockSkips tests multi-instance coordination
func TestOrchestrator_HeldLockSkips(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)

	f.lock.SetLockHeld("sync:acc-1", time.Minute)

	if err := f.orch.TriggerSync(context.Background(), "acc-1"); !errors.Is(err, domain.ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress while locked elsewhere, got %v", err)
	}
}

// TestOrchestrator_LockReleasedAfterSync tests lock hygiene
func TestOrchestrator_LockReleasedAfterSync(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)

	if err := f.orch.TriggerSync(context.Background(), "acc-1"); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	if f.lock.IsHeld("sync:acc-1") {
		t.Error("lock must be released after the run")
	}
}

// TestOrchestrator_UserActionResetsCadence tests the user-action subscription
func TestOrchestrator_UserActionResetsCadence(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)
	ctx := context.Background()

	// Build up an idle streak first
	f.adaptive.Save(ctx, &domain.AdaptiveState{
		AccountID:            "acc-1",
		ConsecutiveIdleSyncs: 10,
		CurrentInterval:      15 * time.Minute,
	})

	f.bus.Publish(ctx, domain.Event{
		ID:        "ev-1",
		Category:  domain.EventCategoryUserAction,
		Type:      domain.EventUserSend,
		AccountID: "acc-1",
		At:        time.Now(),
	})

	state, err := f.adaptive.Get(ctx, "acc-1")
	if err != nil {
		t.Fatalf("Get adaptive state: %v", err)
	}
	if state.ConsecutiveIdleSyncs != 0 {
		t.Errorf("expected idle streak reset, got %d", state.ConsecutiveIdleSyncs)
	}
	if state.CurrentInterval != 30*time.Second {
		t.Errorf("expected active interval, got %s", state.CurrentInterval)
	}
}

// TestOrchestrator_NonQualifyingEventIgnored tests the event filter
func TestOrchestrator_NonQualifyingEventIgnored(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)
	ctx := context.Background()

	f.bus.Publish(ctx, domain.Event{
		ID:        "ev-1",
		Category:  domain.EventCategoryUserAction,
		Type:      domain.EventSynced, // not a user action type
		AccountID: "acc-1",
		At:        time.Now(),
	})

	if _, err := f.adaptive.Get(ctx, "acc-1"); err != domain.ErrNotFound {
		t.Error("non-qualifying events must not touch adaptive state")
	}
}

// TestOrchestrator_SwitchAccountToleratesRunningSync tests account switching
func TestOrchestrator_SwitchAccountToleratesRunningSync(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)

	engine, _, _ := f.orch.lookup("acc-1")
	engine.mu.Lock()
	engine.inflight = true
	engine.mu.Unlock()

	if err := f.orch.SwitchAccount(context.Background(), "acc-1"); err != nil {
		t.Errorf("switching to an already-syncing account is fine: %v", err)
	}
}

// TestOrchestrator_GetProgress tests the progress snapshot
func TestOrchestrator_GetProgress(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.start(t)
	ctx := context.Background()

	if _, err := f.orch.GetProgress(ctx, "acc-1"); err != domain.ErrNotFound {
		t.Errorf("expected ErrNotFound before the first sync, got %v", err)
	}

	f.syncStore.Save(ctx, &domain.SyncState{
		AccountID:         "acc-1",
		Status:            domain.SyncStatusSyncing,
		EmailsSynced:      50,
		TotalEmailsToSync: 200,
	})

	p, err := f.orch.GetProgress(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if p.Percent != 25 {
		t.Errorf("expected 25%%, got %f", p.Percent)
	}
}
