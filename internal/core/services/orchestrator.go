package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driving"
)

// lockTTL bounds how long a crashed instance can hold an account's sync lock.
const lockTTL = 5 * time.Minute

// Orchestrator owns one cancelable timer loop per enabled account and decides
// before every attempt whether syncing is worthwhile: online, breaker closed,
// account not bankrupt. Accounts schedule and fail independently.
type Orchestrator struct {
	accounts  driven.AccountStore
	syncStore driven.SyncStateStore
	adaptive  *AdaptiveScheduler
	checker   *BankruptcyChecker
	network   driven.NetworkMonitor
	lock      driven.DistributedLock
	bus       driven.EventBus
	logger    *slog.Logger

	// engineFor builds the per-account sync engine on registration
	engineFor func(acc *domain.Account) *SyncEngine

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	engines  map[string]*SyncEngine
	wakes    map[string]chan struct{}
	breakers map[domain.ProviderType]*CircuitBreaker

	wg            sync.WaitGroup
	unsubscribers []func()

	now func() time.Time
}

// OrchestratorConfig holds dependencies for Orchestrator.
type OrchestratorConfig struct {
	Accounts      driven.AccountStore
	SyncStore     driven.SyncStateStore
	Adaptive      *AdaptiveScheduler
	Bankruptcy    *BankruptcyChecker
	Network       driven.NetworkMonitor
	Lock          driven.DistributedLock // optional
	Bus           driven.EventBus
	EngineFactory func(acc *domain.Account) *SyncEngine
	Logger        *slog.Logger

	// BreakerThreshold and BreakerCoolDown tune the per-provider breakers
	BreakerThreshold int
	BreakerCoolDown  time.Duration
}

var _ driving.SyncOrchestrator = (*Orchestrator)(nil)

// NewOrchestrator creates the orchestrator. Loops start on Start.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	breakers := make(map[domain.ProviderType]*CircuitBreaker)
	for _, p := range []domain.ProviderType{domain.ProviderGmail, domain.ProviderOutlook} {
		breakers[p] = NewCircuitBreaker(p, cfg.BreakerThreshold, cfg.BreakerCoolDown)
	}

	return &Orchestrator{
		accounts:  cfg.Accounts,
		syncStore: cfg.SyncStore,
		adaptive:  cfg.Adaptive,
		checker:   cfg.Bankruptcy,
		network:   cfg.Network,
		lock:      cfg.Lock,
		bus:       cfg.Bus,
		engineFor: cfg.EngineFactory,
		logger:    logger,
		engines:   make(map[string]*SyncEngine),
		wakes:     make(map[string]chan struct{}),
		breakers:  breakers,
		now:       time.Now,
	}
}

// Start loads enabled accounts and begins one reschedule loop each, plus the
// user-action and connectivity subscriptions.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.mu.Unlock()

	accts, err := o.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	for _, acc := range accts {
		if !acc.Enabled {
			continue
		}
		o.register(runCtx, acc)
	}

	o.subscribeUserActions()
	o.subscribeNetwork(runCtx)

	o.logger.Info("orchestrator started", "accounts", len(o.engines))
	return nil
}

// Stop cancels every loop and subscription and waits for them to exit.
// No timer or subscription outlives the call.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	cancel := o.cancel
	unsubs := o.unsubscribers
	o.unsubscribers = nil
	o.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// TriggerSync runs a sync for the account immediately, outside the schedule.
// Fails fast with domain.ErrSyncInProgress when one is already running.
func (o *Orchestrator) TriggerSync(ctx context.Context, accountID string) error {
	engine, wake, err := o.lookup(accountID)
	if err != nil {
		return err
	}

	if err := o.runSync(ctx, engine); err != nil {
		return err
	}
	poke(wake)
	return nil
}

// SwitchAccount cancels the account's pending timer and syncs it immediately,
// so the mailbox the user just opened is fresh.
func (o *Orchestrator) SwitchAccount(ctx context.Context, accountID string) error {
	err := o.TriggerSync(ctx, accountID)
	if errors.Is(err, domain.ErrSyncInProgress) {
		// Already syncing is exactly what the user wants
		return nil
	}
	return err
}

// GetProgress returns the account's current progress snapshot.
func (o *Orchestrator) GetProgress(ctx context.Context, accountID string) (*domain.Progress, error) {
	state, err := o.syncStore.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	p := state.Progress(o.now())
	return &p, nil
}

// register builds the account's engine and starts its loop. Caller must not
// hold the lock.
func (o *Orchestrator) register(ctx context.Context, acc *domain.Account) {
	engine := o.engineFor(acc)
	if engine == nil {
		o.logger.Warn("no sync engine for account, skipping",
			"account_id", acc.ID, "provider", string(acc.Provider))
		return
	}
	wake := make(chan struct{}, 1)

	o.mu.Lock()
	o.engines[acc.ID] = engine
	o.wakes[acc.ID] = wake
	o.mu.Unlock()

	o.wg.Add(1)
	go o.loop(ctx, engine, wake)
}

// loop is the per-account scheduler: sleep for the adaptive interval, sync,
// repeat. A wake signal cuts the sleep short and recomputes the interval.
func (o *Orchestrator) loop(ctx context.Context, engine *SyncEngine, wake chan struct{}) {
	defer o.wg.Done()
	accountID := engine.Account().ID

	for {
		interval := o.adaptive.NextInterval(ctx, accountID)
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if err := o.runSync(ctx, engine); err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
			o.logger.Warn("scheduled sync failed", "account_id", accountID, "error", err)
		}
	}
}

// runSync performs the pre-attempt checks and one sync pass, then feeds the
// outcome to the breaker and the adaptive scheduler.
func (o *Orchestrator) runSync(ctx context.Context, engine *SyncEngine) error {
	acc := engine.Account()

	if o.network != nil && !o.network.IsOnline() {
		o.logger.Debug("offline, skipping sync", "account_id", acc.ID)
		return nil
	}

	breaker := o.breakers[acc.Provider]
	if breaker != nil && !breaker.Allow() {
		o.logger.Debug("circuit open, skipping sync",
			"account_id", acc.ID, "provider", string(acc.Provider))
		return domain.ErrCircuitOpen
	}

	if err := o.maybeDeclareBankruptcy(ctx, acc.ID); err != nil {
		o.logger.Warn("bankruptcy check failed", "account_id", acc.ID, "error", err)
	}

	if o.lock != nil {
		name := "sync:" + acc.ID
		acquired, err := o.lock.Acquire(ctx, name, lockTTL)
		if err != nil {
			o.logger.Warn("lock backend unavailable, proceeding locally",
				"account_id", acc.ID, "error", err)
		} else if !acquired {
			o.logger.Debug("account locked by another instance", "account_id", acc.ID)
			return domain.ErrSyncInProgress
		} else {
			defer func() {
				if err := o.lock.Release(context.WithoutCancel(ctx), name); err != nil {
					o.logger.Warn("lock release failed", "account_id", acc.ID, "error", err)
				}
			}()
		}
	}

	result, err := engine.Sync(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			return err
		}
		if breaker != nil {
			breaker.RecordFailure(Classify(err).Class)
		}
		return err
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}
	if _, aerr := o.adaptive.RecordSyncResult(ctx, acc.ID, result.FoundNewMessages); aerr != nil {
		o.logger.Warn("failed to update adaptive state", "account_id", acc.ID, "error", aerr)
	}
	return nil
}

// maybeDeclareBankruptcy resets accounts whose incremental state is past the
// staleness threshold; the following sync run then starts full.
func (o *Orchestrator) maybeDeclareBankruptcy(ctx context.Context, accountID string) error {
	if o.checker == nil {
		return nil
	}
	state, err := o.syncStore.Get(ctx, accountID)
	if err == domain.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if !o.checker.ShouldDeclare(state) {
		return nil
	}
	return o.checker.Declare(ctx, state)
}

// subscribeUserActions wires qualifying local user actions to the adaptive
// scheduler and wakes the account's loop for an early reschedule.
func (o *Orchestrator) subscribeUserActions() {
	if o.bus == nil {
		return
	}
	unsub, err := o.bus.Subscribe(domain.EventCategoryUserAction, func(ev domain.Event) {
		if !ev.Type.QualifiesForIntervalReset() || ev.AccountID == "" {
			return
		}
		ctx := context.Background()
		if err := o.adaptive.RecordUserAction(ctx, ev.AccountID); err != nil {
			o.logger.Warn("failed to record user action", "account_id", ev.AccountID, "error", err)
			return
		}
		o.mu.Lock()
		wake := o.wakes[ev.AccountID]
		o.mu.Unlock()
		poke(wake)
	})
	if err != nil {
		o.logger.Warn("user-action subscription failed", "error", err)
		return
	}
	o.mu.Lock()
	o.unsubscribers = append(o.unsubscribers, unsub)
	o.mu.Unlock()
}

// subscribeNetwork syncs every account as soon as connectivity returns.
func (o *Orchestrator) subscribeNetwork(ctx context.Context) {
	if o.network == nil {
		return
	}
	unsub := o.network.Subscribe(func(online bool) {
		if !online {
			return
		}
		o.logger.Info("connectivity restored, syncing all accounts")
		o.mu.Lock()
		engines := make([]*SyncEngine, 0, len(o.engines))
		for _, e := range o.engines {
			engines = append(engines, e)
		}
		o.mu.Unlock()

		for _, e := range engines {
			if err := o.runSync(ctx, e); err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
				o.logger.Warn("reconnect sync failed", "account_id", e.Account().ID, "error", err)
			}
		}
	})
	o.mu.Lock()
	o.unsubscribers = append(o.unsubscribers, unsub)
	o.mu.Unlock()
}

// lookup returns the account's engine and wake channel.
func (o *Orchestrator) lookup(accountID string) (*SyncEngine, chan struct{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return nil, nil, domain.ErrOrchestratorStopped
	}
	engine, ok := o.engines[accountID]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	return engine, o.wakes[accountID], nil
}

// poke signals a wake channel without blocking.
func poke(wake chan struct{}) {
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}
