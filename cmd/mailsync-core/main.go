package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/mailsync-core/internal/adapters/driven/auth"
	"github.com/custodia-labs/mailsync-core/internal/adapters/driven/memory"
	natsbus "github.com/custodia-labs/mailsync-core/internal/adapters/driven/nats"
	"github.com/custodia-labs/mailsync-core/internal/adapters/driven/netmon"
	"github.com/custodia-labs/mailsync-core/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/mailsync-core/internal/adapters/driven/redis"
	"github.com/custodia-labs/mailsync-core/internal/adapters/driven/sqlite"
	httpapi "github.com/custodia-labs/mailsync-core/internal/adapters/driving/http"
	"github.com/custodia-labs/mailsync-core/internal/config"
	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-core/internal/core/services"
)

var version = "dev"

// providerAdapters maps provider families to adapter constructors. The REST
// clients currently live in the companion desktop client; with no adapters
// registered the binary serves the management API without scheduled sync.
// TODO: move the Gmail history and Outlook delta REST adapters into this
// repo and register them here.
var providerAdapters = map[domain.ProviderType]func(acc *domain.Account, creds driven.CredentialProvider) driven.ProviderAdapter{}

func main() {
	configPath := getEnv("CONFIG_FILE", "")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	log.Printf("mailsync-core %s starting (backend=%s)", version, cfg.Storage.Backend)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	// ===== Storage backend =====
	stores, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s backend: %v", cfg.Storage.Backend, err)
	}
	defer stores.close()

	// ===== Distributed lock (Redis if configured, advisory lock on postgres) =====
	var distributedLock driven.DistributedLock
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		distributedLock = redisadapter.NewLock(redisClient)
		log.Println("Using Redis distributed lock")
	} else if stores.advisory != nil {
		distributedLock = stores.advisory
		log.Println("Using PostgreSQL advisory lock")
	} else {
		// Single-instance sqlite deployment: engine-level inflight guards
		// already prevent concurrent syncs within the process
		log.Println("No lock backend configured, relying on in-process guards")
	}

	// ===== Event bus (NATS fan-out if configured, in-process otherwise) =====
	var bus driven.EventBus
	var busPinger httpapi.Pinger
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("mailsync-core"))
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nc.Close()
		jsBus, err := natsbus.NewEventBus(nc, logger)
		if err != nil {
			log.Fatalf("Failed to set up JetStream event bus: %v", err)
		}
		bus = jsBus
		busPinger = jsBus
		log.Println("Using NATS JetStream event bus")
	} else {
		bus = memory.NewEventBus(logger)
	}
	defer bus.Close()

	// ===== Connectivity monitor =====
	monitor := netmon.NewMonitor(netmon.Config{
		ProbeAddr: cfg.Network.ProbeAddr,
		Interval:  time.Duration(cfg.Network.ProbeIntervalSec) * time.Second,
		Logger:    logger,
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	// ===== Credentials =====
	creds, err := auth.NewTokenFile(cfg.Credentials.TokenFile, logger)
	if err != nil {
		log.Fatalf("Failed to load token file: %v", err)
	}

	// ===== Core services =====
	failureTracker := services.NewFailureTracker(stores.failures, services.DefaultRetryPolicy(), bus, logger)

	conflictResolver := services.NewConflictResolver(services.ConflictResolverConfig{
		EmailStore: stores.emails,
		AuditStore: stores.audits,
		PrefStore:  stores.prefs,
		Bus:        bus,
		Logger:     logger,
	})

	adaptiveScheduler := services.NewAdaptiveScheduler(services.AdaptiveSchedulerConfig{
		Store:     stores.adaptive,
		Intervals: adaptiveIntervals(cfg.Sync),
		Disabled:  cfg.Sync.AdaptiveDisabled,
		Logger:    logger,
	})

	bankruptcyChecker := services.NewBankruptcyChecker(services.BankruptcyCheckerConfig{
		EmailStore:    stores.emails,
		SyncStore:     stores.syncStates,
		AdaptiveStore: stores.adaptive,
		Bus:           bus,
		Threshold:     cfg.Sync.BankruptcyThreshold(),
		Logger:        logger,
	})

	// One limiter per provider family so token accounting spans accounts.
	// Throttle transitions fan out on the event bus.
	limiters := make(map[domain.ProviderType]*services.RateLimiter)
	for _, p := range []domain.ProviderType{domain.ProviderGmail, domain.ProviderOutlook} {
		limiter, err := services.NewRateLimiter(services.ProfileFor(p).RateLimit)
		if err != nil {
			log.Fatalf("Failed to build %s rate limiter: %v", p, err)
		}
		limiter.OnStatusChange(func(status services.ThrottleStatus, usagePercent float64) {
			_ = bus.Publish(context.Background(), domain.Event{
				ID:       uuid.NewString(),
				Category: domain.EventCategoryThrottle,
				Type:     domain.EventThrottleChanged,
				Provider: p,
				Payload: map[string]any{
					"status":        string(status),
					"usage_percent": usagePercent,
				},
				At: time.Now(),
			})
		})
		limiters[p] = limiter
	}

	// Accounts whose provider has no registered adapter get no engine and are
	// skipped by the orchestrator instead of syncing into a nil adapter
	engineFactory := func(acc *domain.Account) *services.SyncEngine {
		build := providerAdapters[acc.Provider]
		if build == nil {
			return nil
		}
		profile := services.ProfileFor(acc.Provider)
		return services.NewEngineForProvider(profile, limiters[acc.Provider], services.SyncEngineConfig{
			Account:         acc,
			Adapter:         build(acc, creds),
			EmailStore:      stores.emails,
			SyncStore:       stores.syncStates,
			Credentials:     creds,
			Failures:        failureTracker,
			Conflicts:       conflictResolver,
			Bus:             bus,
			Logger:          logger,
			CheckpointEvery: cfg.Sync.CheckpointEvery,
		})
	}

	orchestrator := services.NewOrchestrator(services.OrchestratorConfig{
		Accounts:         stores.accounts,
		SyncStore:        stores.syncStates,
		Adaptive:         adaptiveScheduler,
		Bankruptcy:       bankruptcyChecker,
		Network:          monitor,
		Lock:             distributedLock,
		Bus:              bus,
		EngineFactory:    engineFactory,
		Logger:           logger,
		BreakerThreshold: cfg.Sync.BreakerThreshold,
		BreakerCoolDown:  cfg.Sync.BreakerCoolDown(),
	})

	if len(providerAdapters) == 0 {
		log.Println("No provider adapters registered, accounts without adapters are skipped")
	}
	if err := orchestrator.Start(ctx); err != nil {
		log.Fatalf("Failed to start orchestrator: %v", err)
	}
	defer orchestrator.Stop()

	// ===== HTTP API =====
	var lockPinger httpapi.Pinger
	if distributedLock != nil {
		lockPinger = distributedLock
	}
	server := httpapi.NewServer(httpapi.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Version:        version,
		JWTSecret:      cfg.Server.JWTSecret,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	}, httpapi.ServerDeps{
		Orchestrator: orchestrator,
		Failures:     failureTracker,
		Conflicts:    conflictResolver,
		Accounts:     stores.accounts,
		Store:        stores.pinger,
		Lock:         lockPinger,
		Bus:          busPinger,
		Logger:       logger,
	})

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("mailsync-core stopped")
}

// storeSet bundles the backend-specific store implementations behind the
// driven ports.
type storeSet struct {
	emails     driven.EmailStore
	syncStates driven.SyncStateStore
	adaptive   driven.AdaptiveStateStore
	accounts   driven.AccountStore
	failures   driven.FailureStore
	audits     driven.ConflictAuditStore
	prefs      driven.PreferenceStore

	pinger   httpapi.Pinger
	advisory driven.DistributedLock // postgres only
	close    func() error
}

// openStores opens the configured storage backend and builds its stores.
func openStores(ctx context.Context, cfg *config.Config) (*storeSet, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := postgres.Connect(ctx, postgres.Config{
			URL:             cfg.Storage.Postgres.URL,
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.Postgres.ConnMaxLifetimeSec) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.Postgres.ConnMaxIdleSec) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		return &storeSet{
			emails:     postgres.NewEmailStore(db),
			syncStates: postgres.NewSyncStateStore(db),
			adaptive:   postgres.NewAdaptiveStateStore(db),
			accounts:   postgres.NewAccountStore(db),
			failures:   postgres.NewFailureStore(db),
			audits:     postgres.NewConflictAuditStore(db),
			prefs:      postgres.NewPreferenceStore(db),
			pinger:     db,
			advisory:   postgres.NewAdvisoryLock(db),
			close:      db.Close,
		}, nil

	default: // sqlite, validated upstream
		db, err := sqlite.Open(ctx, sqlite.Config{
			Path:        cfg.Storage.SQLite.Path,
			BusyTimeout: time.Duration(cfg.Storage.SQLite.BusyTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return &storeSet{
			emails:     sqlite.NewEmailStore(db),
			syncStates: sqlite.NewSyncStateStore(db),
			adaptive:   sqlite.NewAdaptiveStateStore(db),
			accounts:   sqlite.NewAccountStore(db),
			failures:   sqlite.NewFailureStore(db),
			audits:     sqlite.NewConflictAuditStore(db),
			prefs:      sqlite.NewPreferenceStore(db),
			pinger:     db,
			close:      db.Close,
		}, nil
	}
}

// adaptiveIntervals maps the config tunables onto the scheduler's tier
// ladder, keeping the defaults for any tier left unset.
func adaptiveIntervals(cfg config.SyncConfig) services.AdaptiveIntervals {
	iv := services.DefaultAdaptiveIntervals()
	set := func(dst *time.Duration, sec int) {
		if sec > 0 {
			*dst = time.Duration(sec) * time.Second
		}
	}
	set(&iv.Active, cfg.ActiveIntervalSec)
	set(&iv.Baseline, cfg.BaselineIntervalSec)
	set(&iv.Mid, cfg.MidIntervalSec)
	set(&iv.Slow, cfg.SlowIntervalSec)
	set(&iv.Min, cfg.MinIntervalSec)
	set(&iv.Max, cfg.MaxIntervalSec)
	if cfg.MidIdleThreshold > 0 {
		iv.MidIdleThreshold = cfg.MidIdleThreshold
	}
	if cfg.SlowIdleThreshold > 0 {
		iv.SlowIdleThreshold = cfg.SlowIdleThreshold
	}
	return iv
}

// applyEnvOverrides lets deployment environments override the file without
// editing it.
func applyEnvOverrides(cfg *config.Config) {
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.JWTSecret = getEnv("JWT_SECRET", cfg.Server.JWTSecret)
	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.SQLite.Path = getEnv("SQLITE_PATH", cfg.Storage.SQLite.Path)
	cfg.Storage.Postgres.URL = getEnv("DATABASE_URL", cfg.Storage.Postgres.URL)
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.Credentials.TokenFile = getEnv("TOKEN_FILE", cfg.Credentials.TokenFile)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
