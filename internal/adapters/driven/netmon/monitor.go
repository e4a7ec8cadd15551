// Package netmon implements the connectivity monitor by periodically dialing
// a probe address. The orchestrator consults it before every scheduled sync
// and reacts to offline/online transitions through subscriptions.
package netmon

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.NetworkMonitor = (*Monitor)(nil)

// Monitor polls a TCP endpoint and tracks reachability. Subscribers are
// notified only on transitions, not on every probe.
type Monitor struct {
	probeAddr string
	timeout   time.Duration
	interval  time.Duration
	logger    *slog.Logger

	// dial is swapped in tests
	dial func(addr string, timeout time.Duration) error

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds monitor configuration
type Config struct {
	// ProbeAddr is the TCP endpoint dialed to decide reachability
	ProbeAddr string
	// ProbeTimeout bounds each dial attempt
	ProbeTimeout time.Duration
	// Interval is the time between probes
	Interval time.Duration
	Logger   *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ProbeAddr:    "1.1.1.1:443",
		ProbeTimeout: 2 * time.Second,
		Interval:     15 * time.Second,
	}
}

// NewMonitor creates the monitor. It starts offline until the first probe;
// call Start to begin probing.
func NewMonitor(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProbeAddr == "" {
		cfg.ProbeAddr = "1.1.1.1:443"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}

	return &Monitor{
		probeAddr: cfg.ProbeAddr,
		timeout:   cfg.ProbeTimeout,
		interval:  cfg.Interval,
		logger:    logger,
		dial:      dialTCP,
		subs:      make(map[int]func(online bool)),
	}
}

func dialTCP(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Start probes once synchronously to seed the initial state, then keeps
// probing on the interval until Stop or context cancellation.
func (m *Monitor) Start(ctx context.Context) {
	m.check()

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.check()
			}
		}
	}()
}

// Stop halts probing and waits for the probe loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// check runs one probe and notifies subscribers on a state transition.
func (m *Monitor) check() {
	online := m.dial(m.probeAddr, m.timeout) == nil

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	var fns []func(bool)
	if changed {
		fns = make([]func(bool), 0, len(m.subs))
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("connectivity changed", "online", online, "probe", m.probeAddr)
	for _, fn := range fns {
		fn(online)
	}
}

// IsOnline reports the result of the most recent probe.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a transition callback. The returned unsubscribe is
// safe to call more than once.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}
