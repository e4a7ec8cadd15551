package netmon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeDialer flips between reachable and unreachable under test control
type fakeDialer struct {
	mu  sync.Mutex
	err error
}

func (d *fakeDialer) dial(addr string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *fakeDialer) set(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func newTestMonitor(t *testing.T) (*Monitor, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	m := NewMonitor(Config{
		ProbeAddr:    "probe.invalid:443",
		ProbeTimeout: 100 * time.Millisecond,
		Interval:     10 * time.Millisecond,
	})
	m.dial = d.dial
	return m, d
}

// TestMonitor_InitialProbe tests that Start seeds the state synchronously
func TestMonitor_InitialProbe(t *testing.T) {
	m, d := newTestMonitor(t)

	d.set(errors.New("unreachable"))
	m.Start(context.Background())
	defer m.Stop()

	if m.IsOnline() {
		t.Error("expected offline after failing initial probe")
	}
}

// TestMonitor_TransitionNotifies tests that subscribers see state changes
func TestMonitor_TransitionNotifies(t *testing.T) {
	m, d := newTestMonitor(t)

	transitions := make(chan bool, 16)
	unsubscribe := m.Subscribe(func(online bool) {
		transitions <- online
	})
	defer unsubscribe()

	m.Start(context.Background())
	defer m.Stop()
	if !m.IsOnline() {
		t.Fatal("expected online after successful initial probe")
	}

	d.set(errors.New("unreachable"))
	select {
	case online := <-transitions:
		if online {
			t.Error("expected offline transition")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for offline transition")
	}

	d.set(nil)
	select {
	case online := <-transitions:
		if !online {
			t.Error("expected online transition")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for online transition")
	}
}

// TestMonitor_SteadyStateIsQuiet tests that repeated identical probes do not
// renotify subscribers
func TestMonitor_SteadyStateIsQuiet(t *testing.T) {
	m, d := newTestMonitor(t)
	d.set(nil)

	var mu sync.Mutex
	count := 0
	unsubscribe := m.Subscribe(func(online bool) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer unsubscribe()

	m.Start(context.Background())
	defer m.Stop()

	// Several probe intervals pass without a state change
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("expected no notifications in steady state, got %d", count)
	}
}

// TestMonitor_Unsubscribe tests that unsubscribing stops notifications and
// is idempotent
func TestMonitor_Unsubscribe(t *testing.T) {
	m, d := newTestMonitor(t)
	d.set(nil)
	m.Start(context.Background())
	defer m.Stop()

	notified := make(chan bool, 16)
	unsubscribe := m.Subscribe(func(online bool) { notified <- online })
	unsubscribe()
	unsubscribe()

	d.set(errors.New("unreachable"))
	time.Sleep(100 * time.Millisecond)

	select {
	case <-notified:
		t.Error("unsubscribed callback was notified")
	default:
	}
}

// TestMonitor_StopHaltsProbing tests that Stop terminates the probe loop
func TestMonitor_StopHaltsProbing(t *testing.T) {
	m, d := newTestMonitor(t)
	d.set(nil)
	m.Start(context.Background())
	m.Stop()

	d.set(errors.New("unreachable"))
	time.Sleep(50 * time.Millisecond)

	// The last probe before Stop was online; no probe ran after
	if !m.IsOnline() {
		t.Error("state changed after Stop")
	}
}
