package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// switchDialer fails or succeeds on demand.
type switchDialer struct {
	mu    sync.Mutex
	up    bool
	calls int
}

func (d *switchDialer) set(up bool) {
	d.mu.Lock()
	d.up = up
	d.mu.Unlock()
}

func (d *switchDialer) dial(_ context.Context, _, _ string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if !d.up {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func newTestMonitor(t *testing.T, d *switchDialer) *Monitor {
	t.Helper()
	m, err := New(Config{ProbeAddress: "probe.invalid:53", PollInterval: 5 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m.dial = d.dial
	return m
}

func TestNew_RequiresProbeAddress(t *testing.T) {
	if _, err := New(Config{}, nil); !errors.Is(err, ErrNoProbeAddress) {
		t.Errorf("New() error = %v, want ErrNoProbeAddress", err)
	}
}

func TestMonitor_ProbeRealListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()

	m, err := New(Config{ProbeAddress: addr, DialTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := m.Probe(context.Background()); got != transport.NetworkConnected {
		t.Errorf("Probe() = %v, want connected", got)
	}

	ln.Close()
	if got := m.Probe(context.Background()); got != transport.NetworkConnecting {
		t.Errorf("Probe() after close = %v, want connecting", got)
	}
}

func TestMonitor_SubscribersSeeTransitions(t *testing.T) {
	d := &switchDialer{}
	m := newTestMonitor(t, d)

	var mu sync.Mutex
	var seen []transport.NetworkStatus
	unsubscribe := m.Subscribe(func(s transport.NetworkStatus) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	ctx := context.Background()
	m.Probe(ctx) // connecting -> connecting: no change
	d.set(true)
	m.Probe(ctx)
	m.Probe(ctx) // unchanged
	d.set(false)
	m.Probe(ctx)

	unsubscribe()
	d.set(true)
	m.Probe(ctx)

	mu.Lock()
	defer mu.Unlock()
	want := []transport.NetworkStatus{transport.NetworkConnected, transport.NetworkConnecting}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
	if m.Status() != transport.NetworkConnected {
		t.Errorf("Status() = %v, want connected", m.Status())
	}
}

func TestMonitor_StartStop(t *testing.T) {
	d := &switchDialer{up: true}
	m := newTestMonitor(t, d)

	changed := make(chan transport.NetworkStatus, 4)
	m.Subscribe(func(s transport.NetworkStatus) { changed <- s })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	select {
	case s := <-changed:
		if s != transport.NetworkConnected {
			t.Errorf("first change = %v, want connected", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first probe")
	}

	m.Stop()
	m.Stop()

	d.mu.Lock()
	calls := d.calls
	d.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls != calls {
		t.Errorf("probes after Stop = %d, want 0", d.calls-calls)
	}
}

func TestMonitor_CancelledProbeKeepsStatus(t *testing.T) {
	d := &switchDialer{up: true}
	m := newTestMonitor(t, d)
	m.Probe(context.Background())

	d.set(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := m.Probe(ctx); got != transport.NetworkConnected {
		t.Errorf("Probe(cancelled) = %v, want last status connected", got)
	}
}
