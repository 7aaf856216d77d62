package network

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultDialTimeout  = 3 * time.Second
)

// Config configures a Monitor.
type Config struct {
	// ProbeAddress is dialled over TCP, e.g. "1.1.1.1:53".
	ProbeAddress string
	PollInterval time.Duration
	DialTimeout  time.Duration
}

// Logger defines the logging interface used by the monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// dialFunc matches net.Dialer.DialContext.
type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Monitor probes reachability and fans status changes out to subscribers.
type Monitor struct {
	cfg    Config
	dial   dialFunc
	logger Logger

	mu      sync.Mutex
	status  transport.NetworkStatus
	subs    map[uint64]func(transport.NetworkStatus)
	nextSub uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a stopped monitor reporting NetworkConnecting.
func New(cfg Config, logger Logger) (*Monitor, error) {
	if cfg.ProbeAddress == "" {
		return nil, ErrNoProbeAddress
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Monitor{
		cfg:    cfg,
		dial:   d.DialContext,
		logger: logger,
		status: transport.NetworkConnecting,
		subs:   make(map[uint64]func(transport.NetworkStatus)),
	}, nil
}

// Start probes once immediately and then every PollInterval until ctx is
// cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	m.logger.Info("network monitor starting",
		"probe", m.cfg.ProbeAddress,
		"interval", m.cfg.PollInterval,
	)

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()

		for {
			m.Probe(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// Stop halts probing and waits for the loop to exit. The last status is
// kept.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Probe dials the probe address once and records the result.
func (m *Monitor) Probe(ctx context.Context) transport.NetworkStatus {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	status := transport.NetworkConnecting
	conn, err := m.dial(dialCtx, "tcp", m.cfg.ProbeAddress)
	if err == nil {
		conn.Close() //nolint:errcheck // Probe connection carries no data
		status = transport.NetworkConnected
	} else if ctx.Err() != nil {
		// Shutting down; a cancelled dial says nothing about the link.
		return m.Status()
	} else {
		m.logger.Debug("network probe failed", "probe", m.cfg.ProbeAddress, "error", err)
	}

	m.set(status)
	return status
}

// Status returns the last observed status.
func (m *Monitor) Status() transport.NetworkStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe registers fn for status changes. fn is called from the probe
// goroutine and must not block. The returned function unregisters it.
func (m *Monitor) Subscribe(fn func(transport.NetworkStatus)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Monitor) set(status transport.NetworkStatus) {
	m.mu.Lock()
	if status == m.status {
		m.mu.Unlock()
		return
	}
	m.status = status
	subs := make([]func(transport.NetworkStatus), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if status == transport.NetworkConnected {
		m.logger.Info("network reachable", "probe", m.cfg.ProbeAddress)
	} else {
		m.logger.Warn("network unreachable", "probe", m.cfg.ProbeAddress)
	}
	for _, fn := range subs {
		fn(status)
	}
}
