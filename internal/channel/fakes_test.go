package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/configstore"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// fakeMonitor is a hand-driven network monitor.
type fakeMonitor struct {
	mu     sync.Mutex
	status transport.NetworkStatus
	subs   map[int]func(transport.NetworkStatus)
	next   int
}

func newFakeMonitor(status transport.NetworkStatus) *fakeMonitor {
	return &fakeMonitor{status: status, subs: make(map[int]func(transport.NetworkStatus))}
}

func (m *fakeMonitor) Status() transport.NetworkStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *fakeMonitor) Subscribe(fn func(transport.NetworkStatus)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *fakeMonitor) set(status transport.NetworkStatus) {
	m.mu.Lock()
	m.status = status
	subs := make([]func(transport.NetworkStatus), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(status)
	}
}

func (m *fakeMonitor) subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// fakeStore serves fixed items, or blocks until release is closed.
type fakeStore struct {
	mu      sync.Mutex
	items   []configstore.Item
	err     error
	release chan struct{}
	calls   int
}

func (s *fakeStore) Fetch(ctx context.Context, keys []transport.ConfigKey) ([]configstore.Item, error) {
	s.mu.Lock()
	s.calls++
	release := s.release
	items, err := s.items, s.err
	s.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return items, err
}

func (s *fakeStore) Close() error { return nil }

// fakeSession records requests and lets tests emit items.
type fakeSession struct {
	mu      sync.Mutex
	cfg     mqtt.SessionConfig
	emit    func(mqtt.Item)
	lost    func(error)
	err     error
	connect []transport.ConnectRequest
	publish []transport.PublishRequest
	acked   []uint32
	closed  bool
}

func (s *fakeSession) Connect(req transport.ConnectRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connect = append(s.connect, req)
	return s.err
}

func (s *fakeSession) Subscribe(transport.SubscribeRequest) error     { return s.result() }
func (s *fakeSession) Unsubscribe(transport.UnsubscribeRequest) error { return s.result() }
func (s *fakeSession) Disconnect() error                              { return s.result() }

func (s *fakeSession) Publish(req transport.PublishRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish = append(s.publish, req)
	return s.err
}

func (s *fakeSession) Ack(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, id)
	return nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSession) result() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) ackedIDs() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.acked...)
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// notifications collects provider notifications.
type notifications struct {
	mu  sync.Mutex
	got []transport.Notification
	ch  chan struct{}
}

func newNotifications() *notifications {
	return &notifications{ch: make(chan struct{}, 64)}
}

func (n *notifications) notify(note transport.Notification) {
	n.mu.Lock()
	n.got = append(n.got, note)
	n.mu.Unlock()
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *notifications) all() []transport.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]transport.Notification(nil), n.got...)
}

// wait blocks until at least count notifications arrived.
func (n *notifications) wait(t *testing.T, count int) []transport.Notification {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := n.all(); len(got) >= count {
			return got
		}
		select {
		case <-n.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d notifications, got %v", count, n.all())
		}
	}
}

type testProvider struct {
	p        *Provider
	monitor  *fakeMonitor
	store    *fakeStore
	notes    *notifications
	mu       sync.Mutex
	sessions []*fakeSession
}

func newTestProvider(t *testing.T, cfg Config) *testProvider {
	t.Helper()
	tp := &testProvider{
		monitor: newFakeMonitor(transport.NetworkConnected),
		store:   &fakeStore{},
		notes:   newNotifications(),
	}
	p, err := New(cfg, Deps{
		Monitor:  tp.monitor,
		Store:    tp.store,
		Notifier: tp.notes.notify,
		NewSession: func(cfg mqtt.SessionConfig, emit func(mqtt.Item), lost func(error)) Session {
			s := &fakeSession{cfg: cfg, emit: emit, lost: lost}
			tp.mu.Lock()
			tp.sessions = append(tp.sessions, s)
			tp.mu.Unlock()
			return s
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	tp.p = p
	t.Cleanup(p.Close)
	return tp
}

func (tp *testProvider) session(i int) *fakeSession {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.sessions[i]
}

func (tp *testProvider) network(t *testing.T) transport.Handle {
	t.Helper()
	h, err := tp.p.RequestNetwork(transport.TagNetwork)
	if err != nil {
		t.Fatalf("RequestNetwork() error = %v", err)
	}
	return h
}

func (tp *testProvider) open(t *testing.T, kind transport.ChannelKind, tag transport.Tag, buffers transport.Buffers) transport.Handle {
	t.Helper()
	h, err := tp.p.OpenChannel(transport.ChannelParams{
		Kind:    kind,
		Tag:     tag,
		Network: tp.network(t),
		Buffers: buffers,
	})
	if err != nil {
		t.Fatalf("OpenChannel() error = %v", err)
	}
	return h
}
