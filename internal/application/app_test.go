package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

type fakeLink struct {
	mu       sync.Mutex
	produced []string
	consumed []uint32
	err      error
}

func (l *fakeLink) Produce(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.produced = append(l.produced, string(payload))
	return nil
}

func (l *fakeLink) Consumed(correlationID uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consumed = append(l.consumed, correlationID)
}

func (l *fakeLink) payloads() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.produced...)
}

func (l *fakeLink) consumedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.consumed)
}

func (l *fakeLink) consumedIDs() []uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint32(nil), l.consumed...)
}

type fakeTelemetry struct {
	mu           sync.Mutex
	readings     []float64
	connectivity []bool
	commands     []string
}

func (f *fakeTelemetry) WriteReading(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, v)
}

func (f *fakeTelemetry) WriteConnectivity(c bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectivity = append(f.connectivity, c)
}

func (f *fakeTelemetry) WriteCommand(action string, _ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, action)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testApp struct {
	app   *App
	link  *fakeLink
	tel   *fakeTelemetry
	clock *fakeClock
	sw    *MemorySwitch
}

func newTestApp(t *testing.T, kind string) *testApp {
	t.Helper()
	ta := &testApp{
		link:  &fakeLink{},
		tel:   &fakeTelemetry{},
		clock: &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		sw:    &MemorySwitch{},
	}
	app, err := New(Config{Kind: kind, PublishInterval: time.Minute}, Deps{
		Telemetry: ta.tel,
		Actuator:  ta.sw,
		Now:       ta.clock.Now,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ta.app = app
	return ta
}

// step handles one queued event, then polls, as one Run iteration does.
func (ta *testApp) step(t *testing.T) {
	t.Helper()
	select {
	case ev := <-ta.app.events:
		ta.app.handle(ev, ta.link)
	default:
	}
	ta.app.poll(ta.link)
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(Config{Kind: "thermostat"}, Deps{}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("New() error = %v, want ErrUnknownKind", err)
	}
}

func TestDummy_PublishesOnlyWhenConnected(t *testing.T) {
	ta := newTestApp(t, KindDummy)

	ta.step(t)
	if got := ta.link.payloads(); len(got) != 0 {
		t.Fatalf("produced before connect: %v", got)
	}

	ta.app.Connected()
	ta.step(t)
	got := ta.link.payloads()
	if len(got) != 1 || got[0] != `{"temperature_celsius":1.00}` {
		t.Fatalf("produced = %v, want first reading 1.00", got)
	}
	if len(ta.tel.connectivity) != 1 || !ta.tel.connectivity[0] {
		t.Errorf("connectivity telemetry = %v, want [true]", ta.tel.connectivity)
	}
}

func TestDummy_OneReadingInFlight(t *testing.T) {
	ta := newTestApp(t, KindDummy)
	ta.app.Connected()
	ta.step(t)

	ta.clock.Advance(2 * time.Minute)
	ta.step(t)
	if got := len(ta.link.payloads()); got != 1 {
		t.Fatalf("produced = %d while a reading is in flight, want 1", got)
	}

	ta.app.PublishDone(nil)
	ta.step(t)
	got := ta.link.payloads()
	if len(got) != 2 || got[1] != `{"temperature_celsius":1.10}` {
		t.Fatalf("produced = %v, want second reading 1.10", got)
	}
	if len(ta.tel.readings) != 1 || ta.tel.readings[0] != 1.0 {
		t.Errorf("reading telemetry = %v, want [1]", ta.tel.readings)
	}
	if s := ta.app.Status(); s.Published != 1 || s.LastReading != 1.0 || !s.InFlight {
		t.Errorf("Status() = %+v", s)
	}
}

func TestDummy_WaitsForInterval(t *testing.T) {
	ta := newTestApp(t, KindDummy)
	ta.app.Connected()
	ta.step(t)
	ta.app.PublishDone(nil)
	ta.step(t)
	if got := len(ta.link.payloads()); got != 1 {
		t.Fatalf("produced = %d before the interval elapsed, want 1", got)
	}

	ta.clock.Advance(time.Minute)
	ta.step(t)
	if got := len(ta.link.payloads()); got != 2 {
		t.Errorf("produced = %d after the interval, want 2", got)
	}
}

func TestDummy_ReadingWraps(t *testing.T) {
	ta := newTestApp(t, KindDummy)
	ta.app.reading = lastReading
	ta.app.Connected()
	ta.step(t)
	ta.app.PublishDone(nil)
	ta.clock.Advance(time.Minute)
	ta.step(t)

	got := ta.link.payloads()
	want := []string{`{"temperature_celsius":50.00}`, `{"temperature_celsius":1.00}`}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("produced = %v, want %v", got, want)
	}
}

func TestDummy_StopRestart(t *testing.T) {
	ta := newTestApp(t, KindDummy)
	ta.app.Connected()
	ta.step(t)

	ta.app.Deliver(transport.Message{CorrelationID: 1, Topic: "command/device/edge-01", Payload: []byte("stop")})
	ta.step(t)
	ta.app.PublishDone(nil)
	ta.clock.Advance(5 * time.Minute)
	ta.step(t)
	if got := len(ta.link.payloads()); got != 1 {
		t.Fatalf("produced = %d while stopped, want 1", got)
	}
	if ta.app.Status().Running {
		t.Error("Status().Running = true after stop")
	}

	ta.app.Deliver(transport.Message{CorrelationID: 2, Payload: []byte("restart")})
	ta.step(t)
	if got := len(ta.link.payloads()); got != 2 {
		t.Errorf("produced = %d after restart, want 2", got)
	}
	if got := ta.link.consumedIDs(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Consumed() ids = %v, want [1 2]", got)
	}
	if len(ta.tel.commands) != 2 {
		t.Errorf("command telemetry = %v, want stop and restart", ta.tel.commands)
	}
}

func TestDummy_ProduceErrorRetriesNextInterval(t *testing.T) {
	ta := newTestApp(t, KindDummy)
	ta.link.err = errors.New("outbox full")
	ta.app.Connected()
	ta.step(t)

	if s := ta.app.Status(); s.InFlight || s.Failed != 1 {
		t.Fatalf("Status() = %+v, want failed and not in flight", s)
	}

	ta.link.err = nil
	ta.clock.Advance(time.Minute)
	ta.step(t)
	got := ta.link.payloads()
	if len(got) != 1 || got[0] != `{"temperature_celsius":1.00}` {
		t.Errorf("produced = %v, want the unsent reading", got)
	}
}

func TestDummy_PublishFailureNotRecorded(t *testing.T) {
	ta := newTestApp(t, KindDummy)
	ta.app.Connected()
	ta.step(t)
	ta.app.PublishDone(errors.New("not ready"))
	ta.step(t)

	if len(ta.tel.readings) != 0 {
		t.Errorf("reading telemetry = %v, want none", ta.tel.readings)
	}
	if s := ta.app.Status(); s.Failed != 1 || s.Published != 0 {
		t.Errorf("Status() = %+v", s)
	}
}

func TestSwitch_Actions(t *testing.T) {
	tests := []struct {
		name          string
		payload       string
		initialClosed bool
		wantClosed    bool
		applied       bool
	}{
		{"close", `{"action":"switch_close"}`, false, true, true},
		{"open with spacing", `{ "action" : "switch_open" }`, true, false, true},
		{"unknown action", `{"action":"switch_sideways"}`, true, true, false},
		{"not json", `not json`, false, false, false},
		{"sensor command", `stop`, true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, KindSwitch)
			if tt.initialClosed {
				ta.sw.Close()
			}

			ta.app.Deliver(transport.Message{CorrelationID: 9, Payload: []byte(tt.payload)})
			ta.step(t)

			if ta.sw.IsClosed() != tt.wantClosed {
				t.Errorf("IsClosed() = %v, want %v", ta.sw.IsClosed(), tt.wantClosed)
			}
			if got := ta.link.consumedCount(); got != 1 {
				t.Errorf("Consumed() calls = %d, want 1", got)
			}
			if got := len(ta.tel.commands) == 1; got != tt.applied {
				t.Errorf("command recorded = %v, want %v", got, tt.applied)
			}
		})
	}
}

func TestSwitch_NeverProduces(t *testing.T) {
	ta := newTestApp(t, KindSwitch)
	ta.app.Connected()
	ta.clock.Advance(time.Hour)
	ta.step(t)
	if got := ta.link.payloads(); len(got) != 0 {
		t.Errorf("produced = %v, want none", got)
	}
	if s := ta.app.Status(); s.SwitchOpen == nil || !*s.SwitchOpen {
		t.Errorf("Status().SwitchOpen = %v, want open", s.SwitchOpen)
	}
}

func TestDeliver_CopiesPayload(t *testing.T) {
	ta := newTestApp(t, KindSwitch)
	buf := []byte(`{"action":"switch_close"}`)
	ta.app.Deliver(transport.Message{Payload: buf})
	copy(buf, "xxxxxxxxxxxxxxxxxxxxxxxxx")
	ta.step(t)

	if !ta.sw.IsClosed() {
		t.Error("switch not closed; payload was not copied on Deliver")
	}
}

func TestPost_FullQueueReleasesMessage(t *testing.T) {
	app, err := New(Config{Kind: KindSwitch, QueueSize: 1}, Deps{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	link := &fakeLink{}
	app.link = link

	app.Connected()
	app.Deliver(transport.Message{CorrelationID: 1})
	if got := link.consumedIDs(); len(got) != 1 || got[0] != 1 {
		t.Errorf("Consumed() ids = %v, want [1] for the dropped message", got)
	}
}

func TestRun(t *testing.T) {
	link := &fakeLink{}
	app, err := New(Config{Kind: KindDummy, PollInterval: 5 * time.Millisecond}, Deps{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := app.Run(context.Background(), nil); !errors.Is(err, ErrNoLink) {
		t.Fatalf("Run(nil) error = %v, want ErrNoLink", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, link) }()

	app.Connected()
	deadline := time.Now().Add(2 * time.Second)
	for len(link.payloads()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := link.payloads(); len(got) != 1 {
		t.Errorf("produced = %v, want one reading", got)
	}
}
