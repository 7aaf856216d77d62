package work

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/configbridge"
	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// readableItem is one entry of the fake broker channel's readable FIFO.
type readableItem struct {
	kind        transport.ReadableKind
	connect     transport.ConnectResponse
	subscribe   transport.SubscribeResponse
	unsubscribe transport.UnsubscribeResponse
	publish     transport.PublishResponse
	message     transport.Message
	lost        transport.LostMessage
}

// fakeProvider is a scripted transport.Provider recording every request.
type fakeProvider struct {
	mu sync.Mutex

	netStatus transport.NetworkStatus
	netErr    error

	openErr       error
	connectErr    error
	subscribeErr  error
	publishErr    error
	disconnectErr error
	receiveErr    error
	ackErr        error

	// autoRespond queues a successful response for every request and
	// raises the matching notification through notify.
	autoRespond bool
	notify      transport.Notifier

	nextHandle transport.Handle
	netHandle  transport.Handle
	open       map[transport.Handle]transport.ChannelKind
	violations []string

	configResp  transport.ConfigFetchResponse
	configItems []transport.ConfigItem
	fetchKeys   [][]transport.ConfigKey
	configReady bool

	readable []readableItem

	opened       []transport.ChannelKind
	closed       int
	connects     []transport.ConnectRequest
	subscribes   []transport.SubscribeRequest
	unsubscribes []transport.UnsubscribeRequest
	publishes    []transport.PublishRequest
	disconnects  int
	receives     int
	acks         []uint32
	released     int
	calls        []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		netStatus:  transport.NetworkConnecting,
		nextHandle: 10,
		open:       make(map[transport.Handle]transport.ChannelKind),
	}
}

func (p *fakeProvider) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakeProvider) raise(tag transport.Tag, typ transport.EventType) {
	if p.notify != nil {
		p.notify(transport.Notification{Tag: tag, Type: typ})
	}
}

func (p *fakeProvider) setNetwork(s transport.NetworkStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.netStatus = s
}

func (p *fakeProvider) scriptConfig(items ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configResp = transport.ConfigFetchResponse{Result: transport.ConfigFetchOK, NumItems: len(items)}
	p.configItems = nil
	for _, it := range items {
		p.configItems = append(p.configItems, transport.ConfigItem{Result: transport.ConfigKeyOK, Data: []byte(it)})
	}
}

func (p *fakeProvider) push(items ...readableItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.brokerOpenLocked() {
		p.readable = append(p.readable, items...)
	}
}

func (p *fakeProvider) brokerOpenLocked() bool {
	for _, k := range p.open {
		if k == transport.ChannelMQTT {
			return true
		}
	}
	return false
}

func (p *fakeProvider) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}

func (p *fakeProvider) RequestNetwork(transport.Tag) (transport.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("request_network")
	if p.netErr != nil {
		return 0, p.netErr
	}
	p.netHandle = 1
	return p.netHandle, nil
}

func (p *fakeProvider) ReleaseNetwork(transport.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("release_network")
	p.released++
	return nil
}

func (p *fakeProvider) NetworkStatus(transport.Handle) (transport.NetworkStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.netStatus, nil
}

func (p *fakeProvider) OpenChannel(params transport.ChannelParams) (transport.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("open_" + params.Kind.String())
	if p.openErr != nil {
		return 0, p.openErr
	}
	for h, k := range p.open {
		p.violations = append(p.violations, fmt.Sprintf("open %s while %s channel %d is open", params.Kind, k, h))
	}
	if len(params.Buffers.Send) == 0 || len(params.Buffers.Receive) == 0 {
		p.violations = append(p.violations, "channel opened without buffers")
	}
	p.nextHandle++
	p.open[p.nextHandle] = params.Kind
	p.opened = append(p.opened, params.Kind)
	return p.nextHandle, nil
}

func (p *fakeProvider) CloseChannel(h transport.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	kind, ok := p.open[h]
	if !ok {
		return transport.ErrUnknownHandle
	}
	p.record("close_" + kind.String())
	delete(p.open, h)
	p.closed++
	if kind == transport.ChannelMQTT {
		p.readable = nil
	}
	return nil
}

func (p *fakeProvider) SendConfigFetchRequest(_ transport.Handle, keys []transport.ConfigKey) error {
	p.mu.Lock()
	p.record("config_fetch")
	p.fetchKeys = append(p.fetchKeys, keys)
	p.configReady = true
	auto := p.autoRespond
	p.mu.Unlock()

	if auto {
		p.raise(transport.TagConfig, transport.ChannelDataReadable)
	}
	return nil
}

func (p *fakeProvider) ReadConfigFetchResponse(transport.Handle) (transport.ConfigFetchResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configReady = false
	return p.configResp, nil
}

func (p *fakeProvider) ReadConfigItem(_ transport.Handle, index int) (transport.ConfigItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.configItems) {
		return transport.ConfigItem{}, transport.ErrInvalidRequest
	}
	return p.configItems[index], nil
}

// request records a broker request and, with autoRespond, queues its
// response and announces it.
func (p *fakeProvider) request(call string, err error, resp *readableItem) error {
	p.mu.Lock()
	p.record(call)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	auto := p.autoRespond && resp != nil
	if auto {
		p.readable = append(p.readable, *resp)
	}
	p.mu.Unlock()

	if auto {
		p.raise(transport.TagBroker, transport.ChannelDataReadable)
	}
	return nil
}

func (p *fakeProvider) RequestConnect(_ transport.Handle, req transport.ConnectRequest) error {
	p.mu.Lock()
	p.connects = append(p.connects, req)
	p.mu.Unlock()
	return p.request("connect", p.connectErr, &readableItem{kind: transport.ReadableConnectResponse})
}

func (p *fakeProvider) RequestSubscribe(_ transport.Handle, req transport.SubscribeRequest) error {
	p.mu.Lock()
	p.subscribes = append(p.subscribes, req)
	p.mu.Unlock()
	return p.request("subscribe", p.subscribeErr, &readableItem{
		kind:      transport.ReadableSubscribeResponse,
		subscribe: transport.SubscribeResponse{CorrelationID: req.CorrelationID, ReasonCodes: []uint32{1}},
	})
}

func (p *fakeProvider) RequestUnsubscribe(_ transport.Handle, req transport.UnsubscribeRequest) error {
	p.mu.Lock()
	p.unsubscribes = append(p.unsubscribes, req)
	p.mu.Unlock()
	return p.request("unsubscribe", nil, &readableItem{
		kind:        transport.ReadableUnsubscribeResponse,
		unsubscribe: transport.UnsubscribeResponse{CorrelationID: req.CorrelationID},
	})
}

func (p *fakeProvider) RequestPublish(_ transport.Handle, req transport.PublishRequest) error {
	p.mu.Lock()
	if p.publishErr == nil {
		p.publishes = append(p.publishes, req)
	}
	p.mu.Unlock()
	return p.request("publish", p.publishErr, &readableItem{
		kind:    transport.ReadablePublishResponse,
		publish: transport.PublishResponse{CorrelationID: req.CorrelationID},
	})
}

func (p *fakeProvider) RequestDisconnect(transport.Handle) error {
	p.mu.Lock()
	p.disconnects++
	p.mu.Unlock()
	return p.request("disconnect", p.disconnectErr, &readableItem{kind: transport.ReadableDisconnectResponse})
}

func (p *fakeProvider) NextReadableKind(h transport.Handle) (transport.ReadableKind, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open[h] == transport.ChannelConfigFetch {
		if p.configReady {
			return transport.ReadableConfigResponse, nil
		}
		return transport.ReadableNone, nil
	}
	if len(p.readable) == 0 {
		return transport.ReadableNone, nil
	}
	return p.readable[0].kind, nil
}

func (p *fakeProvider) pop(kind transport.ReadableKind) (readableItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.readable) == 0 {
		return readableItem{}, transport.ErrNothingReadable
	}
	if p.readable[0].kind != kind {
		return readableItem{}, transport.ErrWrongReadable
	}
	it := p.readable[0]
	p.readable = p.readable[1:]
	return it, nil
}

func (p *fakeProvider) ReadConnectResponse(transport.Handle) (transport.ConnectResponse, error) {
	it, err := p.pop(transport.ReadableConnectResponse)
	return it.connect, err
}

func (p *fakeProvider) ReadSubscribeResponse(transport.Handle) (transport.SubscribeResponse, error) {
	it, err := p.pop(transport.ReadableSubscribeResponse)
	return it.subscribe, err
}

func (p *fakeProvider) ReadUnsubscribeResponse(transport.Handle) (transport.UnsubscribeResponse, error) {
	it, err := p.pop(transport.ReadableUnsubscribeResponse)
	return it.unsubscribe, err
}

func (p *fakeProvider) ReadPublishResponse(transport.Handle) (transport.PublishResponse, error) {
	it, err := p.pop(transport.ReadablePublishResponse)
	return it.publish, err
}

func (p *fakeProvider) ReadDisconnectResponse(transport.Handle) (transport.DisconnectResponse, error) {
	_, err := p.pop(transport.ReadableDisconnectResponse)
	return transport.DisconnectResponse{}, err
}

func (p *fakeProvider) ReceiveMessage(transport.Handle) (transport.Message, error) {
	p.mu.Lock()
	p.receives++
	p.record("receive")
	err := p.receiveErr
	p.mu.Unlock()
	if err != nil {
		return transport.Message{}, err
	}
	it, err := p.pop(transport.ReadableMessage)
	return it.message, err
}

func (p *fakeProvider) ReceiveLostMessageInfo(transport.Handle) (transport.LostMessage, error) {
	it, err := p.pop(transport.ReadableMessageLost)
	return it.lost, err
}

func (p *fakeProvider) AcknowledgeMessage(_ transport.Handle, id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(fmt.Sprintf("ack_%d", id))
	if p.ackErr != nil {
		return p.ackErr
	}
	p.acks = append(p.acks, id)
	return nil
}

// fakeConsumer records application callbacks.
type fakeConsumer struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	delivered    []transport.Message
	publishDone  []error
}

func (c *fakeConsumer) Connected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected++
}

func (c *fakeConsumer) Disconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected++
}

func (c *fakeConsumer) Deliver(msg transport.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Payload = append([]byte(nil), msg.Payload...)
	c.delivered = append(c.delivered, msg)
}

func (c *fakeConsumer) PublishDone(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishDone = append(c.publishDone, err)
}

func (c *fakeConsumer) counts() (connected, disconnected, delivered, done int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected, c.disconnected, len(c.delivered), len(c.publishDone)
}

// fakeScheduler keeps timers until the test fires them.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	}
}

// fireLast runs the most recent live timer and reports its delay.
func (s *fakeScheduler) fireLast() (time.Duration, bool) {
	s.mu.Lock()
	var live *fakeTimer
	for i := len(s.timers) - 1; i >= 0; i-- {
		if !s.timers[i].stopped {
			live = s.timers[i]
			break
		}
	}
	if live != nil {
		live.stopped = true
	}
	s.mu.Unlock()

	if live == nil {
		return 0, false
	}
	live.fn()
	return live.delay, true
}

func (s *fakeScheduler) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// fakeMetrics records the processed event sequence.
type fakeMetrics struct {
	mu         sync.Mutex
	processed  []string
	dropped    []string
	phases     []string
	reconnects []time.Duration
	lost       int
}

func (m *fakeMetrics) EventProcessed(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, kind)
}

func (m *fakeMetrics) EventDropped(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, kind)
}

func (m *fakeMetrics) PhaseChanged(phase string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, phase)
}

func (m *fakeMetrics) ReconnectScheduled(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects = append(m.reconnects, d)
}

func (m *fakeMetrics) MessageDelivered() {}

func (m *fakeMetrics) MessageLost() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lost++
}

func (m *fakeMetrics) PublishCompleted(bool) {}

// fakeBridge returns fixed credentials for two fixed keys.
type fakeBridge struct {
	mu      sync.Mutex
	creds   configbridge.Credentials
	err     error
	decoded [][][]byte
}

func (b *fakeBridge) Keys() []transport.ConfigKey {
	return []transport.ConfigKey{
		{Scope: transport.ScopeDevice, Store: transport.StoreConfig, Key: "broker-host"},
		{Scope: transport.ScopeDevice, Store: transport.StoreSecret, Key: "broker-password"},
	}
}

func (b *fakeBridge) Decode(items [][]byte) (*configbridge.Credentials, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.decoded = append(b.decoded, items)
	if b.err != nil {
		return nil, b.err
	}
	c := b.creds
	return &c, nil
}

func testCredentials() configbridge.Credentials {
	return configbridge.Credentials{
		Method:   configbridge.AuthPassword,
		ClientID: "dev-1",
		Host:     "broker.local",
		Port:     1883,
		Username: "edge",
		Password: "secret",
	}
}

// harness wires an orchestrator to fakes and drives it synchronously.
type harness struct {
	t        *testing.T
	o        *Orchestrator
	queue    *Queue
	provider *fakeProvider
	consumer *fakeConsumer
	sched    *fakeScheduler
	metrics  *fakeMetrics
	bridge   *fakeBridge
	now      time.Time
}

func testConfig() Config {
	return Config{
		CommandTopic:   "command/device/dev-1",
		TelemetryTopic: "sensor/device/dev-1",
		QoS:            1,
		RequestTimeout: 10 * time.Second,
		Reconnect: ReconnectConfig{
			InitialDelay: time.Second,
			MaxDelay:     8 * time.Second,
			Multiplier:   2,
		},
	}
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		t:        t,
		queue:    NewQueue(DefaultQueueSize),
		provider: newFakeProvider(),
		consumer: &fakeConsumer{},
		sched:    &fakeScheduler{},
		metrics:  &fakeMetrics{},
		bridge:   &fakeBridge{creds: testCredentials()},
		now:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	o, err := New(cfg, Deps{
		Provider:    h.provider,
		Queue:       h.queue,
		Credentials: h.bridge,
		Consumer:    h.consumer,
		Scheduler:   h.sched,
		Metrics:     h.metrics,
		Now:         func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.o = o
	return h
}

// send handles each event in turn and checks invariants after every step.
func (h *harness) send(kinds ...Kind) {
	h.t.Helper()
	for _, k := range kinds {
		h.o.handle(Event{Kind: k})
		h.checkInvariants()
	}
}

// drain handles everything posted to the queue.
func (h *harness) drain() {
	h.t.Helper()
	for h.queue.Len() > 0 {
		h.o.handle(<-h.queue.Events())
		h.checkInvariants()
	}
}

func (h *harness) checkInvariants() {
	h.t.Helper()
	s := h.o.state
	if s.MessagePending && !s.AppBusy {
		h.t.Fatalf("message_pending without app_busy: %+v", s)
	}
	if s.BrokerActive && h.o.brokerHandle == 0 {
		h.t.Fatalf("broker_active without a broker channel: %+v", s)
	}
	if s.ConfigPending && h.o.configHandle == 0 {
		h.t.Fatalf("config_pending without a config channel: %+v", s)
	}
	h.provider.mu.Lock()
	defer h.provider.mu.Unlock()
	if len(h.provider.violations) > 0 {
		h.t.Fatalf("channel violations: %v", h.provider.violations)
	}
}

// consume releases the slot for the message in flight, as the consumer
// would after processing it.
func (h *harness) consume() {
	h.t.Helper()
	h.release(h.o.state.CorrelationID)
}

// release sends a consumer release naming id.
func (h *harness) release(id uint32) {
	h.t.Helper()
	h.o.handle(Event{Kind: KindApplicationConsumedMessage, CorrelationID: id})
	h.checkInvariants()
}

func (h *harness) phase() Phase {
	return h.o.state.Phase
}

// toReady walks the full handshake through scripted transport responses.
func (h *harness) toReady() {
	h.t.Helper()
	h.provider.setNetwork(transport.NetworkConnected)
	h.send(KindConnectNetwork)

	h.provider.scriptConfig("broker.local", "secret")
	h.send(KindConfigReadable)

	h.provider.push(readableItem{kind: transport.ReadableConnectResponse})
	h.send(KindBrokerReadable)

	h.provider.push(readableItem{
		kind:      transport.ReadableSubscribeResponse,
		subscribe: transport.SubscribeResponse{ReasonCodes: []uint32{1}},
	})
	h.send(KindBrokerReadable)

	if h.phase() != PhaseReady {
		h.t.Fatalf("phase = %s, want ready", h.phase())
	}
}

func message(id uint32, payload string) readableItem {
	return readableItem{
		kind: transport.ReadableMessage,
		message: transport.Message{
			CorrelationID: id,
			Topic:         "command/device/dev-1",
			Payload:       []byte(payload),
			QoS:           1,
		},
	}
}

// recordingLogger keeps every log line for inspection.
type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

type logLine struct {
	msg  string
	args []any
}

func (l *recordingLogger) add(msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add(msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add(msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add(msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add(msg, args) }

// has reports whether a line with msg carried key=value.
func (l *recordingLogger) has(msg, key string, value any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line.msg != msg {
			continue
		}
		for i := 0; i+1 < len(line.args); i += 2 {
			if line.args[i] == key && line.args[i+1] == value {
				return true
			}
		}
	}
	return false
}
