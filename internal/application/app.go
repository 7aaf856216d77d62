package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// Application kinds.
const (
	KindDummy  = "dummy"
	KindSwitch = "switch"
)

const (
	defaultPublishInterval = 60 * time.Second
	defaultPollInterval    = 100 * time.Millisecond
	defaultQueueSize       = 16

	// Dummy readings run 1.0 to 50.0 in steps of 0.1, held in tenths.
	firstReading = 10
	lastReading  = 500
)

// Link is the orchestrator side of the application. *work.Orchestrator
// satisfies it.
type Link interface {
	Produce(payload []byte) error
	Consumed(correlationID uint32)
}

// Telemetry records what the application observes. *influxdb.Client
// satisfies it.
type Telemetry interface {
	WriteReading(temperatureCelsius float64)
	WriteConnectivity(connected bool)
	WriteCommand(action string, applied bool)
}

type noopTelemetry struct{}

func (noopTelemetry) WriteReading(float64)      {}
func (noopTelemetry) WriteConnectivity(bool)    {}
func (noopTelemetry) WriteCommand(string, bool) {}

// Logger defines the logging interface used by the application.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Config selects and tunes the application.
type Config struct {
	Kind            string
	PublishInterval time.Duration
	PollInterval    time.Duration
	QueueSize       int
}

// Deps are the application's optional collaborators.
type Deps struct {
	Telemetry Telemetry
	Actuator  Actuator
	Logger    Logger
	Now       func() time.Time
}

type eventKind int

const (
	evConnected eventKind = iota + 1
	evDisconnected
	evMessage
	evPublishDone
)

type event struct {
	kind eventKind
	msg  transport.Message
	err  error
}

// Status is a snapshot of the application for the status API.
type Status struct {
	Kind        string  `json:"kind"`
	Running     bool    `json:"running"`
	Connected   bool    `json:"connected"`
	InFlight    bool    `json:"in_flight"`
	LastReading float64 `json:"last_reading,omitempty"`
	Published   uint64  `json:"published"`
	Failed      uint64  `json:"publish_failed"`
	Commands    uint64  `json:"commands"`
	SwitchOpen  *bool   `json:"switch_open,omitempty"`
}

// App is the device application: either the dummy temperature sensor or
// the switch. It implements work.Consumer. Callbacks only enqueue events;
// the work happens on Run's goroutine.
type App struct {
	cfg       Config
	telemetry Telemetry
	actuator  Actuator
	logger    Logger
	now       func() time.Time

	events  chan event
	running atomic.Bool // Run is active

	mu        sync.Mutex
	link      Link
	enabled   bool // cleared by "stop", set by "restart"
	connected bool
	inFlight  bool
	lastSend  time.Time
	reading   int // tenths of a degree, next to publish
	sent      int // tenths of a degree, in flight
	last      float64
	published uint64
	failed    uint64
	commands  uint64
	switchOn  bool // true while the switch is closed
}

// New creates an application of cfg.Kind.
func New(cfg Config, deps Deps) (*App, error) {
	switch cfg.Kind {
	case KindDummy, KindSwitch:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = defaultPublishInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if deps.Telemetry == nil {
		deps.Telemetry = noopTelemetry{}
	}
	if deps.Actuator == nil {
		deps.Actuator = &MemorySwitch{}
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &App{
		cfg:       cfg,
		telemetry: deps.Telemetry,
		actuator:  deps.Actuator,
		logger:    deps.Logger,
		now:       deps.Now,
		events:    make(chan event, cfg.QueueSize),
		enabled:   true,
		reading:   firstReading,
	}, nil
}

// =============================================================================
// work.Consumer
// =============================================================================

// Connected implements work.Consumer.
func (a *App) Connected() { a.post(event{kind: evConnected}) }

// Disconnected implements work.Consumer.
func (a *App) Disconnected() { a.post(event{kind: evDisconnected}) }

// PublishDone implements work.Consumer.
func (a *App) PublishDone(err error) { a.post(event{kind: evPublishDone, err: err}) }

// Deliver implements work.Consumer. The message aliases the channel's
// receive buffer, so its payload is copied before queueing.
func (a *App) Deliver(msg transport.Message) {
	msg.Payload = append([]byte(nil), msg.Payload...)
	a.post(event{kind: evMessage, msg: msg})
}

func (a *App) post(ev event) {
	select {
	case a.events <- ev:
		return
	default:
	}

	a.logger.Warn("application queue full, event dropped", "event", int(ev.kind))
	if ev.kind != evMessage {
		return
	}
	// A dropped message still holds the orchestrator's delivery slot.
	a.mu.Lock()
	link := a.link
	a.mu.Unlock()
	if link != nil {
		link.Consumed(ev.msg.CorrelationID)
	}
}

// =============================================================================
// Run loop
// =============================================================================

// Run processes events and publishes readings until ctx is cancelled.
func (a *App) Run(ctx context.Context, link Link) error {
	if link == nil {
		return ErrNoLink
	}
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	a.mu.Lock()
	a.link = link
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.link = nil
		a.mu.Unlock()
	}()

	a.logger.Info("application started", "kind", a.cfg.Kind, "publish_interval", a.cfg.PublishInterval)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.events:
			a.handle(ev, link)
		case <-ticker.C:
		}
		a.poll(link)
	}
}

func (a *App) handle(ev event, link Link) {
	switch ev.kind {
	case evConnected:
		a.mu.Lock()
		a.connected = true
		a.inFlight = false
		a.mu.Unlock()
		a.telemetry.WriteConnectivity(true)
		a.logger.Info("broker session ready")

	case evDisconnected:
		a.mu.Lock()
		a.connected = false
		a.mu.Unlock()
		a.telemetry.WriteConnectivity(false)
		a.logger.Info("broker session lost")

	case evMessage:
		a.process(ev.msg)
		link.Consumed(ev.msg.CorrelationID)

	case evPublishDone:
		a.publishDone(ev.err)
	}
}

// process applies one inbound command.
func (a *App) process(msg transport.Message) {
	switch a.cfg.Kind {
	case KindSwitch:
		action := parseSwitchAction(msg.Payload)
		if action == "" {
			a.logger.Debug("ignoring message", "topic", msg.Topic, "size", len(msg.Payload))
			return
		}
		if action == ActionSwitchOpen {
			a.actuator.Open()
		} else {
			a.actuator.Close()
		}
		a.mu.Lock()
		a.commands++
		a.switchOn = action == ActionSwitchClose
		a.mu.Unlock()
		a.telemetry.WriteCommand(action, true)
		a.logger.Info("switch command applied", "action", action)

	case KindDummy:
		cmd := parseSensorCommand(msg.Payload)
		if cmd == "" {
			a.logger.Debug("ignoring message", "topic", msg.Topic, "size", len(msg.Payload))
			return
		}
		a.mu.Lock()
		a.commands++
		a.enabled = cmd == CommandRestart
		a.mu.Unlock()
		a.telemetry.WriteCommand(cmd, true)
		a.logger.Info("sensor command applied", "command", cmd)
	}
}

func (a *App) publishDone(err error) {
	a.mu.Lock()
	a.inFlight = false
	value := float64(a.sent) / 10
	if err == nil {
		a.published++
		a.last = value
	} else {
		a.failed++
	}
	a.mu.Unlock()

	if err != nil {
		a.logger.Warn("reading not published", "temperature_celsius", value, "error", err)
		return
	}
	a.telemetry.WriteReading(value)
}

// poll publishes the next dummy reading when one is due. Only one reading
// is ever in flight.
func (a *App) poll(link Link) {
	if a.cfg.Kind != KindDummy {
		return
	}

	now := a.now()
	a.mu.Lock()
	due := a.enabled && a.connected && !a.inFlight &&
		(a.lastSend.IsZero() || now.Sub(a.lastSend) >= a.cfg.PublishInterval)
	if !due {
		a.mu.Unlock()
		return
	}
	tenths := a.reading
	a.mu.Unlock()

	payload := []byte(fmt.Sprintf(`{"temperature_celsius":%.2f}`, float64(tenths)/10))
	err := link.Produce(payload)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSend = now
	if err != nil {
		a.failed++
		a.logger.Warn("reading rejected by orchestrator", "error", err)
		return
	}
	a.inFlight = true
	a.sent = tenths
	a.reading++
	if a.reading > lastReading {
		a.reading = firstReading
	}
}

// Status returns a snapshot of the application.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Status{
		Kind:        a.cfg.Kind,
		Running:     a.enabled,
		Connected:   a.connected,
		InFlight:    a.inFlight,
		LastReading: a.last,
		Published:   a.published,
		Failed:      a.failed,
		Commands:    a.commands,
	}
	if a.cfg.Kind == KindSwitch {
		open := !a.switchOn
		s.SwitchOpen = &open
	}
	return s
}
