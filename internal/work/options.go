package work

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/configbridge"
	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// Default orchestrator settings.
const (
	DefaultKeepAlive         = 60 * time.Second
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultOutboxSize        = 8
	DefaultSendBufferSize    = 4096
	DefaultReceiveBufferSize = 4096
)

// ReconnectConfig shapes the delay between recovery attempts.
type ReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter is the randomisation factor applied to each delay (0..1).
	Jitter float64

	// MaxAttempts bounds consecutive failed attempts before the machine
	// parks in Idle. 0 means unlimited.
	MaxAttempts int
}

// Config holds orchestrator settings.
type Config struct {
	// CommandTopic is subscribed once the broker session is up.
	CommandTopic string

	// TelemetryTopic receives every payload passed to Produce.
	TelemetryTopic string

	QoS        byte
	KeepAlive  time.Duration
	CleanStart bool

	SendBufferSize    int
	ReceiveBufferSize int

	// RequestTimeout arms a watchdog for every outstanding request.
	// 0 disables the watchdog.
	RequestTimeout time.Duration

	// RefetchOnReconnect re-reads configuration before every broker
	// reconnect instead of only when credentials have lapsed.
	RefetchOnReconnect bool

	Reconnect ReconnectConfig

	// PollInterval bounds how long the loop waits before housekeeping.
	PollInterval time.Duration

	// ShutdownTimeout bounds the graceful unsubscribe/disconnect sequence.
	ShutdownTimeout time.Duration

	// OutboxSize bounds payloads produced but not yet published.
	OutboxSize int
}

func (c *Config) applyDefaults() {
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = DefaultOutboxSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = DefaultSendBufferSize
	}
	if c.ReceiveBufferSize <= 0 {
		c.ReceiveBufferSize = DefaultReceiveBufferSize
	}
	if c.Reconnect.InitialDelay <= 0 {
		c.Reconnect.InitialDelay = time.Second
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = 2 * time.Minute
	}
	if c.Reconnect.Multiplier < 1 {
		c.Reconnect.Multiplier = 2
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		c.Reconnect.Jitter = 0
	}
}

func (c *Config) validate() error {
	if c.CommandTopic == "" {
		return fmt.Errorf("work: command topic is required")
	}
	if c.TelemetryTopic == "" {
		return fmt.Errorf("work: telemetry topic is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("work: qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// Logger defines the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Credentials turns fetched configuration into broker credentials.
// *configbridge.Bridge satisfies it.
type Credentials interface {
	Keys() []transport.ConfigKey
	Decode(items [][]byte) (*configbridge.Credentials, error)
}

// Consumer is the application side of the orchestrator. Every method is
// called from the orchestrator goroutine and must not block.
type Consumer interface {
	// Connected is called once a broker session is ready.
	Connected()

	// Disconnected is called when a ready session is lost.
	Disconnected()

	// Deliver hands over one inbound message. The consumer must call
	// Orchestrator.Consumed once it is done with it; no further message is
	// delivered until then.
	Deliver(msg transport.Message)

	// PublishDone reports the outcome of one produced payload.
	PublishDone(err error)
}

// Scheduler runs f after d. The returned function cancels the timer.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Metrics receives orchestrator counters. Implementations must be safe for
// concurrent use: EventDropped is called from posting goroutines.
type Metrics interface {
	EventProcessed(kind string)
	EventDropped(kind string)
	PhaseChanged(phase string)
	ReconnectScheduled(delay time.Duration)
	MessageDelivered()
	MessageLost()
	PublishCompleted(ok bool)
}

type noopMetrics struct{}

func (noopMetrics) EventProcessed(string)            {}
func (noopMetrics) EventDropped(string)              {}
func (noopMetrics) PhaseChanged(string)              {}
func (noopMetrics) ReconnectScheduled(time.Duration) {}
func (noopMetrics) MessageDelivered()                {}
func (noopMetrics) MessageLost()                     {}
func (noopMetrics) PublishCompleted(bool)            {}

// Deps are the orchestrator's collaborators. Provider, Queue, Credentials
// and Consumer are required.
type Deps struct {
	Provider    transport.Provider
	Queue       *Queue
	Credentials Credentials
	Consumer    Consumer

	Scheduler Scheduler
	Metrics   Metrics
	Logger    Logger
	Now       func() time.Time
}

func (d *Deps) check() error {
	switch {
	case d.Provider == nil:
		return fmt.Errorf("%w: provider", ErrMissingDependency)
	case d.Queue == nil:
		return fmt.Errorf("%w: queue", ErrMissingDependency)
	case d.Credentials == nil:
		return fmt.Errorf("%w: credentials", ErrMissingDependency)
	case d.Consumer == nil:
		return fmt.Errorf("%w: consumer", ErrMissingDependency)
	}
	if d.Scheduler == nil {
		d.Scheduler = clockScheduler{}
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = noopLogger{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return nil
}
