package work

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/gray-logic-edge/internal/configbridge"
	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// consumedBacklog bounds releases waiting for the event loop. Only one is
// current; the rest are stale releases from torn-down sessions.
const consumedBacklog = 4

// retryAction is what a recovery attempt re-issues.
type retryAction int

const (
	retryNetwork retryAction = iota
	retryFetch
	retryConnect
)

func (a retryAction) String() string {
	switch a {
	case retryNetwork:
		return "network"
	case retryFetch:
		return "fetch_config"
	default:
		return "connect_broker"
	}
}

// Orchestrator is the connectivity state machine. All fields below the
// collaborators are owned by the goroutine running Run.
type Orchestrator struct {
	cfg      Config
	provider transport.Provider
	queue    *Queue
	bridge   Credentials
	consumer Consumer
	sched    Scheduler
	metrics  Metrics
	logger   Logger
	now      func() time.Time

	buffers  transport.Buffers
	outbox   *outbox
	consumed chan uint32
	stopped  chan struct{}

	state State

	netHandle    transport.Handle
	configHandle transport.Handle
	brokerHandle transport.Handle

	connecting    bool
	disconnecting bool
	appConnected  bool
	parked        bool
	shuttingDown  bool
	stopOnce      sync.Once

	session *configbridge.Credentials
	lost    transport.LostMessage

	// deferredKicks counts readable notifications absorbed while the
	// flow-control slot held a pending message.
	deferredKicks int

	watchdog    deadline
	retry       deadline
	retryAction retryAction
	attempts    int
	backoff     *backoff.ExponentialBackOff

	nextRequestID uint32
	inflight      map[uint32]struct{}

	statusMu sync.RWMutex
	status   Status
	counters counters
}

// New creates an orchestrator. It does not start it; call Run.
//
// Parameters:
//   - cfg: Topics, QoS, timeouts and reconnect policy; zero fields take defaults
//   - deps: Collaborators; Provider, Queue, Credentials and Consumer are required
//
// Returns:
//   - *Orchestrator: Idle state machine in PhaseIdle
//   - error: ErrMissingDependency or a configuration validation error
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := deps.check(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Reconnect.InitialDelay
	b.MaxInterval = cfg.Reconnect.MaxDelay
	b.Multiplier = cfg.Reconnect.Multiplier
	b.RandomizationFactor = cfg.Reconnect.Jitter
	b.Reset()

	o := &Orchestrator{
		cfg:      cfg,
		provider: deps.Provider,
		queue:    deps.Queue,
		bridge:   deps.Credentials,
		consumer: deps.Consumer,
		sched:    deps.Scheduler,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Now,
		buffers:  transport.NewBuffers(cfg.SendBufferSize, cfg.ReceiveBufferSize),
		outbox:   newOutbox(cfg.OutboxSize),
		consumed: make(chan uint32, consumedBacklog),
		stopped:  make(chan struct{}),
		watchdog: deadline{kind: KindWatchdogTimeout},
		retry:    deadline{kind: KindReconnectTimer},
		backoff:  b,
		inflight: make(map[uint32]struct{}),
	}
	o.queue.SetOnDrop(func(ev Event) {
		o.metrics.EventDropped(ev.Kind.String())
		o.counters.dropped.Add(1)
	})
	o.publishStatus()
	return o, nil
}

// Run processes events until ctx is cancelled, then shuts the session down
// gracefully. It returns nil on a clean shutdown and ErrShutdownTimeout if
// the broker did not confirm the disconnect in time.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting",
		"command_topic", o.cfg.CommandTopic,
		"telemetry_topic", o.cfg.TelemetryTopic,
	)
	o.post(Event{Kind: KindConnectNetwork})

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return o.drain()
		case ev := <-o.queue.Events():
			o.handle(ev)
		case id := <-o.consumed:
			o.handle(Event{Kind: KindApplicationConsumedMessage, CorrelationID: id})
		case <-ticker.C:
			o.housekeeping()
		}
	}
}

// drain runs the shutdown sequence, still processing events so that the
// unsubscribe and disconnect responses are seen.
func (o *Orchestrator) drain() error {
	o.logger.Info("orchestrator shutting down", "phase", o.state.Phase.String())
	o.handle(Event{Kind: KindShutdown})

	timer := time.NewTimer(o.cfg.ShutdownTimeout)
	defer timer.Stop()

	for {
		select {
		case <-o.stopped:
			o.logger.Info("orchestrator stopped")
			return nil
		case ev := <-o.queue.Events():
			o.handle(ev)
		case id := <-o.consumed:
			o.handle(Event{Kind: KindApplicationConsumedMessage, CorrelationID: id})
		case <-timer.C:
			o.logger.Warn("graceful shutdown timed out, closing channels",
				"phase", o.state.Phase.String(),
				"timeout", o.cfg.ShutdownTimeout,
			)
			o.teardownAll()
			o.finishShutdown()
			return ErrShutdownTimeout
		}
	}
}

// Produce queues payload for publication on the telemetry topic. The
// outcome is reported later through Consumer.PublishDone.
func (o *Orchestrator) Produce(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	return o.outbox.push(payload, func() error {
		return o.queue.Post(Event{Kind: KindApplicationProducedMessage})
	})
}

// Consumed releases the flow-control slot taken by the message delivered
// under correlationID. A release for any other message, such as one that
// was in flight when its session was torn down, is ignored. Safe to call
// from any goroutine.
//
// Parameters:
//   - correlationID: the CorrelationID of the message passed to Deliver
func (o *Orchestrator) Consumed(correlationID uint32) {
	for {
		select {
		case o.consumed <- correlationID:
			return
		default:
		}
		// Full: the oldest releases are the stale ones, drop one.
		select {
		case <-o.consumed:
		default:
		}
	}
}

// Retry asks a parked orchestrator to start over.
func (o *Orchestrator) Retry() error {
	return o.queue.Post(Event{Kind: KindRetry})
}

// Stopped is closed once the shutdown sequence has finished.
func (o *Orchestrator) Stopped() <-chan struct{} {
	return o.stopped
}

func (o *Orchestrator) post(ev Event) {
	if err := o.queue.Post(ev); err != nil {
		o.logger.Warn("event dropped",
			"event", ev.String(),
			"queue_len", o.queue.Len(),
			"error", err,
		)
	}
}

// housekeeping runs on every poll tick.
func (o *Orchestrator) housekeeping() {
	now := o.now()

	// Timer events lost to a full queue are replayed here.
	grace := 2 * o.cfg.PollInterval
	if o.retry.overdue(now, grace) {
		o.handle(o.retry.event())
	}
	if o.watchdog.overdue(now, grace) {
		o.handle(o.watchdog.event())
	}

	o.resync()

	if o.state.Phase == PhaseReady && o.outbox.len() > 0 {
		o.publishQueued()
	}

	if o.state.Phase == PhaseReady && o.session != nil && o.session.Expired(now) {
		o.logger.Info("broker credentials expired, renewing session",
			"expired_at", o.session.ExpiresAt,
		)
		o.requestDisconnect()
	}
	o.publishStatus()
}

func (o *Orchestrator) setPhase(p Phase) {
	if o.state.Phase == p {
		return
	}
	o.logger.Debug("phase change", "from", o.state.Phase.String(), "to", p.String())
	o.state.Phase = p
	o.counters.phaseSince = o.now()
	o.metrics.PhaseChanged(p.String())
}

func (o *Orchestrator) nextID() uint32 {
	o.nextRequestID++
	if o.nextRequestID == 0 {
		o.nextRequestID = 1
	}
	return o.nextRequestID
}

func (o *Orchestrator) armWatchdog() {
	if o.cfg.RequestTimeout <= 0 {
		return
	}
	o.watchdog.arm(o.sched, o.now(), o.cfg.RequestTimeout, o.post)
}

func (o *Orchestrator) notifyConnected() {
	if o.appConnected {
		return
	}
	o.appConnected = true
	o.consumer.Connected()
}

func (o *Orchestrator) notifyDisconnected() {
	if !o.appConnected {
		return
	}
	o.appConnected = false
	o.consumer.Disconnected()
}
