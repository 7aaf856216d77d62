package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/configstore"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

const (
	defaultFetchTimeout       = 10 * time.Second
	defaultMaxPendingMessages = 32
)

// NetworkMonitor reports link reachability. *network.Monitor satisfies it.
type NetworkMonitor interface {
	Status() transport.NetworkStatus
	Subscribe(fn func(transport.NetworkStatus)) (unsubscribe func())
}

// Session is one broker session. *mqtt.Session satisfies it.
type Session interface {
	Connect(req transport.ConnectRequest) error
	Subscribe(req transport.SubscribeRequest) error
	Unsubscribe(req transport.UnsubscribeRequest) error
	Publish(req transport.PublishRequest) error
	Disconnect() error
	Ack(correlationID uint32) error
	Close()
}

// SessionFactory creates a broker session for a new MQTT channel.
type SessionFactory func(cfg mqtt.SessionConfig, emit func(mqtt.Item), lost func(error)) Session

// NewMQTTSession is the production SessionFactory.
func NewMQTTSession(cfg mqtt.SessionConfig, emit func(mqtt.Item), lost func(error)) Session {
	return mqtt.NewSession(cfg, emit, lost)
}

// Logger defines the logging interface used by the provider.
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

// Config tunes the provider.
type Config struct {
	// FetchTimeout bounds one configuration fetch against the store.
	FetchTimeout time.Duration

	// MaxPendingMessages bounds inbound messages queued per channel.
	MaxPendingMessages int

	// Session is the template for every MQTT session. Buffer sizes are
	// taken from the channel's buffers.
	Session mqtt.SessionConfig
}

// Deps are the provider's collaborators. Monitor, Store and Notifier are
// required.
type Deps struct {
	Monitor    NetworkMonitor
	Store      configstore.Store
	Notifier   transport.Notifier
	NewSession SessionFactory
	Logger     Logger
}

// readable is one entry of a channel's FIFO.
type readable struct {
	kind  transport.ReadableKind
	item  mqtt.Item
	fetch *fetchResult
}

type fetchResult struct {
	resp  transport.ConfigFetchResponse
	items []configstore.Item
}

type reservation struct {
	tag         transport.Tag
	unsubscribe func()
}

type channel struct {
	handle  transport.Handle
	kind    transport.ChannelKind
	tag     transport.Tag
	buffers transport.Buffers

	fifo     []readable
	messages int // ReadableMessage entries in fifo

	session Session

	fetching    bool
	cancelFetch context.CancelFunc
	lastFetch   *fetchResult
}

// Provider implements transport.Provider.
type Provider struct {
	cfg        Config
	monitor    NetworkMonitor
	store      configstore.Store
	notify     transport.Notifier
	newSession SessionFactory
	logger     Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// messageIDs numbers inbound messages across every session.
	messageIDs atomic.Uint32

	mu         sync.Mutex
	closed     bool
	nextHandle transport.Handle
	networks   map[transport.Handle]*reservation
	channels   map[transport.Handle]*channel
}

// New creates a provider. Sessions are built lazily, one per MQTT channel.
//
// Parameters:
//   - cfg: Fetch timeout, backlog bound and the session template
//   - deps: Monitor, Store and Notifier are required; NewSession and Logger
//     default to the paho session and a no-op logger
//
// Returns:
//   - *Provider: Open provider; call Close to release it
//   - error: ErrNoNotifier or a missing-collaborator error
func New(cfg Config, deps Deps) (*Provider, error) {
	switch {
	case deps.Notifier == nil:
		return nil, ErrNoNotifier
	case deps.Monitor == nil:
		return nil, errors.New("channel: network monitor is required")
	case deps.Store == nil:
		return nil, errors.New("channel: config store is required")
	}
	if deps.NewSession == nil {
		deps.NewSession = NewMQTTSession
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.MaxPendingMessages <= 0 {
		cfg.MaxPendingMessages = defaultMaxPendingMessages
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		cfg:        cfg,
		monitor:    deps.Monitor,
		store:      deps.Store,
		notify:     deps.Notifier,
		newSession: deps.NewSession,
		logger:     deps.Logger,
		ctx:        ctx,
		cancel:     cancel,
		networks:   make(map[transport.Handle]*reservation),
		channels:   make(map[transport.Handle]*channel),
	}, nil
}

// Close closes every channel and reservation and waits for outstanding
// fetches. Close is idempotent.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	var sessions []Session
	for h, ch := range p.channels {
		if ch.session != nil {
			sessions = append(sessions, ch.session)
		}
		delete(p.channels, h)
	}
	var unsubs []func()
	for h, r := range p.networks {
		unsubs = append(unsubs, r.unsubscribe)
		delete(p.networks, h)
	}
	p.mu.Unlock()

	p.cancel()
	for _, s := range sessions {
		s.Close()
	}
	for _, u := range unsubs {
		u()
	}
	p.wg.Wait()
}

// OpenChannels returns the number of open channels.
func (p *Provider) OpenChannels() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels)
}

// allocHandle returns the next unused handle. Caller holds p.mu.
func (p *Provider) allocHandle() transport.Handle {
	p.nextHandle++
	if p.nextHandle == 0 {
		p.nextHandle = 1
	}
	return p.nextHandle
}

// =============================================================================
// Network
// =============================================================================

// RequestNetwork implements transport.Network.
func (p *Provider) RequestNetwork(tag transport.Tag) (transport.Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	h := p.allocHandle()
	r := &reservation{tag: tag}
	p.networks[h] = r
	p.mu.Unlock()

	unsubscribe := p.monitor.Subscribe(func(status transport.NetworkStatus) {
		p.mu.Lock()
		_, live := p.networks[h]
		p.mu.Unlock()
		if !live {
			return
		}
		p.logger.Debug("network status changed", "handle", uint32(h), "status", status.String())
		p.notify(transport.Notification{Tag: tag, Type: transport.NetworkStatusChanged})
	})

	p.mu.Lock()
	if _, live := p.networks[h]; !live {
		p.mu.Unlock()
		unsubscribe()
		return 0, ErrClosed
	}
	r.unsubscribe = unsubscribe
	p.mu.Unlock()
	return h, nil
}

// ReleaseNetwork implements transport.Network.
func (p *Provider) ReleaseNetwork(h transport.Handle) error {
	p.mu.Lock()
	r, ok := p.networks[h]
	delete(p.networks, h)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: network %d", transport.ErrUnknownHandle, h)
	}
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	return nil
}

// NetworkStatus implements transport.Network.
func (p *Provider) NetworkStatus(h transport.Handle) (transport.NetworkStatus, error) {
	p.mu.Lock()
	_, ok := p.networks[h]
	p.mu.Unlock()

	if !ok {
		return transport.NetworkConnecting, fmt.Errorf("%w: network %d", transport.ErrUnknownHandle, h)
	}
	return p.monitor.Status(), nil
}

// =============================================================================
// Channels
// =============================================================================

// OpenChannel implements transport.Channels.
func (p *Provider) OpenChannel(params transport.ChannelParams) (transport.Handle, error) {
	switch params.Kind {
	case transport.ChannelConfigFetch, transport.ChannelMQTT:
	default:
		return 0, fmt.Errorf("%w: channel kind %s", transport.ErrInvalidRequest, params.Kind)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}
	if _, ok := p.networks[params.Network]; !ok {
		return 0, fmt.Errorf("%w: network %d", transport.ErrUnknownHandle, params.Network)
	}

	h := p.allocHandle()
	ch := &channel{
		handle:  h,
		kind:    params.Kind,
		tag:     params.Tag,
		buffers: params.Buffers,
	}
	if params.Kind == transport.ChannelMQTT {
		cfg := p.cfg.Session
		cfg.SendBufferSize = len(params.Buffers.Send)
		cfg.ReceiveBufferSize = len(params.Buffers.Receive)
		cfg.MessageIDs = &p.messageIDs
		ch.session = p.newSession(cfg,
			func(item mqtt.Item) { p.onSessionItem(h, item) },
			func(err error) { p.onSessionLost(h, err) },
		)
	}
	p.channels[h] = ch

	p.logger.Debug("channel opened", "handle", uint32(h), "kind", params.Kind.String(), "tag", uint32(params.Tag))
	return h, nil
}

// CloseChannel implements transport.Channels.
func (p *Provider) CloseChannel(h transport.Handle) error {
	p.mu.Lock()
	ch, ok := p.channels[h]
	delete(p.channels, h)
	var cancel context.CancelFunc
	var discarded int
	if ok {
		cancel = ch.cancelFetch
		discarded = len(ch.fifo)
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: channel %d", transport.ErrUnknownHandle, h)
	}
	if cancel != nil {
		cancel()
	}
	if ch.session != nil {
		ch.session.Close()
	}
	p.logger.Debug("channel closed", "handle", uint32(h), "kind", ch.kind.String(), "discarded", discarded)
	return nil
}

// lookup returns the open channel h of the given kind. Caller holds p.mu.
func (p *Provider) lookup(h transport.Handle, kind transport.ChannelKind) (*channel, error) {
	if p.closed {
		return nil, ErrClosed
	}
	ch, ok := p.channels[h]
	if !ok {
		return nil, fmt.Errorf("%w: channel %d", transport.ErrUnknownHandle, h)
	}
	if ch.kind != kind {
		return nil, fmt.Errorf("%w: channel %d is %s", transport.ErrWrongChannelKind, h, ch.kind)
	}
	return ch, nil
}

// push appends an item to h's FIFO and announces it. Items for a closed
// channel are dropped silently.
func (p *Provider) push(h transport.Handle, r readable) {
	p.mu.Lock()
	ch, ok := p.channels[h]
	if !ok {
		p.mu.Unlock()
		return
	}
	ch.fifo = append(ch.fifo, r)
	if r.kind == transport.ReadableMessage {
		ch.messages++
	}
	tag := ch.tag
	p.mu.Unlock()

	p.notify(transport.Notification{Tag: tag, Type: transport.ChannelDataReadable})
}

// pop removes the head of h's FIFO if it is of kind want.
func (p *Provider) pop(h transport.Handle, kind transport.ChannelKind, want transport.ReadableKind) (readable, *channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.lookup(h, kind)
	if err != nil {
		return readable{}, nil, err
	}
	if len(ch.fifo) == 0 {
		return readable{}, nil, transport.ErrNothingReadable
	}
	head := ch.fifo[0]
	if head.kind != want {
		return readable{}, nil, fmt.Errorf("%w: head is %s, not %s", transport.ErrWrongReadable, head.kind, want)
	}
	ch.fifo[0] = readable{}
	ch.fifo = ch.fifo[1:]
	if head.kind == transport.ReadableMessage {
		ch.messages--
	}
	return head, ch, nil
}
