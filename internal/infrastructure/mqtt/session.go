package mqtt

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// SessionConfig tunes a Session. Zero values select the package defaults.
type SessionConfig struct {
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	Quiesce           time.Duration
	InFlightLimit     int
	SendBufferSize    int
	ReceiveBufferSize int
	Logger            Logger

	// MessageIDs, when set, numbers inbound messages for every session
	// sharing it, so a correlation id is never handed out twice across
	// reconnects. Nil gives each session its own sequence starting at 1.
	MessageIDs *atomic.Uint32
}

func (c SessionConfig) connectTimeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return c.ConnectTimeout
}

func (c SessionConfig) requestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return c.RequestTimeout
}

func (c SessionConfig) quiesceMillis() uint {
	if c.Quiesce <= 0 {
		return uint(defaultDisconnectQuiesce / time.Millisecond)
	}
	return uint(c.Quiesce / time.Millisecond)
}

func (c SessionConfig) inFlightLimit() int {
	if c.InFlightLimit <= 0 {
		return defaultInFlightLimit
	}
	return c.InFlightLimit
}

// Item is one outcome produced by a session: a request completion, an
// inbound message or a lost message report. Exactly the field matching Kind
// is set.
type Item struct {
	Kind        transport.ReadableKind
	Connect     transport.ConnectResponse
	Subscribe   transport.SubscribeResponse
	Unsubscribe transport.UnsubscribeResponse
	Publish     transport.PublishResponse
	Disconnect  transport.DisconnectResponse
	Message     transport.Message
	Lost        transport.LostMessage
}

// pahoClient is the subset of pahomqtt.Client a session drives.
type pahoClient interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Unsubscribe(topics ...string) pahomqtt.Token
}

type clientFactory func(opts *pahomqtt.ClientOptions) pahoClient

func newPahoClient(opts *pahomqtt.ClientOptions) pahoClient {
	return pahomqtt.NewClient(opts)
}

type sessionState int

const (
	stateIdle sessionState = iota
	stateConnecting
	stateConnected
	stateDisconnecting
	stateClosed
)

// Session is one MQTT conversation with a broker.
//
// Every request validates synchronously and completes asynchronously: the
// outcome is handed to the emit callback as an Item. Inbound messages are
// emitted the same way and stay unacknowledged until Ack is called with the
// correlation id they were delivered under.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - emit and lost are never called concurrently with each other, and
//     are called in the order the outcomes were observed.
type Session struct {
	cfg       SessionConfig
	newClient clientFactory
	emit      func(Item)
	lost      func(error)

	// emitMu serialises callbacks so items and loss reports keep their order.
	emitMu sync.Mutex

	mu        sync.Mutex
	state     sessionState
	client    pahoClient
	epoch     uint64 // bumped whenever the connection is dropped
	inflight  int
	nextMsgID uint32
	unacked   map[uint32]pahomqtt.Message
}

// NewSession creates an idle session. No connection is made until Connect.
//
// Parameters:
//   - cfg: Timeouts, in-flight limit, buffer bounds and optional shared
//     message id counter
//   - emit: Receives every request outcome and inbound message, in order
//   - lost: Called once when an established connection drops
//
// Returns:
//   - *Session: Idle session
func NewSession(cfg SessionConfig, emit func(Item), lost func(error)) *Session {
	return &Session{
		cfg:       cfg,
		newClient: newPahoClient,
		emit:      emit,
		lost:      lost,
		unacked:   make(map[uint32]pahomqtt.Message),
	}
}

// Connect starts a connection attempt. The outcome is emitted as a
// ReadableConnectResponse item.
func (s *Session) Connect(req transport.ConnectRequest) error {
	if req.Host == "" || req.ClientID == "" {
		return fmt.Errorf("%w: host and client id are required", transport.ErrInvalidRequest)
	}
	opts, err := buildClientOptions(req, s.cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", transport.ErrInvalidRequest, err)
	}
	opts.SetDefaultPublishHandler(s.handleMessage)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.connectionLost(err)
	})

	s.mu.Lock()
	switch s.state {
	case stateClosed:
		s.mu.Unlock()
		return ErrClosed
	case stateConnecting, stateConnected:
		s.mu.Unlock()
		return ErrAlreadyConnected
	case stateDisconnecting:
		s.mu.Unlock()
		return transport.ErrRequestPending
	}
	client := s.newClient(opts)
	s.client = client
	s.state = stateConnecting
	s.mu.Unlock()

	go s.runConnect(client)
	return nil
}

func (s *Session) runConnect(client pahoClient) {
	token := client.Connect()
	resp := transport.ConnectResponse{State: transport.RequestCompleted}
	if !token.WaitTimeout(s.cfg.connectTimeout()) {
		resp.State = transport.RequestFailed
		resp.ReasonCode = transport.ReasonUnspecified
		s.warn("MQTT connect timed out", "timeout", s.cfg.connectTimeout())
	} else if err := token.Error(); err != nil {
		resp.State = transport.RequestFailed
		resp.ReasonCode = transport.ReasonUnspecified
		if ct, ok := token.(interface{ ReturnCode() byte }); ok {
			resp.ReasonCode = connackReason(ct.ReturnCode())
		}
		s.warn("MQTT connect failed", "error", err, "reason_code", resp.ReasonCode)
	} else if ct, ok := token.(interface{ SessionPresent() bool }); ok {
		resp.SessionPresent = ct.SessionPresent()
	}

	s.emitMu.Lock()
	s.mu.Lock()
	if s.state != stateConnecting || s.client != client {
		// Disconnected or closed while the attempt was running.
		s.mu.Unlock()
		s.emitMu.Unlock()
		if resp.State == transport.RequestCompleted {
			client.Disconnect(0)
		}
		return
	}
	if resp.State == transport.RequestCompleted {
		s.state = stateConnected
	} else {
		s.state = stateIdle
		s.client = nil
	}
	s.mu.Unlock()

	s.emit(Item{Kind: transport.ReadableConnectResponse, Connect: resp})
	s.emitMu.Unlock()
}

// Subscribe subscribes to every filter in req.
func (s *Session) Subscribe(req transport.SubscribeRequest) error {
	if len(req.Subscriptions) == 0 {
		return fmt.Errorf("%w: no subscriptions", transport.ErrInvalidRequest)
	}
	filters := make(map[string]byte, len(req.Subscriptions))
	for _, sub := range req.Subscriptions {
		if err := ValidateTopicFilter(sub.Topic); err != nil {
			return fmt.Errorf("%w: %w", transport.ErrInvalidRequest, err)
		}
		if sub.QoS > maxQoS {
			return fmt.Errorf("%w: %w", transport.ErrInvalidRequest, ErrInvalidQoS)
		}
		filters[sub.Topic] = sub.QoS
	}

	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	go func() {
		token := client.SubscribeMultiple(filters, s.handleMessage)
		resp := transport.SubscribeResponse{
			State:         transport.RequestCompleted,
			CorrelationID: req.CorrelationID,
			ReasonCodes:   make([]uint32, len(req.Subscriptions)),
		}
		var granted map[string]byte
		if err := s.wait(token); err != nil {
			resp.State = transport.RequestFailed
			s.warn("MQTT subscribe failed", "error", err)
		} else if st, ok := token.(interface{ Result() map[string]byte }); ok {
			granted = st.Result()
		}
		for i, sub := range req.Subscriptions {
			code, ok := granted[sub.Topic]
			switch {
			case resp.State != transport.RequestCompleted:
				resp.ReasonCodes[i] = transport.ReasonUnspecified
			case ok:
				resp.ReasonCodes[i] = uint32(code)
			default:
				resp.ReasonCodes[i] = uint32(sub.QoS)
			}
		}
		s.emitItem(Item{Kind: transport.ReadableSubscribeResponse, Subscribe: resp})
	}()
	return nil
}

// Unsubscribe removes every topic in req.
func (s *Session) Unsubscribe(req transport.UnsubscribeRequest) error {
	if len(req.Topics) == 0 {
		return fmt.Errorf("%w: no topics", transport.ErrInvalidRequest)
	}
	for _, topic := range req.Topics {
		if err := ValidateTopicFilter(topic); err != nil {
			return fmt.Errorf("%w: %w", transport.ErrInvalidRequest, err)
		}
	}

	client, err := s.connectedClient()
	if err != nil {
		return err
	}

	topics := append([]string(nil), req.Topics...)
	go func() {
		token := client.Unsubscribe(topics...)
		resp := transport.UnsubscribeResponse{
			State:         transport.RequestCompleted,
			CorrelationID: req.CorrelationID,
			ReasonCodes:   make([]uint32, len(topics)),
		}
		if err := s.wait(token); err != nil {
			resp.State = transport.RequestFailed
			for i := range resp.ReasonCodes {
				resp.ReasonCodes[i] = transport.ReasonUnspecified
			}
			s.warn("MQTT unsubscribe failed", "error", err)
		}
		s.emitItem(Item{Kind: transport.ReadableUnsubscribeResponse, Unsubscribe: resp})
	}()
	return nil
}

// Publish sends req. It returns transport.ErrRateLimited when the in-flight
// limit is reached; the caller may retry once a PublishResponse arrives.
func (s *Session) Publish(req transport.PublishRequest) error {
	if err := ValidateTopicName(req.Topic); err != nil {
		return fmt.Errorf("%w: %w", transport.ErrInvalidRequest, err)
	}
	if req.QoS > maxQoS {
		return fmt.Errorf("%w: %w", transport.ErrInvalidRequest, ErrInvalidQoS)
	}
	if s.cfg.SendBufferSize > 0 && len(req.Topic)+len(req.Payload) > s.cfg.SendBufferSize {
		return fmt.Errorf("%w: %w", transport.ErrInvalidRequest, ErrPayloadTooLarge)
	}

	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != stateConnected {
		s.mu.Unlock()
		return transport.ErrNotConnected
	}
	if s.inflight >= s.cfg.inFlightLimit() {
		s.mu.Unlock()
		return transport.ErrRateLimited
	}
	s.inflight++
	client := s.client
	epoch := s.epoch
	s.mu.Unlock()

	payload := bytes.Clone(req.Payload)
	go func() {
		token := client.Publish(req.Topic, req.QoS, req.Retain, payload)
		resp := transport.PublishResponse{
			State:         transport.RequestCompleted,
			CorrelationID: req.CorrelationID,
			ReasonCode:    transport.ReasonSuccess,
		}
		if err := s.wait(token); err != nil {
			resp.State = transport.RequestFailed
			resp.ReasonCode = transport.ReasonUnspecified
			s.warn("MQTT publish failed", "topic", req.Topic, "error", err)
		}

		s.mu.Lock()
		if s.epoch == epoch {
			s.inflight--
		}
		s.mu.Unlock()

		s.emitItem(Item{Kind: transport.ReadablePublishResponse, Publish: resp})
	}()
	return nil
}

// Disconnect closes the connection gracefully. The outcome is emitted as a
// ReadableDisconnectResponse item. A connect attempt still in progress is
// abandoned.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	switch s.state {
	case stateClosed:
		s.mu.Unlock()
		return ErrClosed
	case stateIdle:
		s.mu.Unlock()
		return transport.ErrNotConnected
	case stateDisconnecting:
		s.mu.Unlock()
		return transport.ErrRequestPending
	}
	client := s.client
	s.state = stateDisconnecting
	s.mu.Unlock()

	go func() {
		client.Disconnect(s.cfg.quiesceMillis())

		s.emitMu.Lock()
		defer s.emitMu.Unlock()

		s.mu.Lock()
		if s.state != stateDisconnecting {
			s.mu.Unlock()
			return
		}
		s.reset(stateIdle)
		s.mu.Unlock()

		s.emit(Item{Kind: transport.ReadableDisconnectResponse,
			Disconnect: transport.DisconnectResponse{State: transport.RequestCompleted}})
	}()
	return nil
}

// Ack releases the message delivered under correlationID.
func (s *Session) Ack(correlationID uint32) error {
	s.mu.Lock()
	msg, ok := s.unacked[correlationID]
	delete(s.unacked, correlationID)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %w: %d", transport.ErrInvalidRequest, ErrUnknownMessage, correlationID)
	}
	msg.Ack()
	return nil
}

// Connected reports whether the session holds an established connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateConnected
}

// Close drops the connection without a graceful handshake and stops all
// further callbacks. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	client := s.client
	s.reset(stateClosed)
	s.mu.Unlock()

	if client != nil {
		client.Disconnect(0)
	}
}

// reset drops the connection state. Caller holds s.mu.
func (s *Session) reset(state sessionState) {
	s.state = state
	s.client = nil
	s.epoch++
	s.inflight = 0
	s.unacked = make(map[uint32]pahomqtt.Message)
}

func (s *Session) connectedClient() (pahoClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateClosed:
		return nil, ErrClosed
	case stateConnected:
		return s.client, nil
	default:
		return nil, transport.ErrNotConnected
	}
}

// handleMessage runs on paho's router goroutine, one message at a time.
func (s *Session) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.state != stateConnected {
		s.mu.Unlock()
		msg.Ack()
		return
	}

	size := len(msg.Topic()) + len(msg.Payload())
	if s.cfg.ReceiveBufferSize > 0 && size > s.cfg.ReceiveBufferSize {
		s.mu.Unlock()
		msg.Ack()
		s.warn("MQTT message exceeds receive buffer",
			"topic", msg.Topic(),
			"size", size,
			"buffer", s.cfg.ReceiveBufferSize,
		)
		s.emit(Item{Kind: transport.ReadableMessageLost, Lost: transport.LostMessage{
			Reason:     transport.LostReceiveBufferTooSmall,
			Topic:      msg.Topic(),
			MessageLen: size,
		}})
		return
	}

	id := s.nextMessageID()
	s.unacked[id] = msg
	s.mu.Unlock()

	s.emit(Item{Kind: transport.ReadableMessage, Message: transport.Message{
		CorrelationID: id,
		Topic:         msg.Topic(),
		Payload:       bytes.Clone(msg.Payload()),
		QoS:           msg.Qos(),
		Retain:        msg.Retained(),
	}})
}

// nextMessageID returns a non-zero correlation id for an inbound message.
// Caller holds s.mu.
func (s *Session) nextMessageID() uint32 {
	if s.cfg.MessageIDs != nil {
		for {
			if id := s.cfg.MessageIDs.Add(1); id != 0 {
				return id
			}
		}
	}
	s.nextMsgID++
	if s.nextMsgID == 0 {
		s.nextMsgID = 1
	}
	return s.nextMsgID
}

func (s *Session) connectionLost(err error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.state != stateConnected {
		s.mu.Unlock()
		return
	}
	s.reset(stateIdle)
	s.mu.Unlock()

	s.warn("MQTT connection lost", "error", err)
	if s.lost != nil {
		s.lost(err)
	}
}

// emitItem emits a request completion unless the session was closed.
func (s *Session) emitItem(item Item) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	closed := s.state == stateClosed
	s.mu.Unlock()
	if !closed {
		s.emit(item)
	}
}

func (s *Session) wait(token pahomqtt.Token) error {
	if !token.WaitTimeout(s.cfg.requestTimeout()) {
		return ErrTimeout
	}
	return token.Error()
}

func (s *Session) warn(msg string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Warn(msg, args...)
	}
}
