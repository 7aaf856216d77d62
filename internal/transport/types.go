package transport

import (
	"crypto/tls"
	"fmt"
	"time"
)

// Tag identifies the conversation a notification belongs to. Tags are chosen
// by the caller when it opens a channel or requests the network.
type Tag uint32

// Well-known tags used by the orchestrator.
const (
	TagNetwork Tag = 1
	TagConfig  Tag = 100
	TagBroker  Tag = 101
)

// Handle names an open channel or network reservation. Zero is never a
// valid handle.
type Handle uint32

// ChannelKind selects what a channel talks to.
type ChannelKind int

const (
	ChannelConfigFetch ChannelKind = iota + 1
	ChannelMQTT
)

// String returns the channel kind name used in logs.
func (k ChannelKind) String() string {
	switch k {
	case ChannelConfigFetch:
		return "config"
	case ChannelMQTT:
		return "mqtt"
	default:
		return fmt.Sprintf("channel(%d)", int(k))
	}
}

// EventType is the kind of a provider notification.
type EventType int

const (
	// ChannelDataReadable means one more item was queued on the channel's
	// readable FIFO.
	ChannelDataReadable EventType = iota + 1

	// ChannelNotConnected means the channel's underlying connection was lost
	// or could not be established.
	ChannelNotConnected

	// NetworkStatusChanged means the network reservation changed state.
	NetworkStatusChanged
)

// String returns the event type name used in logs.
func (t EventType) String() string {
	switch t {
	case ChannelDataReadable:
		return "data_readable"
	case ChannelNotConnected:
		return "not_connected"
	case NetworkStatusChanged:
		return "network_status_changed"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Notification is a single (tag, event type) pair raised by the provider.
type Notification struct {
	Tag  Tag
	Type EventType
}

// Notifier receives provider notifications. It is called from provider
// goroutines and must not block.
type Notifier func(Notification)

// NetworkStatus is the state of a network reservation.
type NetworkStatus int

const (
	NetworkConnecting NetworkStatus = iota
	NetworkConnected
)

// String returns "connected" or "connecting".
func (s NetworkStatus) String() string {
	if s == NetworkConnected {
		return "connected"
	}
	return "connecting"
}

// Buffers is the send/receive buffer pair lent to an open channel.
type Buffers struct {
	Send    []byte
	Receive []byte
}

// NewBuffers allocates a buffer pair of the given sizes.
func NewBuffers(sendSize, receiveSize int) Buffers {
	return Buffers{
		Send:    make([]byte, sendSize),
		Receive: make([]byte, receiveSize),
	}
}

// ChannelParams are the arguments to OpenChannel.
type ChannelParams struct {
	Kind    ChannelKind
	Tag     Tag
	Network Handle
	Buffers Buffers
}

// ReadableKind is the kind of the item at the head of a broker channel's
// readable FIFO.
type ReadableKind int

const (
	ReadableNone ReadableKind = iota
	ReadableConnectResponse
	ReadableMessage
	ReadableMessageLost
	ReadableSubscribeResponse
	ReadableUnsubscribeResponse
	ReadablePublishResponse
	ReadableDisconnectResponse
	ReadableConfigResponse
)

var readableNames = map[ReadableKind]string{
	ReadableNone:                "none",
	ReadableConnectResponse:     "connect_response",
	ReadableMessage:             "message",
	ReadableMessageLost:         "message_lost",
	ReadableSubscribeResponse:   "subscribe_response",
	ReadableUnsubscribeResponse: "unsubscribe_response",
	ReadablePublishResponse:     "publish_response",
	ReadableDisconnectResponse:  "disconnect_response",
	ReadableConfigResponse:      "config_response",
}

// String returns the readable kind name used in logs.
func (k ReadableKind) String() string {
	if name, ok := readableNames[k]; ok {
		return name
	}
	return fmt.Sprintf("readable(%d)", int(k))
}

// RequestState reports whether a request ran to completion.
type RequestState int

const (
	RequestCompleted RequestState = iota
	RequestFailed
	RequestAborted
)

// String returns the request state name used in logs.
func (s RequestState) String() string {
	switch s {
	case RequestCompleted:
		return "completed"
	case RequestFailed:
		return "failed"
	case RequestAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ReasonSuccess is the broker reason code for a successful operation.
const ReasonSuccess uint32 = 0x00

// ReasonUnspecified is used when the broker refused a request without
// giving a more specific code.
const ReasonUnspecified uint32 = 0x80

// Credentials authenticate the broker session.
type Credentials struct {
	Username string
	Password string
}

// TLSMaterial is the certificate material for a broker session. All
// certificates are DER (PEM is accepted and converted by the provider).
type TLSMaterial struct {
	RootCAs    [][]byte
	ClientCert [][]byte
	PrivateKey any
	ServerName string
	MinVersion uint16
}

// DefaultTLSMinVersion is the minimum TLS version for broker sessions.
const DefaultTLSMinVersion = tls.VersionTLS12

// ConnectRequest opens a broker session on an MQTT channel.
type ConnectRequest struct {
	Host        string
	Port        uint16
	ClientID    string
	Credentials Credentials
	TLS         *TLSMaterial
	KeepAlive   time.Duration
	CleanStart  bool
}

// Subscription is one topic filter in a subscribe request.
type Subscription struct {
	Topic string
	QoS   byte
}

// SubscribeRequest subscribes to one or more topic filters.
type SubscribeRequest struct {
	CorrelationID uint32
	Subscriptions []Subscription
}

// UnsubscribeRequest removes one or more topic filters.
type UnsubscribeRequest struct {
	CorrelationID uint32
	Topics        []string
}

// PublishRequest publishes a payload.
type PublishRequest struct {
	CorrelationID uint32
	Topic         string
	Payload       []byte
	QoS           byte
	Retain        bool
}

// ConnectResponse is the outcome of a connect request.
type ConnectResponse struct {
	State          RequestState
	ReasonCode     uint32
	SessionPresent bool
}

// SubscribeResponse is the outcome of a subscribe request. ReasonCodes
// carries one code per requested subscription.
type SubscribeResponse struct {
	State         RequestState
	CorrelationID uint32
	ReasonCodes   []uint32
}

// UnsubscribeResponse is the outcome of an unsubscribe request.
type UnsubscribeResponse struct {
	State         RequestState
	CorrelationID uint32
	ReasonCodes   []uint32
}

// PublishResponse is the outcome of a publish request.
type PublishResponse struct {
	State         RequestState
	CorrelationID uint32
	ReasonCode    uint32
}

// DisconnectResponse is the outcome of a disconnect request.
type DisconnectResponse struct {
	State RequestState
}

// Message is an inbound broker message. Topic and Payload alias the
// channel's receive buffer and stay valid until the next ReceiveMessage.
type Message struct {
	CorrelationID uint32
	Topic         string
	Payload       []byte
	QoS           byte
	Retain        bool
}

// LostReason says why an inbound message could not be delivered.
type LostReason int

const (
	LostReceiveBufferTooSmall LostReason = iota + 1
	LostQueueFull
)

// String returns the lost reason name used in logs.
func (r LostReason) String() string {
	switch r {
	case LostReceiveBufferTooSmall:
		return "receive_buffer_too_small"
	case LostQueueFull:
		return "queue_full"
	default:
		return fmt.Sprintf("lost(%d)", int(r))
	}
}

// LostMessage describes a dropped inbound message.
type LostMessage struct {
	Reason     LostReason
	Topic      string
	MessageLen int
}

// ConfigScope selects whose configuration a key is read from.
type ConfigScope int

const (
	ScopeDevice ConfigScope = iota + 1
	ScopeAccount
)

// String returns "device" or "account".
func (s ConfigScope) String() string {
	if s == ScopeAccount {
		return "account"
	}
	return "device"
}

// ConfigStoreKind selects between plain configuration and secrets.
type ConfigStoreKind int

const (
	StoreConfig ConfigStoreKind = iota + 1
	StoreSecret
)

// String returns "config" or "secret".
func (s ConfigStoreKind) String() string {
	if s == StoreSecret {
		return "secret"
	}
	return "config"
}

// ConfigKey names one item to fetch.
type ConfigKey struct {
	Scope ConfigScope
	Store ConfigStoreKind
	Key   string
}

// ConfigFetchResult is the overall outcome of a configuration fetch.
type ConfigFetchResult int

const (
	ConfigFetchOK ConfigFetchResult = iota
	ConfigFetchFailed
	ConfigFetchUnavailable
)

// String returns the fetch result name used in logs.
func (r ConfigFetchResult) String() string {
	switch r {
	case ConfigFetchOK:
		return "ok"
	case ConfigFetchFailed:
		return "failed"
	case ConfigFetchUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("fetch_result(%d)", int(r))
	}
}

// ConfigFetchResponse is the header of a configuration fetch response.
type ConfigFetchResponse struct {
	Result   ConfigFetchResult
	NumItems int
}

// ConfigKeyResult is the outcome for one fetched key.
type ConfigKeyResult int

const (
	ConfigKeyOK ConfigKeyResult = iota
	ConfigKeyNotFound
	ConfigKeyNotAuthorized
	ConfigKeyReadFailed
)

// String returns the key result name used in logs.
func (r ConfigKeyResult) String() string {
	switch r {
	case ConfigKeyOK:
		return "ok"
	case ConfigKeyNotFound:
		return "not_found"
	case ConfigKeyNotAuthorized:
		return "not_authorized"
	case ConfigKeyReadFailed:
		return "read_failed"
	default:
		return fmt.Sprintf("key_result(%d)", int(r))
	}
}

// ConfigItem is one fetched configuration value. Data aliases the channel's
// receive buffer and stays valid until the next ReadConfigItem.
type ConfigItem struct {
	Result ConfigKeyResult
	Data   []byte
}
