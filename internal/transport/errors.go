package transport

import "errors"

// Sentinel errors returned by Provider implementations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnknownHandle is returned when a handle does not name an open channel
	// or network reservation.
	ErrUnknownHandle = errors.New("transport: unknown handle")

	// ErrWrongChannelKind is returned when a request is issued on a channel of
	// the wrong kind (e.g. a publish on a config-fetch channel).
	ErrWrongChannelKind = errors.New("transport: wrong channel kind")

	// ErrWrongReadable is returned when a Read*/Receive* call does not match
	// the kind at the head of the readable queue.
	ErrWrongReadable = errors.New("transport: readable data is of a different kind")

	// ErrNothingReadable is returned when the readable queue is empty.
	ErrNothingReadable = errors.New("transport: nothing readable")

	// ErrRateLimited is returned when the provider refuses a request because
	// too many are already in flight. The request may be retried later.
	ErrRateLimited = errors.New("transport: rate limited")

	// ErrBufferTooSmall is returned when a response does not fit the receive
	// buffer lent to the channel.
	ErrBufferTooSmall = errors.New("transport: receive buffer too small")

	// ErrNotConnected is returned when a broker request is issued on a channel
	// whose session is not connected.
	ErrNotConnected = errors.New("transport: channel not connected")

	// ErrInvalidRequest is returned for malformed requests (empty topic, no
	// keys, bad QoS).
	ErrInvalidRequest = errors.New("transport: invalid request")

	// ErrRequestPending is returned when a request of the same kind is
	// already outstanding on the channel.
	ErrRequestPending = errors.New("transport: request already pending")
)
