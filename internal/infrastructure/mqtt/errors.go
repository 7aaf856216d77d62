package mqtt

import "errors"

// Domain-specific errors for MQTT sessions.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyConnected is returned by Connect when the session is already
	// connecting or connected.
	ErrAlreadyConnected = errors.New("mqtt: session already connected")

	// ErrClosed is returned for any request on a closed session.
	ErrClosed = errors.New("mqtt: session closed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or malformed topic or filter
	// is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrPayloadTooLarge is returned when a publish does not fit the send
	// buffer.
	ErrPayloadTooLarge = errors.New("mqtt: payload exceeds send buffer")

	// ErrUnknownMessage is returned when acknowledging a message the session
	// never delivered or already released.
	ErrUnknownMessage = errors.New("mqtt: unknown message")

	// ErrInvalidTLS is returned when the TLS material cannot be turned into a
	// usable TLS configuration.
	ErrInvalidTLS = errors.New("mqtt: invalid TLS material")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
