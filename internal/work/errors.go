package work

import "errors"

// Domain-specific errors for the orchestrator.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrQueueFull is returned when an event is rejected because the event
	// queue is at capacity. The rejected event is the one being posted.
	ErrQueueFull = errors.New("work: event queue full")

	// ErrOutboxFull is returned by Produce when too many outbound payloads
	// are waiting to be published.
	ErrOutboxFull = errors.New("work: outbox full")

	// ErrNotReady is reported to the application when a payload could not
	// be published because no broker session is ready.
	ErrNotReady = errors.New("work: broker session not ready")

	// ErrEmptyPayload is returned by Produce for a zero-length payload.
	ErrEmptyPayload = errors.New("work: payload cannot be empty")

	// ErrPublishRejected is reported to the application when the broker
	// refused a publish or the request could not be issued.
	ErrPublishRejected = errors.New("work: publish rejected")

	// ErrShutdownTimeout is returned by Run when graceful shutdown did not
	// complete within the configured timeout.
	ErrShutdownTimeout = errors.New("work: shutdown timed out")

	// ErrStoreUnavailable marks a configuration fetch that failed because
	// the store could not be reached. Unlike a decode failure it is retried.
	ErrStoreUnavailable = errors.New("work: configuration store unavailable")

	// ErrRequestTimeout is recorded when a request outlives the watchdog.
	ErrRequestTimeout = errors.New("work: request timed out")

	// ErrMissingDependency is returned by New when a required collaborator
	// is nil.
	ErrMissingDependency = errors.New("work: missing dependency")
)
