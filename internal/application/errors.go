package application

import "errors"

var (
	// ErrUnknownKind is returned by New for an application kind other than
	// dummy or switch.
	ErrUnknownKind = errors.New("application: unknown kind")

	// ErrNoLink is returned by Run without an orchestrator link.
	ErrNoLink = errors.New("application: orchestrator link is required")

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("application: already running")
)
