package network

import "errors"

var (
	// ErrNoProbeAddress is returned by New when no probe address is configured.
	ErrNoProbeAddress = errors.New("network: probe address is required")

	// ErrAlreadyStarted is returned by Start on a running monitor.
	ErrAlreadyStarted = errors.New("network: monitor already started")
)
