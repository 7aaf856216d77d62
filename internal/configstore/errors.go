package configstore

import "errors"

var (
	// ErrUnavailable wraps backend failures (connection refused, timeouts).
	ErrUnavailable = errors.New("configstore: backend unavailable")

	// ErrInvalidKey is returned for keys with an unknown scope or store kind
	// or an empty name.
	ErrInvalidKey = errors.New("configstore: invalid key")

	// ErrInvalidSeed is returned when a seed file cannot be parsed.
	ErrInvalidSeed = errors.New("configstore: invalid seed file")
)
