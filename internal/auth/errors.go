package auth

import "errors"

var (
	// ErrInvalidHash is returned for a hash that is not an Argon2id PHC string.
	ErrInvalidHash = errors.New("auth: invalid token hash")

	// ErrEmptyToken is returned when hashing an empty token.
	ErrEmptyToken = errors.New("auth: empty token")
)
