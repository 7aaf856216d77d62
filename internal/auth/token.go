package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters.
const (
	argonTime    = 2
	argonMemory  = 19 * 1024 // KiB
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashToken hashes an operator token using Argon2id and returns it in PHC
// string format.
//
// Parameters:
//   - token: Plaintext operator token
//
// Returns:
//   - string: PHC-formatted hash for api.token_hash
//   - error: ErrEmptyToken, or if reading random salt fails
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyToken checks a token against an Argon2id PHC hash string.
//
// Parameters:
//   - token: Token presented by the caller
//   - encodedHash: PHC string produced by HashToken
//
// Returns:
//   - bool: true if the token matches
//   - error: ErrInvalidHash if encodedHash cannot be parsed
func VerifyToken(token, encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(token), p.salt, p.time, p.memory, p.threads, uint32(len(p.hash))) //nolint:gosec // G115: hash length always fits uint32
	return subtle.ConstantTimeCompare(p.hash, candidate) == 1, nil
}

type phc struct {
	salt    []byte
	hash    []byte
	time    uint32
	memory  uint32
	threads uint8
}

// decodePHC parses an Argon2id PHC string.
func decodePHC(encoded string) (phc, error) {
	var p phc
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return p, fmt.Errorf("%w: expected 6 fields", ErrInvalidHash)
	}
	if parts[1] != "argon2id" {
		return p, fmt.Errorf("%w: unsupported algorithm %s", ErrInvalidHash, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, fmt.Errorf("%w: version: %w", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return p, fmt.Errorf("%w: version %d", ErrInvalidHash, version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, fmt.Errorf("%w: parameters: %w", ErrInvalidHash, err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, fmt.Errorf("%w: salt: %w", ErrInvalidHash, err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return p, fmt.Errorf("%w: hash: %w", ErrInvalidHash, err)
	}
	if len(p.hash) == 0 {
		return p, fmt.Errorf("%w: empty hash", ErrInvalidHash)
	}
	return p, nil
}

// Verifier checks operator tokens against one configured hash.
// Safe for concurrent use.
type Verifier struct {
	hash string

	mu       sync.Mutex
	accepted [sha256.Size]byte
	cached   bool
}

// NewVerifier validates encodedHash and returns a Verifier for it.
func NewVerifier(encodedHash string) (*Verifier, error) {
	if _, err := decodePHC(encodedHash); err != nil {
		return nil, err
	}
	return &Verifier{hash: encodedHash}, nil
}

// Verify reports whether token matches the configured hash.
func (v *Verifier) Verify(token string) bool {
	if token == "" {
		return false
	}
	digest := sha256.Sum256([]byte(token))

	v.mu.Lock()
	if v.cached && subtle.ConstantTimeCompare(v.accepted[:], digest[:]) == 1 {
		v.mu.Unlock()
		return true
	}
	v.mu.Unlock()

	ok, err := VerifyToken(token, v.hash)
	if err != nil || !ok {
		return false
	}

	v.mu.Lock()
	v.accepted = digest
	v.cached = true
	v.mu.Unlock()
	return true
}
