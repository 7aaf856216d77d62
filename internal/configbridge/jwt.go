package configbridge

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethodFor picks the JWT algorithm matching a private key.
func SigningMethodFor(key crypto.Signer) (jwt.SigningMethod, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return jwt.SigningMethodES256, nil
		case 384:
			return jwt.SigningMethodES384, nil
		default:
			return nil, fmt.Errorf("%w: ecdsa curve %s", ErrUnsupportedKey, k.Curve.Params().Name)
		}
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

// JWTPassword signs a short-lived token used as the broker password.
//
// Parameters:
//   - key: Device private key; its type selects the algorithm
//   - deviceID: Token subject
//   - audience: Broker project or tenant; omitted when empty
//   - issuedAt, expiresAt: Validity window
//
// Returns:
//   - string: Signed compact JWT
//   - error: ErrUnsupportedKey or a signing failure
func JWTPassword(key crypto.Signer, deviceID, audience string, issuedAt, expiresAt time.Time) (string, error) {
	method, err := SigningMethodFor(key)
	if err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{
		Subject:   deviceID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing broker token: %w", err)
	}
	return signed, nil
}
