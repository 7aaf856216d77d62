package configbridge

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Destination bounds for decoded items.
const (
	MaxHostLength     = 128
	MaxRootCASize     = 2048
	MaxCertSize       = 2048
	MaxPrivateKeySize = 2048
	MaxSecretSize     = 512
)

// Encoding is how binary items are stored.
type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
)

// DecodeBinary decodes a hex or base64 item, refusing results larger than
// max bytes. Whitespace in the encoded form is ignored.
//
// Parameters:
//   - enc: EncodingHex (also the zero value) or EncodingBase64
//   - data: Encoded item as fetched
//   - max: Largest decoded size accepted, in bytes
//
// Returns:
//   - []byte: Decoded bytes
//   - error: ErrEmptyItem, ErrItemTooLarge, ErrInvalidEncoding or ErrUnknownEncoding
func DecodeBinary(enc Encoding, data []byte, max int) ([]byte, error) {
	clean := stripSpace(data)
	if len(clean) == 0 {
		return nil, ErrEmptyItem
	}

	switch enc {
	case EncodingHex, "":
		if len(clean)/2 > max {
			return nil, fmt.Errorf("%w: %d > %d bytes", ErrItemTooLarge, len(clean)/2, max)
		}
		out := make([]byte, hex.DecodedLen(len(clean)))
		if _, err := hex.Decode(out, clean); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
		}
		return out, nil
	case EncodingBase64:
		if base64.StdEncoding.DecodedLen(len(clean)) > max+2 {
			return nil, fmt.Errorf("%w: ~%d > %d bytes", ErrItemTooLarge, base64.StdEncoding.DecodedLen(len(clean)), max)
		}
		out := make([]byte, base64.StdEncoding.DecodedLen(len(clean)))
		n, err := base64.StdEncoding.Decode(out, clean)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
		}
		if n > max {
			return nil, fmt.Errorf("%w: %d > %d bytes", ErrItemTooLarge, n, max)
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}

// DecodeString returns a trimmed string item, refusing items longer than max.
func DecodeString(data []byte, max int) (string, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "", ErrEmptyItem
	}
	if len(s) > max {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrItemTooLarge, len(s), max)
	}
	return s, nil
}

// ParsePort parses a decimal TCP port.
func ParsePort(data []byte) (uint16, error) {
	s := strings.TrimSpace(string(data))
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return uint16(port), nil
}

// CertificateDER accepts a DER or PEM certificate and returns its DER form
// after checking it parses.
func CertificateDER(data []byte) ([]byte, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: pem block %q", ErrInvalidCertificate, block.Type)
		}
		der = block.Bytes
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCertificate, err)
	}
	return der, nil
}

// ParsePrivateKey accepts a PKCS#8, PKCS#1 or SEC 1 key in DER or PEM.
//
// Parameters:
//   - data: Key bytes, already decoded from the item encoding
//
// Returns:
//   - crypto.Signer: RSA, ECDSA or Ed25519 private key
//   - error: ErrInvalidKey or ErrUnsupportedKey
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		der = block.Bytes
	}

	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch k := key.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case *ecdsa.PrivateKey:
			return k, nil
		case ed25519.PrivateKey:
			return k, nil
		default:
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
		}
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, ErrInvalidKey
}

func stripSpace(data []byte) []byte {
	if bytes.IndexFunc(data, unicode.IsSpace) < 0 {
		return data
	}
	return bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, data)
}
