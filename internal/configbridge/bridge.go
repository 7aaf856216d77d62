package configbridge

import (
	"bytes"
	"crypto"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// AuthMethod selects how the broker session is authenticated.
type AuthMethod string

const (
	AuthCertificate AuthMethod = "certificate"
	AuthPassword    AuthMethod = "password"
	AuthAzureSAS    AuthMethod = "azure-sas"
	AuthJWT         AuthMethod = "jwt"
)

// Configuration keys read from the store.
const (
	KeyBrokerHost       = "broker-host"
	KeyBrokerPort       = "broker-port"
	KeyRootCA           = "root-CA"
	KeyCert             = "cert"
	KeyPrivateKey       = "private_key"
	KeyBrokerUsername   = "broker-username"
	KeyBrokerPassword   = "broker-password"
	KeyConnectionString = "azure-connection-string"
	KeyJWTSigningKey    = "jwt-signing-key"
)

// DefaultCredentialTTL is the lifetime of derived (SAS or JWT) passwords.
const DefaultCredentialTTL = time.Hour

// Settings configure a Bridge.
type Settings struct {
	// DeviceID is the MQTT client id. Azure connection strings carry their
	// own device id, which takes precedence.
	DeviceID string

	Auth     AuthMethod
	Encoding Encoding

	// TLS disables transport security when false. Only useful against a
	// local development broker.
	TLS bool

	// CredentialTTL bounds derived passwords (azure-sas, jwt).
	CredentialTTL time.Duration

	// JWTAudience is the aud claim of jwt-mode passwords.
	JWTAudience string
}

// Credentials are everything needed to open a broker session.
type Credentials struct {
	Method     AuthMethod
	ClientID   string
	Host       string
	Port       uint16
	RootCA     []byte
	ClientCert []byte
	PrivateKey crypto.Signer
	Username   string
	Password   string
	TLS        bool
	IssuedAt   time.Time

	// ExpiresAt is zero for credentials that do not lapse.
	ExpiresAt time.Time
}

// Perishable reports whether the credentials carry an expiry.
func (c *Credentials) Perishable() bool {
	return !c.ExpiresAt.IsZero()
}

// Expired reports whether the credentials have lapsed at now.
func (c *Credentials) Expired(now time.Time) bool {
	return c.Perishable() && !now.Before(c.ExpiresAt)
}

// Address returns "host:port" for logging.
func (c *Credentials) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnectRequest builds the transport connect request.
func (c *Credentials) ConnectRequest(keepAlive time.Duration, cleanStart bool) transport.ConnectRequest {
	req := transport.ConnectRequest{
		Host:       c.Host,
		Port:       c.Port,
		ClientID:   c.ClientID,
		KeepAlive:  keepAlive,
		CleanStart: cleanStart,
		Credentials: transport.Credentials{
			Username: c.Username,
			Password: c.Password,
		},
	}
	if c.TLS {
		tlsm := &transport.TLSMaterial{
			ServerName: c.Host,
			MinVersion: transport.DefaultTLSMinVersion,
		}
		if len(c.RootCA) > 0 {
			tlsm.RootCAs = [][]byte{c.RootCA}
		}
		if len(c.ClientCert) > 0 && c.PrivateKey != nil {
			tlsm.ClientCert = [][]byte{c.ClientCert}
			tlsm.PrivateKey = c.PrivateKey
		}
		req.TLS = tlsm
	}
	return req
}

// Bridge decodes fetched configuration into Credentials.
type Bridge struct {
	settings Settings
	now      func() time.Time
}

// New validates settings and returns a Bridge.
//
// Parameters:
//   - s: Auth method, item encoding, device id and credential lifetime
//
// Returns:
//   - *Bridge: Bridge with defaults applied (certificate auth, hex encoding)
//   - error: ErrUnknownAuthMethod, ErrUnknownEncoding or a missing device id
func New(s Settings) (*Bridge, error) {
	switch s.Auth {
	case AuthCertificate, AuthPassword, AuthAzureSAS, AuthJWT:
	case "":
		s.Auth = AuthCertificate
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAuthMethod, s.Auth)
	}
	switch s.Encoding {
	case EncodingHex, EncodingBase64:
	case "":
		s.Encoding = EncodingHex
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, s.Encoding)
	}
	if s.CredentialTTL <= 0 {
		s.CredentialTTL = DefaultCredentialTTL
	}
	if s.DeviceID == "" && s.Auth != AuthAzureSAS {
		return nil, fmt.Errorf("configbridge: device id is required for %s auth", s.Auth)
	}
	return &Bridge{settings: s, now: time.Now}, nil
}

// SetClock overrides the time source used for derived credentials.
func (b *Bridge) SetClock(now func() time.Time) {
	b.now = now
}

// Settings returns the effective settings.
func (b *Bridge) Settings() Settings {
	return b.settings
}

func deviceConfig(key string) transport.ConfigKey {
	return transport.ConfigKey{Scope: transport.ScopeDevice, Store: transport.StoreConfig, Key: key}
}

func deviceSecret(key string) transport.ConfigKey {
	return transport.ConfigKey{Scope: transport.ScopeDevice, Store: transport.StoreSecret, Key: key}
}

// Keys returns the keys to fetch, in the order Decode expects the items.
func (b *Bridge) Keys() []transport.ConfigKey {
	switch b.settings.Auth {
	case AuthPassword:
		return []transport.ConfigKey{
			deviceConfig(KeyBrokerHost),
			deviceConfig(KeyBrokerPort),
			deviceConfig(KeyRootCA),
			deviceConfig(KeyBrokerUsername),
			deviceSecret(KeyBrokerPassword),
		}
	case AuthAzureSAS:
		return []transport.ConfigKey{
			deviceConfig(KeyRootCA),
			deviceSecret(KeyConnectionString),
		}
	case AuthJWT:
		return []transport.ConfigKey{
			deviceConfig(KeyBrokerHost),
			deviceConfig(KeyBrokerPort),
			deviceConfig(KeyRootCA),
			deviceSecret(KeyJWTSigningKey),
		}
	default:
		return []transport.ConfigKey{
			deviceConfig(KeyBrokerHost),
			deviceConfig(KeyBrokerPort),
			deviceConfig(KeyRootCA),
			deviceConfig(KeyCert),
			deviceSecret(KeyPrivateKey),
		}
	}
}

// Decode converts items, ordered as Keys, into Credentials. The caller owns
// items; Decode does not retain them.
//
// Parameters:
//   - items: Raw item bytes in the order returned by Keys
//
// Returns:
//   - *Credentials: Broker address, identity and TLS material
//   - error: ErrItemCount or the first item that failed to decode
func (b *Bridge) Decode(items [][]byte) (*Credentials, error) {
	keys := b.Keys()
	if len(items) != len(keys) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrItemCount, len(items), len(keys))
	}

	creds := &Credentials{
		Method:   b.settings.Auth,
		ClientID: b.settings.DeviceID,
		TLS:      b.settings.TLS,
		IssuedAt: b.now(),
	}

	var err error
	switch b.settings.Auth {
	case AuthPassword:
		err = b.decodePassword(items, creds)
	case AuthAzureSAS:
		err = b.decodeAzure(items, creds)
	case AuthJWT:
		err = b.decodeJWT(items, creds)
	default:
		err = b.decodeCertificate(items, creds)
	}
	if err != nil {
		return nil, err
	}
	return creds, nil
}

func (b *Bridge) decodeEndpoint(host, port, rootCA []byte, creds *Credentials) error {
	var err error
	if creds.Host, err = DecodeString(host, MaxHostLength); err != nil {
		return fmt.Errorf("%s: %w", KeyBrokerHost, err)
	}
	if creds.Port, err = ParsePort(port); err != nil {
		return fmt.Errorf("%s: %w", KeyBrokerPort, err)
	}
	return b.decodeRootCA(rootCA, creds)
}

func (b *Bridge) decodeRootCA(rootCA []byte, creds *Credentials) error {
	// An empty root-CA falls back to the system pool.
	if !creds.TLS || len(bytes.TrimSpace(rootCA)) == 0 {
		return nil
	}
	raw, err := DecodeBinary(b.settings.Encoding, rootCA, MaxRootCASize)
	if err != nil {
		return fmt.Errorf("%s: %w", KeyRootCA, err)
	}
	if creds.RootCA, err = CertificateDER(raw); err != nil {
		return fmt.Errorf("%s: %w", KeyRootCA, err)
	}
	return nil
}

func (b *Bridge) decodeCertificate(items [][]byte, creds *Credentials) error {
	if err := b.decodeEndpoint(items[0], items[1], items[2], creds); err != nil {
		return err
	}

	raw, err := DecodeBinary(b.settings.Encoding, items[3], MaxCertSize)
	if err != nil {
		return fmt.Errorf("%s: %w", KeyCert, err)
	}
	if creds.ClientCert, err = CertificateDER(raw); err != nil {
		return fmt.Errorf("%s: %w", KeyCert, err)
	}

	raw, err = DecodeBinary(b.settings.Encoding, items[4], MaxPrivateKeySize)
	if err != nil {
		return fmt.Errorf("%s: %w", KeyPrivateKey, err)
	}
	if creds.PrivateKey, err = ParsePrivateKey(raw); err != nil {
		return fmt.Errorf("%s: %w", KeyPrivateKey, err)
	}
	return nil
}

func (b *Bridge) decodePassword(items [][]byte, creds *Credentials) error {
	if err := b.decodeEndpoint(items[0], items[1], items[2], creds); err != nil {
		return err
	}
	var err error
	if creds.Username, err = DecodeString(items[3], MaxSecretSize); err != nil {
		return fmt.Errorf("%s: %w", KeyBrokerUsername, err)
	}
	if creds.Password, err = DecodeString(items[4], MaxSecretSize); err != nil {
		return fmt.Errorf("%s: %w", KeyBrokerPassword, err)
	}
	return nil
}

func (b *Bridge) decodeAzure(items [][]byte, creds *Credentials) error {
	if err := b.decodeRootCA(items[0], creds); err != nil {
		return err
	}
	conn, err := ParseAzureConnectionString(string(items[1]))
	if err != nil {
		return fmt.Errorf("%s: %w", KeyConnectionString, err)
	}

	creds.Host = conn.HostName
	creds.Port = AzurePort
	creds.ClientID = conn.DeviceID
	creds.Username = conn.Username()
	creds.ExpiresAt = creds.IssuedAt.Add(b.settings.CredentialTTL)
	creds.Password = conn.SASToken(creds.ExpiresAt)
	return nil
}

func (b *Bridge) decodeJWT(items [][]byte, creds *Credentials) error {
	if err := b.decodeEndpoint(items[0], items[1], items[2], creds); err != nil {
		return err
	}

	raw, err := DecodeBinary(b.settings.Encoding, items[3], MaxPrivateKeySize)
	if err != nil {
		return fmt.Errorf("%s: %w", KeyJWTSigningKey, err)
	}
	key, err := ParsePrivateKey(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", KeyJWTSigningKey, err)
	}

	creds.Username = creds.ClientID
	creds.ExpiresAt = creds.IssuedAt.Add(b.settings.CredentialTTL)
	creds.Password, err = JWTPassword(key, creds.ClientID, b.settings.JWTAudience, creds.IssuedAt, creds.ExpiresAt)
	return err
}
