package mqtt

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for CONNACK.
	defaultConnectTimeout = 30 * time.Second

	// defaultRequestTimeout bounds subscribe, unsubscribe and publish tokens.
	defaultRequestTimeout = 30 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 * time.Millisecond

	// defaultKeepAlive is the keepalive interval when the request names none.
	defaultKeepAlive = 60 * time.Second

	// defaultInFlightLimit caps outstanding publishes per session.
	defaultInFlightLimit = 8

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// protocolVersion311 selects MQTT 3.1.1, the only version paho v1 speaks.
	protocolVersion311 = 4

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho options for one connect request.
//
// Reconnection is never left to paho: a lost connection is reported upward
// and the orchestrator decides when to dial again. Acknowledgements are
// manual so a message is only released once the application consumed it.
func buildClientOptions(req transport.ConnectRequest, cfg SessionConfig) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if req.TLS != nil {
		scheme = "ssl"
		tlsConfig, err := buildTLSConfig(req.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}
	opts.AddBroker(fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(req.Host, strconv.Itoa(int(req.Port)))))

	opts.SetClientID(req.ClientID)
	if req.Credentials.Username != "" {
		opts.SetUsername(req.Credentials.Username)
		opts.SetPassword(req.Credentials.Password)
	}

	opts.SetProtocolVersion(protocolVersion311)
	opts.SetCleanSession(req.CleanStart)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetAutoAckDisabled(true)
	opts.SetOrderMatters(true)

	opts.SetConnectTimeout(cfg.connectTimeout())
	opts.SetWriteTimeout(cfg.requestTimeout())

	keepAlive := req.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	return opts, nil
}

// buildTLSConfig turns DER (or PEM) certificate material into a tls.Config.
func buildTLSConfig(m *transport.TLSMaterial) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: m.MinVersion,
		ServerName: m.ServerName,
	}
	if cfg.MinVersion < tlsMinVersion {
		cfg.MinVersion = tlsMinVersion
	}

	if len(m.RootCAs) > 0 {
		pool := x509.NewCertPool()
		for i, raw := range m.RootCAs {
			cert, err := x509.ParseCertificate(toDER(raw))
			if err != nil {
				return nil, fmt.Errorf("%w: root CA %d: %w", ErrInvalidTLS, i, err)
			}
			pool.AddCert(cert)
		}
		cfg.RootCAs = pool
	}

	if len(m.ClientCert) > 0 {
		signer, ok := m.PrivateKey.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("%w: client certificate without a usable private key", ErrInvalidTLS)
		}
		chain := make([][]byte, 0, len(m.ClientCert))
		for i, raw := range m.ClientCert {
			der := toDER(raw)
			if _, err := x509.ParseCertificate(der); err != nil {
				return nil, fmt.Errorf("%w: client certificate %d: %w", ErrInvalidTLS, i, err)
			}
			chain = append(chain, der)
		}
		cfg.Certificates = []tls.Certificate{{Certificate: chain, PrivateKey: signer}}
	}

	return cfg, nil
}

// toDER strips a PEM envelope when present.
func toDER(raw []byte) []byte {
	if block, _ := pem.Decode(raw); block != nil {
		return block.Bytes
	}
	return raw
}

// connackReason maps an MQTT 3.1.1 CONNACK return code onto the MQTT 5
// reason code space used by transport.ConnectResponse.
func connackReason(code byte) uint32 {
	switch code {
	case 0x01: // unacceptable protocol version
		return 0x84
	case 0x02: // identifier rejected
		return 0x85
	case 0x03: // server unavailable
		return 0x88
	case 0x04: // bad user name or password
		return 0x86
	case 0x05: // not authorized
		return 0x87
	default:
		return transport.ReasonUnspecified
	}
}
