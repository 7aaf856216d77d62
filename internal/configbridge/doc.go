// Package configbridge turns fetched configuration items into the fields a
// broker connect request needs.
//
// The bridge is stateless apart from its Settings. It decides which keys to
// fetch for the configured authentication method, and decodes the raw items
// the store returns, in the same order, into Credentials:
//
//	certificate  broker-host, broker-port, root-CA, cert, private_key
//	password     broker-host, broker-port, root-CA, broker-username, broker-password
//	azure-sas    root-CA, azure-connection-string
//	jwt          broker-host, broker-port, root-CA, jwt-signing-key
//
// Binary items (certificates and keys) are stored hex or base64 encoded and
// may hold DER or PEM once decoded. Every decoded item is bounded in size.
//
// Credentials derived from a shared key (azure-sas) or a signing key (jwt)
// carry an expiry. The orchestrator treats those as perishable and fetches
// configuration again before reconnecting once they lapse.
package configbridge
