// Package configstore holds the configuration and secret items that
// config-fetch channels serve to the orchestrator.
//
// Items are addressed by transport.ConfigKey: a scope (device or account),
// a store kind (config or secret) and a key name such as "broker-host".
// Values are opaque bytes; binary material is usually hex encoded by
// whoever provisions the store.
//
// # Backends
//
//   - SQLiteStore keeps items in the local database's config_items table.
//   - RedisStore reads a provisioning Redis with one MGET per fetch, using
//     keys of the form <prefix>:<scope>:<store>:<key>.
//
// # Seeding
//
// Seed loads a YAML file and writes every item into a Writer:
//
//	device:
//	  config:
//	    broker-host: mqtt.example.com
//	    broker-port: "8883"
//	  secret:
//	    private-key: 3082...
//	account:
//	  config:
//	    root-ca: 3082...
//
// # Errors
//
// Fetch reports a missing key through its per-item result. An error from
// Fetch means the backend itself could not be read; the channel provider
// maps it to ConfigFetchUnavailable so the orchestrator retries.
package configstore
