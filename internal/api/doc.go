// Package api implements the local HTTP status server of the edge agent.
//
// Endpoints:
//   - GET  /healthz      liveness plus dependency checks (database, InfluxDB)
//   - GET  /v1/status    orchestrator phase, flags and counters, application
//     state and Go runtime figures
//   - POST /v1/retry     restart a parked orchestrator (bearer token when
//     api.token_hash is set)
//   - GET  /v1/sessions  recorded session transitions, newest first
//   - GET  /v1/events    WebSocket stream of orchestrator events
//   - GET  /metrics      Prometheus exposition
//
// # Event Stream
//
// Clients send {"type":"subscribe","payload":{"channels":["phase.changed"]}}
// and then receive {"type":"event","event_type":...} messages. Channels are
// phase.changed, reconnect.scheduled, message.lost and publish.completed.
// Slow clients lose events rather than stall the orchestrator.
//
// # Security
//
// The server binds to 127.0.0.1 by default and is meant for on-site
// diagnostics. Read-only endpoints carry no authentication. POST /v1/retry
// requires an operator bearer token when a TokenVerifier is configured.
//
// # Graceful Degradation
//
// /v1/sessions, /v1/events and /metrics answer 404 when their backing component is not
// configured. A failing health check turns /healthz into a 503 without
// affecting the other endpoints.
package api
