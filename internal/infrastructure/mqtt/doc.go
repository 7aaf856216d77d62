// Package mqtt drives broker sessions for the edge agent's MQTT channels.
//
// This package manages:
//   - Connection setup from a transport.ConnectRequest (TLS, credentials,
//     keepalive, clean session)
//   - Asynchronous subscribe, unsubscribe and publish with per-request
//     completions
//   - Manual acknowledgement of inbound messages
//   - Publish flow control through an in-flight limit
//
// # Architecture
//
// A Session never blocks its caller on the network. Each request is handed
// to paho on its own goroutine and its outcome is emitted as an Item, in
// observation order, to the callback the channel provider registered:
//
//	channel provider ──Connect/Publish──▶ Session ──paho──▶ broker
//	channel provider ◀──emit(Item)────── Session ◀─token── broker
//
// paho's own reconnect logic is disabled. A dropped connection is reported
// once through the lost callback and the session returns to idle; dialling
// again is the orchestrator's decision.
//
// # Security Considerations
//
//   - TLS 1.2 is the minimum; material with a lower MinVersion is raised
//   - Root CAs and client certificates are accepted as DER or PEM
//   - Client certificates require a crypto.Signer private key
//
// # Protocol
//
// paho.mqtt.golang v1 speaks MQTT 3.1.1 only. CONNACK return codes are
// mapped onto MQTT 5 reason codes (0x84..0x88) and any other failure is
// reported as 0x80.
//
// # Usage
//
//	s := mqtt.NewSession(mqtt.SessionConfig{InFlightLimit: 8}, emit, lost)
//	if err := s.Connect(req); err != nil {
//	    return err
//	}
//	// ...emit receives a ReadableConnectResponse item
//	err := s.Publish(transport.PublishRequest{Topic: "sensor/device/edge-01", Payload: body, QoS: 1})
package mqtt
