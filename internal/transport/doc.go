// Package transport defines the contract between the connectivity
// orchestrator and the channel provider that performs network attach,
// configuration fetches and broker sessions on its behalf.
//
// # Model
//
// The provider hands out opaque handles for a network reservation and for
// channels. A channel is one logical conversation: a configuration fetch or
// a broker session. Requests on a channel return immediately; their outcome
// is queued on the channel's readable FIFO and announced through the
// Notifier with the tag the channel was opened with.
//
//	Provider ──Notify(tag, ChannelDataReadable)──▶ demux ──▶ event queue
//	orchestrator ──NextReadableKind / Read*Response──▶ Provider
//
// Notifications for a given channel are delivered in the order the provider
// raised them. Nothing is promised across channels.
//
// # Buffers
//
// A single Buffers pair is lent to whichever channel is open. The receive
// buffer size bounds the largest inbound message or configuration item the
// provider will hand back; larger payloads are reported as lost or as
// ErrBufferTooSmall.
package transport
