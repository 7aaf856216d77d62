// Package channel implements transport.Provider on top of the device's real
// collaborators: the network monitor, a configuration store and paho MQTT
// sessions.
//
// # Handles
//
// Network reservations and channels share one handle space. Handles are
// never reused while the provider lives, so a stale handle held by the
// orchestrator fails with transport.ErrUnknownHandle instead of reaching a
// newer channel.
//
// # Readable FIFO
//
// Every channel owns a FIFO of readable items. A request completion, an
// inbound message or a lost-message report is appended and then announced
// with ChannelDataReadable on the channel's tag, one notification per item.
// Items for one channel are appended and announced in the order they were
// produced. CloseChannel drops the FIFO and silences the tag.
//
// Inbound messages are bounded: once MaxPendingMessages are queued, further
// messages are acknowledged to the broker and replaced by a lost-message
// item with reason LostQueueFull.
//
// # Configuration fetches
//
// A fetch runs on its own goroutine against the configured Store. A backend
// outage or a fetch timeout becomes a ConfigFetchUnavailable response, any
// other store error a ConfigFetchFailed one. Per-key failures are reported
// item by item.
//
// # Thread Safety
//
// All Provider methods are safe for concurrent use. The notifier is called
// from session, monitor and fetch goroutines without the provider lock held.
package channel
