package work

import (
	"errors"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// resyncLimit bounds the broker entries read on one poll tick.
const resyncLimit = 64

// Inbound flow control: one message is handed to the consumer at a time.
// A second message arriving while the slot is busy is left in the
// transport and marked pending; it is received only after the first has
// been acknowledged.

func (o *Orchestrator) onMessageReceived() {
	if o.brokerHandle == 0 || !o.state.BrokerActive {
		o.stale(KindBrokerMessageReceived)
		return
	}
	if o.state.AppBusy {
		if o.state.MessagePending {
			// Everything behind the pending message is stuck in the FIFO
			// too; remember the notification so it can be replayed.
			o.deferredKicks++
		} else {
			o.state.MessagePending = true
		}
		o.logger.Debug("deferring inbound message", "in_flight", o.state.CorrelationID)
		return
	}
	o.deliverNext()
}

// deliverNext receives the message at the head of the FIFO and hands it to
// the consumer. A receive failure severs the session.
func (o *Orchestrator) deliverNext() {
	msg, err := o.provider.ReceiveMessage(o.brokerHandle)
	if err != nil {
		o.releaseSlot()
		o.fail("receiving message failed", err)
		o.requestDisconnect()
		return
	}

	o.state.AppBusy = true
	o.state.CorrelationID = msg.CorrelationID
	o.counters.delivered++
	o.metrics.MessageDelivered()
	o.logger.Debug("delivering message",
		"topic", msg.Topic,
		"correlation_id", msg.CorrelationID,
		"size", len(msg.Payload),
	)
	o.consumer.Deliver(msg)
}

// onConsumed acknowledges the message in the slot. A release naming any
// other correlation id belongs to a message whose session was torn down
// while the consumer held it; the slot has moved on and it is ignored.
func (o *Orchestrator) onConsumed(id uint32) {
	if !o.state.AppBusy || id != o.state.CorrelationID {
		o.logger.Debug("ignoring release for message not in flight",
			"correlation_id", id,
			"in_flight", o.state.CorrelationID,
		)
		return
	}
	if o.brokerHandle == 0 {
		o.releaseSlot()
		return
	}

	if err := o.provider.AcknowledgeMessage(o.brokerHandle, o.state.CorrelationID); err != nil {
		o.fail("acknowledging message failed", err)
		o.handle(Event{Kind: KindBrokerAckFailed})
		return
	}

	if o.state.MessagePending {
		o.state.MessagePending = false
		o.deliverNext()
	} else {
		o.state.AppBusy = false
		o.state.CorrelationID = 0
	}
	o.replayDeferred()
}

// replayDeferred re-runs the readable notifications absorbed while the slot
// was held. The counter is taken first because replays may defer again.
func (o *Orchestrator) replayDeferred() {
	n := o.deferredKicks
	o.deferredKicks = 0
	for i := 0; i < n && o.brokerHandle != 0; i++ {
		o.handle(Event{Kind: KindBrokerReadable})
	}
}

// resync reads what notifications lost to a full queue left behind in
// the transport: a network status change, a pending config response, and
// broker FIFO entries. The broker FIFO is read until it is empty or its
// head is a message the slot cannot take yet.
func (o *Orchestrator) resync() {
	if o.netHandle != 0 {
		o.onNetworkStatusChanged()
	}

	if o.configHandle != 0 && o.state.ConfigPending {
		kind, err := o.provider.NextReadableKind(o.configHandle)
		if err == nil && kind == transport.ReadableConfigResponse {
			o.logger.Debug("config response waiting without notification")
			o.handle(Event{Kind: KindConfigReadable})
		}
	}

	for i := 0; i < resyncLimit; i++ {
		if o.brokerHandle == 0 || o.state.MessagePending {
			return
		}
		kind, err := o.provider.NextReadableKind(o.brokerHandle)
		if err != nil || kind == transport.ReadableNone {
			return
		}
		o.handle(Event{Kind: KindBrokerReadable})
	}
}

func (o *Orchestrator) onAckFailed() {
	o.releaseSlot()
	o.requestDisconnect()
}

func (o *Orchestrator) releaseSlot() {
	o.state.AppBusy = false
	o.state.MessagePending = false
	o.state.CorrelationID = 0
	o.deferredKicks = 0
}

// Outbound: every produced payload is published to the telemetry topic
// while the session is ready, otherwise it is failed with ErrNotReady.

func (o *Orchestrator) publishQueued() {
	for {
		payload, ok := o.outbox.pop()
		if !ok {
			return
		}
		if o.state.Phase != PhaseReady || o.brokerHandle == 0 {
			o.logger.Warn("broker session not ready, dropping payload",
				"phase", o.state.Phase.String(),
				"size", len(payload),
			)
			o.counters.publishFailed++
			o.metrics.PublishCompleted(false)
			o.consumer.PublishDone(ErrNotReady)
			continue
		}

		req := transport.PublishRequest{
			CorrelationID: o.nextID(),
			Topic:         o.cfg.TelemetryTopic,
			Payload:       payload,
			QoS:           o.cfg.QoS,
		}
		err := o.provider.RequestPublish(o.brokerHandle, req)
		switch {
		case err == nil:
			o.inflight[req.CorrelationID] = struct{}{}
		case errors.Is(err, transport.ErrRateLimited):
			o.handle(Event{Kind: KindBrokerPublishRateLimited})
		default:
			o.fail("publish request failed", err)
			o.handle(Event{Kind: KindBrokerPublishFailed})
		}
	}
}

func (o *Orchestrator) onPublishDone(err error) {
	if err != nil {
		o.counters.publishFailed++
	} else {
		o.counters.published++
	}
	o.metrics.PublishCompleted(err == nil)
	o.consumer.PublishDone(err)
}

func (o *Orchestrator) onPublishFailed() {
	o.onPublishDone(ErrPublishRejected)
	if o.state.Phase == PhaseReady {
		o.requestDisconnect()
	}
}

func (o *Orchestrator) onPublishRateLimited() {
	o.logger.Warn("publish rate limited", "topic", o.cfg.TelemetryTopic)
	o.onPublishDone(transport.ErrRateLimited)
}
