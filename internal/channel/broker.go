package channel

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// =============================================================================
// Session callbacks
// =============================================================================

// onSessionItem queues a session outcome on channel h. Inbound messages
// beyond MaxPendingMessages are released to the broker and reported as lost.
func (p *Provider) onSessionItem(h transport.Handle, item mqtt.Item) {
	if item.Kind == transport.ReadableMessage {
		p.mu.Lock()
		ch, ok := p.channels[h]
		full := ok && ch.messages >= p.cfg.MaxPendingMessages
		var session Session
		if ok {
			session = ch.session
		}
		p.mu.Unlock()

		if !ok {
			return
		}
		if full {
			if err := session.Ack(item.Message.CorrelationID); err != nil {
				p.logger.Debug("releasing overflow message", "handle", uint32(h), "error", err)
			}
			p.logger.Warn("inbound queue full, message dropped",
				"handle", uint32(h), "topic", item.Message.Topic, "pending", p.cfg.MaxPendingMessages)
			item = mqtt.Item{
				Kind: transport.ReadableMessageLost,
				Lost: transport.LostMessage{
					Reason:     transport.LostQueueFull,
					Topic:      item.Message.Topic,
					MessageLen: len(item.Message.Payload),
				},
			}
		}
	}
	p.push(h, readable{kind: item.Kind, item: item})
}

// onSessionLost reports an unexpected drop of channel h's connection.
func (p *Provider) onSessionLost(h transport.Handle, err error) {
	p.mu.Lock()
	ch, ok := p.channels[h]
	var tag transport.Tag
	if ok {
		tag = ch.tag
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	p.logger.Info("broker connection lost", "handle", uint32(h), "error", err)
	p.notify(transport.Notification{Tag: tag, Type: transport.ChannelNotConnected})
}

// =============================================================================
// Broker requests
// =============================================================================

// session returns the broker session of channel h.
func (p *Provider) session(h transport.Handle) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.lookup(h, transport.ChannelMQTT)
	if err != nil {
		return nil, err
	}
	return ch.session, nil
}

// sessionErr maps session errors onto the transport contract.
func sessionErr(h transport.Handle, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mqtt.ErrClosed):
		return fmt.Errorf("%w: channel %d", transport.ErrUnknownHandle, h)
	case errors.Is(err, mqtt.ErrAlreadyConnected):
		return fmt.Errorf("%w: %w", transport.ErrRequestPending, err)
	default:
		return err
	}
}

// RequestConnect implements transport.Broker.
func (p *Provider) RequestConnect(h transport.Handle, req transport.ConnectRequest) error {
	s, err := p.session(h)
	if err != nil {
		return err
	}
	return sessionErr(h, s.Connect(req))
}

// RequestSubscribe implements transport.Broker.
func (p *Provider) RequestSubscribe(h transport.Handle, req transport.SubscribeRequest) error {
	s, err := p.session(h)
	if err != nil {
		return err
	}
	return sessionErr(h, s.Subscribe(req))
}

// RequestUnsubscribe implements transport.Broker.
func (p *Provider) RequestUnsubscribe(h transport.Handle, req transport.UnsubscribeRequest) error {
	s, err := p.session(h)
	if err != nil {
		return err
	}
	return sessionErr(h, s.Unsubscribe(req))
}

// RequestPublish implements transport.Broker.
func (p *Provider) RequestPublish(h transport.Handle, req transport.PublishRequest) error {
	s, err := p.session(h)
	if err != nil {
		return err
	}
	return sessionErr(h, s.Publish(req))
}

// RequestDisconnect implements transport.Broker.
func (p *Provider) RequestDisconnect(h transport.Handle) error {
	s, err := p.session(h)
	if err != nil {
		return err
	}
	return sessionErr(h, s.Disconnect())
}

// AcknowledgeMessage implements transport.Broker.
func (p *Provider) AcknowledgeMessage(h transport.Handle, correlationID uint32) error {
	s, err := p.session(h)
	if err != nil {
		return err
	}
	return sessionErr(h, s.Ack(correlationID))
}

// =============================================================================
// Readable data
// =============================================================================

// NextReadableKind implements transport.Broker.
func (p *Provider) NextReadableKind(h transport.Handle) (transport.ReadableKind, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.lookup(h, transport.ChannelMQTT)
	if errors.Is(err, transport.ErrWrongChannelKind) {
		ch, err = p.lookup(h, transport.ChannelConfigFetch)
	}
	if err != nil {
		return transport.ReadableNone, err
	}
	if len(ch.fifo) == 0 {
		return transport.ReadableNone, nil
	}
	return ch.fifo[0].kind, nil
}

// ReadConnectResponse implements transport.Broker.
func (p *Provider) ReadConnectResponse(h transport.Handle) (transport.ConnectResponse, error) {
	r, _, err := p.pop(h, transport.ChannelMQTT, transport.ReadableConnectResponse)
	return r.item.Connect, err
}

// ReadSubscribeResponse implements transport.Broker.
func (p *Provider) ReadSubscribeResponse(h transport.Handle) (transport.SubscribeResponse, error) {
	r, _, err := p.pop(h, transport.ChannelMQTT, transport.ReadableSubscribeResponse)
	return r.item.Subscribe, err
}

// ReadUnsubscribeResponse implements transport.Broker.
func (p *Provider) ReadUnsubscribeResponse(h transport.Handle) (transport.UnsubscribeResponse, error) {
	r, _, err := p.pop(h, transport.ChannelMQTT, transport.ReadableUnsubscribeResponse)
	return r.item.Unsubscribe, err
}

// ReadPublishResponse implements transport.Broker.
func (p *Provider) ReadPublishResponse(h transport.Handle) (transport.PublishResponse, error) {
	r, _, err := p.pop(h, transport.ChannelMQTT, transport.ReadablePublishResponse)
	return r.item.Publish, err
}

// ReadDisconnectResponse implements transport.Broker.
func (p *Provider) ReadDisconnectResponse(h transport.Handle) (transport.DisconnectResponse, error) {
	r, _, err := p.pop(h, transport.ChannelMQTT, transport.ReadableDisconnectResponse)
	return r.item.Disconnect, err
}

// ReceiveMessage implements transport.Broker. The payload is copied into
// the channel's receive buffer; a message that does not fit stays queued.
func (p *Provider) ReceiveMessage(h transport.Handle) (transport.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.lookup(h, transport.ChannelMQTT)
	if err != nil {
		return transport.Message{}, err
	}
	if len(ch.fifo) == 0 {
		return transport.Message{}, transport.ErrNothingReadable
	}
	head := ch.fifo[0]
	if head.kind != transport.ReadableMessage {
		return transport.Message{}, fmt.Errorf("%w: head is %s, not %s",
			transport.ErrWrongReadable, head.kind, transport.ReadableMessage)
	}
	msg := head.item.Message
	if len(msg.Payload) > len(ch.buffers.Receive) {
		return transport.Message{}, fmt.Errorf("%w: message of %d bytes, buffer of %d",
			transport.ErrBufferTooSmall, len(msg.Payload), len(ch.buffers.Receive))
	}

	n := copy(ch.buffers.Receive, msg.Payload)
	msg.Payload = ch.buffers.Receive[:n]

	ch.fifo[0] = readable{}
	ch.fifo = ch.fifo[1:]
	ch.messages--
	return msg, nil
}

// ReceiveLostMessageInfo implements transport.Broker.
func (p *Provider) ReceiveLostMessageInfo(h transport.Handle) (transport.LostMessage, error) {
	r, _, err := p.pop(h, transport.ChannelMQTT, transport.ReadableMessageLost)
	return r.item.Lost, err
}
