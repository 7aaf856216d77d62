package work

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-edge/internal/configbridge"
	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// handle processes one event to completion. Follow-up events produced while
// handling (ConfigObtained after a readable response, for example) are
// dispatched inline so they can never be lost to a full queue.
func (o *Orchestrator) handle(ev Event) {
	o.metrics.EventProcessed(ev.Kind.String())
	o.counters.processed++
	o.logger.Debug("handling event", "event", ev.String(), "phase", o.state.Phase.String())

	switch ev.Kind {
	case KindConnectNetwork:
		o.onConnectNetwork()
	case KindNetworkStatusChanged:
		o.onNetworkStatusChanged()
	case KindNetworkConnected:
		o.onNetworkConnected()
	case KindNetworkDisconnected:
		o.onNetworkDisconnected()

	case KindConfigReadable:
		o.onConfigReadable()
	case KindConfigObtained:
		o.onConfigObtained()
	case KindConfigFailed:
		o.onConfigFailed()
	case KindConfigChannelNotConnected:
		o.onConfigChannelNotConnected()

	case KindBrokerReadable:
		o.onBrokerReadable()
	case KindBrokerChannelNotConnected:
		o.onBrokerChannelNotConnected()
	case KindBrokerConnected:
		o.onBrokerConnected()
	case KindBrokerConnectFailed:
		o.onBrokerConnectFailed()
	case KindBrokerSubscribeSucceeded:
		o.onSubscribeSucceeded()
	case KindBrokerSubscribeFailed:
		o.onSubscribeFailed()
	case KindBrokerUnsubscribeSucceeded, KindBrokerUnsubscribeFailed:
		o.onUnsubscribed(ev.Kind)
	case KindBrokerMessageReceived:
		o.onMessageReceived()
	case KindBrokerMessageLost:
		o.onMessageLost()
	case KindBrokerPublishSucceeded:
		o.onPublishDone(nil)
	case KindBrokerPublishFailed:
		o.onPublishFailed()
	case KindBrokerPublishRateLimited:
		o.onPublishRateLimited()
	case KindBrokerAckFailed:
		o.onAckFailed()
	case KindBrokerDisconnected:
		o.onBrokerDisconnected()
	case KindBrokerDroppedConnection:
		o.onBrokerDropped()

	case KindApplicationProducedMessage:
		o.publishQueued()
	case KindApplicationConsumedMessage:
		o.onConsumed(ev.CorrelationID)

	case KindRetry:
		o.onRetry()
	case KindReconnectTimer:
		o.onReconnectTimer(ev)
	case KindWatchdogTimeout:
		o.onWatchdog(ev)
	case KindShutdown:
		o.onShutdown()

	default:
		o.logger.Warn("unknown event", "event", ev.String())
	}

	o.publishStatus()
}

func (o *Orchestrator) stale(ev Kind) {
	o.logger.Debug("ignoring stale event", "event", ev.String(), "phase", o.state.Phase.String())
}

// =============================================================================
// Network
// =============================================================================

func (o *Orchestrator) onConnectNetwork() {
	if o.shuttingDown {
		return
	}
	if o.netHandle == 0 {
		h, err := o.provider.RequestNetwork(transport.TagNetwork)
		if err != nil {
			o.fail("network request failed", err)
			o.scheduleRetry(retryNetwork)
			return
		}
		o.netHandle = h
		o.logger.Info("network requested", "handle", uint32(h))
	}
	if !o.state.NetworkOn {
		o.setPhase(PhaseAcquiringNetwork)
	}
	o.onNetworkStatusChanged()
}

func (o *Orchestrator) onNetworkStatusChanged() {
	if o.netHandle == 0 {
		o.stale(KindNetworkStatusChanged)
		return
	}
	status, err := o.provider.NetworkStatus(o.netHandle)
	if err != nil {
		o.logger.Warn("reading network status failed", "error", err)
		return
	}
	switch {
	case status == transport.NetworkConnected && !o.state.NetworkOn:
		o.handle(Event{Kind: KindNetworkConnected})
	case status != transport.NetworkConnected && o.state.NetworkOn:
		o.handle(Event{Kind: KindNetworkDisconnected})
	}
}

func (o *Orchestrator) onNetworkConnected() {
	if o.state.NetworkOn {
		o.logger.Debug("network already connected")
		return
	}
	o.state.NetworkOn = true
	o.logger.Info("network connected")

	switch {
	case o.shuttingDown:
	case o.parked:
		o.setPhase(PhaseIdle)
	case o.sessionReusable():
		o.connectBroker()
	default:
		o.fetchConfig()
	}
}

func (o *Orchestrator) onNetworkDisconnected() {
	wasOn := o.state.NetworkOn
	o.state.NetworkOn = false
	if wasOn {
		o.logger.Warn("network lost", "phase", o.state.Phase.String())
	}

	// Broker and config intent die with the link; credentials survive.
	o.watchdog.cancel()
	o.retry.cancel()
	o.state.ConfigPending = false
	o.closeConfig()
	o.teardownBroker()
	o.notifyDisconnected()

	if o.shuttingDown {
		o.finishShutdown()
		return
	}
	o.setPhase(PhaseAcquiringNetwork)
}

// =============================================================================
// Configuration
// =============================================================================

func (o *Orchestrator) fetchConfig() {
	if o.shuttingDown || !o.state.NetworkOn {
		return
	}
	if o.configHandle != 0 {
		o.logger.Warn("configuration fetch already outstanding")
		return
	}
	o.teardownBroker()

	h, err := o.provider.OpenChannel(transport.ChannelParams{
		Kind:    transport.ChannelConfigFetch,
		Tag:     transport.TagConfig,
		Network: o.netHandle,
		Buffers: o.buffers,
	})
	if err != nil {
		o.fail("opening config channel failed", err)
		o.scheduleRetry(retryFetch)
		return
	}
	o.configHandle = h

	keys := o.bridge.Keys()
	if err := o.provider.SendConfigFetchRequest(h, keys); err != nil {
		o.fail("config fetch request failed", err)
		o.closeConfig()
		o.scheduleRetry(retryFetch)
		return
	}

	o.state.ConfigPending = true
	o.setPhase(PhaseFetchingConfig)
	o.armWatchdog()
	o.logger.Info("configuration requested", "keys", len(keys))
}

func (o *Orchestrator) onConfigReadable() {
	if o.configHandle == 0 || !o.state.ConfigPending {
		o.stale(KindConfigReadable)
		return
	}

	creds, err := o.readConfig()
	if errors.Is(err, ErrStoreUnavailable) {
		o.watchdog.cancel()
		o.state.ConfigPending = false
		o.closeConfig()
		o.fail("configuration store unavailable", err)
		o.scheduleRetry(retryFetch)
		return
	}
	if err != nil {
		o.fail("configuration rejected", err)
		o.handle(Event{Kind: KindConfigFailed})
		return
	}

	o.session = creds
	o.handle(Event{Kind: KindConfigObtained})
}

// readConfig reads the fetch response and every item, then decodes them.
// Items alias the receive buffer, so each is copied before the next read.
func (o *Orchestrator) readConfig() (*configbridge.Credentials, error) {
	resp, err := o.provider.ReadConfigFetchResponse(o.configHandle)
	if err != nil {
		return nil, fmt.Errorf("reading config response: %w", err)
	}
	switch resp.Result {
	case transport.ConfigFetchOK:
	case transport.ConfigFetchUnavailable:
		return nil, ErrStoreUnavailable
	default:
		return nil, fmt.Errorf("config fetch result %s", resp.Result)
	}

	keys := o.bridge.Keys()
	if resp.NumItems != len(keys) {
		return nil, fmt.Errorf("config fetch returned %d items, want %d", resp.NumItems, len(keys))
	}

	items := make([][]byte, len(keys))
	for i, key := range keys {
		item, err := o.provider.ReadConfigItem(o.configHandle, i)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key.Key, err)
		}
		if item.Result != transport.ConfigKeyOK {
			return nil, fmt.Errorf("%s: %s", key.Key, item.Result)
		}
		items[i] = append([]byte(nil), item.Data...)
	}
	return o.bridge.Decode(items)
}

func (o *Orchestrator) onConfigObtained() {
	o.watchdog.cancel()
	o.state.ConfigPending = false
	o.closeConfig()

	if o.session == nil {
		o.fail("configuration obtained without credentials", errors.New("no decoded credentials"))
		o.handle(Event{Kind: KindConfigFailed})
		return
	}
	o.logger.Info("configuration obtained",
		"broker", o.session.Address(),
		"auth", string(o.session.Method),
		"client_id", o.session.ClientID,
	)
	o.connectBroker()
}

func (o *Orchestrator) onConfigFailed() {
	o.watchdog.cancel()
	o.state.ConfigPending = false
	o.closeConfig()
	o.logger.Error("configuration fetch failed, waiting for retry", "last_error", o.counters.lastError)
	o.park()
}

func (o *Orchestrator) onConfigChannelNotConnected() {
	if o.configHandle == 0 || !o.state.ConfigPending {
		o.stale(KindConfigChannelNotConnected)
		return
	}
	o.watchdog.cancel()
	o.state.ConfigPending = false
	o.closeConfig()
	o.fail("config channel not connected", transport.ErrNotConnected)
	o.scheduleRetry(retryFetch)
}

func (o *Orchestrator) closeConfig() {
	if o.configHandle == 0 {
		return
	}
	if err := o.provider.CloseChannel(o.configHandle); err != nil {
		o.logger.Warn("closing config channel failed", "error", err)
	}
	o.configHandle = 0
}

// =============================================================================
// Broker session
// =============================================================================

func (o *Orchestrator) connectBroker() {
	if o.shuttingDown || !o.state.NetworkOn {
		return
	}
	if o.session == nil || o.session.Expired(o.now()) {
		o.logger.Info("broker credentials missing or expired, fetching configuration")
		o.fetchConfig()
		return
	}
	if o.brokerHandle != 0 {
		o.logger.Warn("broker session already outstanding")
		return
	}
	o.closeConfig()

	h, err := o.provider.OpenChannel(transport.ChannelParams{
		Kind:    transport.ChannelMQTT,
		Tag:     transport.TagBroker,
		Network: o.netHandle,
		Buffers: o.buffers,
	})
	if err != nil {
		o.fail("opening broker channel failed", err)
		o.scheduleRetry(retryConnect)
		return
	}
	o.brokerHandle = h

	req := o.session.ConnectRequest(o.cfg.KeepAlive, o.cfg.CleanStart)
	if err := o.provider.RequestConnect(h, req); err != nil {
		o.fail("broker connect request failed", err)
		o.teardownBroker()
		o.scheduleRetry(o.connectFailureAction())
		return
	}

	o.connecting = true
	o.setPhase(PhaseConnectingBroker)
	o.armWatchdog()
	o.logger.Info("broker connect requested",
		"broker", o.session.Address(),
		"client_id", req.ClientID,
		"tls", req.TLS != nil,
	)
}

func (o *Orchestrator) onBrokerConnected() {
	if !o.connecting || o.brokerHandle == 0 {
		o.stale(KindBrokerConnected)
		return
	}
	o.connecting = false
	o.watchdog.cancel()
	o.state.BrokerActive = true
	o.logger.Info("broker connected", "broker", o.session.Address())

	req := transport.SubscribeRequest{
		CorrelationID: o.nextID(),
		Subscriptions: []transport.Subscription{{Topic: o.cfg.CommandTopic, QoS: o.cfg.QoS}},
	}
	o.setPhase(PhaseSubscribing)
	if err := o.provider.RequestSubscribe(o.brokerHandle, req); err != nil {
		o.fail("subscribe request failed", err)
		o.handle(Event{Kind: KindBrokerSubscribeFailed})
		return
	}
	o.armWatchdog()
}

func (o *Orchestrator) onBrokerConnectFailed() {
	if !o.connecting {
		o.stale(KindBrokerConnectFailed)
		return
	}
	o.watchdog.cancel()
	o.teardownBroker()
	o.scheduleRetry(o.connectFailureAction())
}

func (o *Orchestrator) onSubscribeSucceeded() {
	if o.state.Phase != PhaseSubscribing {
		o.stale(KindBrokerSubscribeSucceeded)
		return
	}
	o.watchdog.cancel()
	o.setPhase(PhaseReady)
	o.resetRetries()
	o.logger.Info("broker session ready", "topic", o.cfg.CommandTopic)
	o.notifyConnected()
}

func (o *Orchestrator) onSubscribeFailed() {
	if o.state.Phase != PhaseSubscribing {
		o.stale(KindBrokerSubscribeFailed)
		return
	}
	o.logger.Error("subscription refused", "topic", o.cfg.CommandTopic)
	o.requestDisconnect()
}

func (o *Orchestrator) onUnsubscribed(kind Kind) {
	if !o.shuttingDown {
		o.stale(kind)
		return
	}
	if kind == KindBrokerUnsubscribeFailed {
		o.logger.Warn("unsubscribe refused, disconnecting anyway", "topic", o.cfg.CommandTopic)
	}
	o.requestDisconnect()
}

// requestDisconnect starts a client-initiated disconnect. A session that
// never got its connect acknowledgement, or whose disconnect request is
// refused, is torn down on the spot.
func (o *Orchestrator) requestDisconnect() {
	if o.brokerHandle == 0 || o.disconnecting {
		return
	}
	o.watchdog.cancel()

	if !o.state.BrokerActive {
		o.handle(Event{Kind: KindBrokerDisconnected})
		return
	}
	if err := o.provider.RequestDisconnect(o.brokerHandle); err != nil {
		o.fail("disconnect request failed", err)
		o.handle(Event{Kind: KindBrokerDisconnected})
		return
	}
	o.disconnecting = true
	o.setPhase(PhaseDisconnecting)
	o.armWatchdog()
}

func (o *Orchestrator) onBrokerDisconnected() {
	if o.brokerHandle == 0 {
		o.stale(KindBrokerDisconnected)
		return
	}
	o.watchdog.cancel()
	o.teardownBroker()
	o.notifyDisconnected()
	o.logger.Info("broker disconnected")
	o.afterBrokerLoss()
}

func (o *Orchestrator) onBrokerDropped() {
	if o.brokerHandle == 0 {
		o.stale(KindBrokerDroppedConnection)
		return
	}
	o.watchdog.cancel()
	o.teardownBroker()
	o.notifyDisconnected()
	o.fail("broker dropped the connection", transport.ErrNotConnected)
	o.afterBrokerLoss()
}

// onBrokerChannelNotConnected tells a server-initiated drop apart from the
// end of a client disconnect or a failed handshake using the session flags.
func (o *Orchestrator) onBrokerChannelNotConnected() {
	switch {
	case o.brokerHandle == 0:
		o.stale(KindBrokerChannelNotConnected)
	case o.disconnecting:
		o.handle(Event{Kind: KindBrokerDisconnected})
	case o.connecting:
		o.handle(Event{Kind: KindBrokerConnectFailed})
	default:
		o.handle(Event{Kind: KindBrokerDroppedConnection})
	}
}

func (o *Orchestrator) afterBrokerLoss() {
	switch {
	case o.shuttingDown:
		o.finishShutdown()
	case !o.state.NetworkOn:
		o.setPhase(PhaseAcquiringNetwork)
	case o.cfg.RefetchOnReconnect:
		o.scheduleRetry(retryFetch)
	default:
		o.scheduleRetry(retryConnect)
	}
}

// teardownBroker closes the broker channel and returns every session flag
// to its baseline. Publishes still awaiting a response are failed.
func (o *Orchestrator) teardownBroker() {
	if o.brokerHandle != 0 {
		if err := o.provider.CloseChannel(o.brokerHandle); err != nil {
			o.logger.Warn("closing broker channel failed", "error", err)
		}
		o.brokerHandle = 0
	}
	o.state.BrokerActive = false
	o.connecting = false
	o.disconnecting = false
	o.releaseSlot()

	for id := range o.inflight {
		delete(o.inflight, id)
		o.metrics.PublishCompleted(false)
		o.consumer.PublishDone(ErrNotReady)
	}
}

func (o *Orchestrator) teardownAll() {
	o.watchdog.cancel()
	o.retry.cancel()
	o.state.ConfigPending = false
	o.closeConfig()
	o.teardownBroker()
}

// =============================================================================
// Readable demultiplexing
// =============================================================================

func (o *Orchestrator) onBrokerReadable() {
	if o.brokerHandle == 0 {
		o.stale(KindBrokerReadable)
		return
	}
	h := o.brokerHandle

	kind, err := o.provider.NextReadableKind(h)
	if err != nil {
		o.logger.Warn("peeking broker channel failed", "error", err)
		return
	}

	switch kind {
	case transport.ReadableNone:

	case transport.ReadableConnectResponse:
		resp, err := o.provider.ReadConnectResponse(h)
		if err != nil {
			o.protocolFault("connect response", err)
			return
		}
		if !o.connecting {
			o.stale(KindBrokerConnected)
			return
		}
		if resp.State == transport.RequestCompleted && resp.ReasonCode == transport.ReasonSuccess {
			o.handle(Event{Kind: KindBrokerConnected})
			return
		}
		o.fail("broker refused connection", responseError(resp.State, resp.ReasonCode))
		o.handle(Event{Kind: KindBrokerConnectFailed})

	case transport.ReadableSubscribeResponse:
		resp, err := o.provider.ReadSubscribeResponse(h)
		if err != nil {
			o.protocolFault("subscribe response", err)
			return
		}
		if subscribeGranted(resp, 1) {
			o.handle(Event{Kind: KindBrokerSubscribeSucceeded})
			return
		}
		o.fail("subscribe response", fmt.Errorf("state %s, reason codes %v", resp.State, resp.ReasonCodes))
		o.handle(Event{Kind: KindBrokerSubscribeFailed})

	case transport.ReadableUnsubscribeResponse:
		resp, err := o.provider.ReadUnsubscribeResponse(h)
		if err != nil {
			o.protocolFault("unsubscribe response", err)
			return
		}
		if resp.State == transport.RequestCompleted {
			o.handle(Event{Kind: KindBrokerUnsubscribeSucceeded})
		} else {
			o.handle(Event{Kind: KindBrokerUnsubscribeFailed})
		}

	case transport.ReadablePublishResponse:
		resp, err := o.provider.ReadPublishResponse(h)
		if err != nil {
			o.protocolFault("publish response", err)
			return
		}
		if _, ok := o.inflight[resp.CorrelationID]; !ok {
			o.logger.Debug("publish response for unknown request", "correlation_id", resp.CorrelationID)
			return
		}
		delete(o.inflight, resp.CorrelationID)
		if resp.State == transport.RequestCompleted && resp.ReasonCode < transport.ReasonUnspecified {
			o.handle(Event{Kind: KindBrokerPublishSucceeded})
			return
		}
		o.fail("publish rejected", responseError(resp.State, resp.ReasonCode))
		o.handle(Event{Kind: KindBrokerPublishFailed})

	case transport.ReadableDisconnectResponse:
		resp, err := o.provider.ReadDisconnectResponse(h)
		if err != nil {
			o.logger.Warn("reading disconnect response failed", "error", err)
		} else if resp.State != transport.RequestCompleted {
			o.logger.Warn("disconnect completed abnormally", "state", resp.State.String())
		}
		o.handle(Event{Kind: KindBrokerDisconnected})

	case transport.ReadableMessage:
		o.handle(Event{Kind: KindBrokerMessageReceived})

	case transport.ReadableMessageLost:
		info, err := o.provider.ReceiveLostMessageInfo(h)
		if err != nil {
			o.protocolFault("lost message info", err)
			return
		}
		o.lost = info
		o.handle(Event{Kind: KindBrokerMessageLost})

	default:
		o.logger.Warn("unexpected readable kind on broker channel", "kind", kind.String())
	}
}

// protocolFault severs a session whose responses cannot be read.
func (o *Orchestrator) protocolFault(what string, err error) {
	o.fail("reading "+what+" failed", err)
	o.requestDisconnect()
}

func (o *Orchestrator) onMessageLost() {
	o.metrics.MessageLost()
	o.logger.Warn("inbound message lost",
		"reason", o.lost.Reason.String(),
		"topic", o.lost.Topic,
		"size", o.lost.MessageLen,
	)
}

func subscribeGranted(resp transport.SubscribeResponse, want int) bool {
	if resp.State != transport.RequestCompleted || len(resp.ReasonCodes) != want {
		return false
	}
	for _, code := range resp.ReasonCodes {
		if code >= transport.ReasonUnspecified {
			return false
		}
	}
	return true
}

func responseError(state transport.RequestState, reason uint32) error {
	return fmt.Errorf("state %s, reason code 0x%02x", state, reason)
}

// =============================================================================
// Shutdown
// =============================================================================

func (o *Orchestrator) onShutdown() {
	if o.shuttingDown {
		return
	}
	o.shuttingDown = true
	o.retry.cancel()
	o.watchdog.cancel()
	o.state.ConfigPending = false
	o.closeConfig()

	if o.brokerHandle == 0 {
		o.finishShutdown()
		return
	}
	if o.state.Phase == PhaseReady {
		req := transport.UnsubscribeRequest{CorrelationID: o.nextID(), Topics: []string{o.cfg.CommandTopic}}
		if err := o.provider.RequestUnsubscribe(o.brokerHandle, req); err == nil {
			o.setPhase(PhaseDisconnecting)
			o.armWatchdog()
			return
		}
	}
	o.requestDisconnect()
}

// finishShutdown releases the network and marks the orchestrator stopped.
func (o *Orchestrator) finishShutdown() {
	o.teardownAll()
	o.notifyDisconnected()
	if o.netHandle != 0 {
		if err := o.provider.ReleaseNetwork(o.netHandle); err != nil {
			o.logger.Warn("releasing network failed", "error", err)
		}
		o.netHandle = 0
	}
	o.state.NetworkOn = false
	o.setPhase(PhaseIdle)
	o.stopOnce.Do(func() { close(o.stopped) })
}

// fail logs err with the current phase and keeps it for status reporting.
func (o *Orchestrator) fail(msg string, err error) {
	o.counters.lastError = fmt.Sprintf("%s: %v", msg, err)
	o.logger.Error(msg, "phase", o.state.Phase.String(), "error", err)
}
