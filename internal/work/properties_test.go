package work

import (
	"math/rand"
	"testing"

	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

func TestProperty_PendingImpliesBusyUnderRandomEvents(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		h := newHarness(t, func(c *Config) { c.Reconnect.MaxAttempts = 5 })
		rng := rand.New(rand.NewSource(seed))

		h.provider.setNetwork(transport.NetworkConnected)
		h.send(KindConnectNetwork)

		for step := 0; step < 400; step++ {
			switch rng.Intn(12) {
			case 0:
				if rng.Intn(4) == 0 {
					h.provider.setNetwork(transport.NetworkConnecting)
				} else {
					h.provider.setNetwork(transport.NetworkConnected)
				}
				h.send(KindNetworkStatusChanged)
			case 1:
				if rng.Intn(5) == 0 {
					h.provider.scriptConfig("only-one-item")
				} else {
					h.provider.scriptConfig("broker.local", "secret")
				}
				h.send(KindConfigReadable)
			case 2:
				h.provider.push(readableItem{
					kind:    transport.ReadableConnectResponse,
					connect: transport.ConnectResponse{ReasonCode: uint32(rng.Intn(2)) * 0x87},
				})
				h.send(KindBrokerReadable)
			case 3:
				code := uint32(1)
				if rng.Intn(4) == 0 {
					code = 0x80
				}
				h.provider.push(readableItem{
					kind:      transport.ReadableSubscribeResponse,
					subscribe: transport.SubscribeResponse{ReasonCodes: []uint32{code}},
				})
				h.send(KindBrokerReadable)
			case 4, 5:
				h.provider.push(message(uint32(rng.Intn(1000)+1), "payload"))
				h.send(KindBrokerReadable)
			case 6:
				if rng.Intn(4) == 0 {
					h.release(uint32(rng.Intn(1000) + 1))
				} else {
					h.consume()
				}
			case 7:
				_ = h.o.Produce([]byte("reading"))
				h.drain()
			case 8:
				h.send(KindBrokerChannelNotConnected)
			case 9:
				h.provider.push(readableItem{kind: transport.ReadableDisconnectResponse})
				h.send(KindBrokerReadable)
			case 10:
				h.sched.fireLast()
				h.drain()
			case 11:
				h.send(KindRetry, KindConfigChannelNotConnected)
			}
		}
	}
}

func TestProperty_SingleOpenChannel(t *testing.T) {
	h := newHarness(t, nil)
	h.toReady()

	// Force every re-entry path; the fake records a violation whenever a
	// channel is opened while another is still open.
	h.send(KindBrokerDroppedConnection)
	h.provider.push(readableItem{kind: transport.ReadableConnectResponse, connect: transport.ConnectResponse{ReasonCode: 0x87}})
	h.send(KindBrokerReadable)
	h.provider.setNetwork(transport.NetworkConnecting)
	h.send(KindNetworkStatusChanged)
	h.provider.setNetwork(transport.NetworkConnected)
	h.send(KindNetworkStatusChanged)

	if n := h.provider.openCount(); n > 1 {
		t.Errorf("open channels = %d, want at most 1", n)
	}
}

func TestProperty_NetworkConnectedIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.send(KindConnectNetwork)
	if h.phase() != PhaseAcquiringNetwork {
		t.Fatalf("phase = %s, want acquiring_network", h.phase())
	}

	h.send(KindNetworkConnected, KindNetworkConnected)

	if got := len(h.provider.fetchKeys); got != 1 {
		t.Errorf("config fetches = %d, want 1", got)
	}
	if got := len(h.provider.opened); got != 1 {
		t.Errorf("channels opened = %d, want 1", got)
	}
	if h.phase() != PhaseFetchingConfig {
		t.Errorf("phase = %s, want fetching_config", h.phase())
	}
}

func TestProperty_OrderedHandshakeReachesReady(t *testing.T) {
	h := newHarness(t, nil)

	h.send(KindConnectNetwork, KindNetworkConnected)

	// ConfigObtained carries no payload; the decoded credentials normally
	// arrive with the preceding ConfigReadable.
	creds := testCredentials()
	h.o.session = &creds

	h.send(KindConfigObtained, KindBrokerConnected, KindBrokerSubscribeSucceeded)

	if h.phase() != PhaseReady {
		t.Fatalf("phase = %s, want ready", h.phase())
	}
	if connected, _, _, _ := h.consumer.counts(); connected != 1 {
		t.Errorf("Connected() calls = %d, want 1", connected)
	}
	if len(h.provider.connects) != 1 {
		t.Errorf("connect requests = %d, want 1", len(h.provider.connects))
	}
	if len(h.provider.subscribes) != 1 || h.provider.subscribes[0].Subscriptions[0].Topic != "command/device/dev-1" {
		t.Errorf("subscribes = %+v, want one on command/device/dev-1", h.provider.subscribes)
	}
}

func TestProperty_BackpressureDefersSecondMessage(t *testing.T) {
	h := newHarness(t, nil)
	h.toReady()
	callsBefore := len(h.provider.calls)

	h.provider.push(message(1, "first"), message(2, "second"))
	h.send(KindBrokerReadable, KindBrokerReadable)

	if h.provider.receives != 1 {
		t.Fatalf("receives before consume = %d, want 1", h.provider.receives)
	}
	if !h.o.state.AppBusy || !h.o.state.MessagePending {
		t.Fatalf("state = %+v, want busy with pending", h.o.state)
	}

	h.consume()

	calls := h.provider.calls[callsBefore:]
	want := []string{"receive", "ack_1", "receive"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}

	delivered := h.consumer.delivered
	if len(delivered) != 2 || string(delivered[1].Payload) != "second" {
		t.Fatalf("delivered = %+v, want first then second", delivered)
	}
	if h.o.state.CorrelationID != 2 || h.o.state.MessagePending {
		t.Errorf("state = %+v, want busy with id 2 and nothing pending", h.o.state)
	}

	h.consume()
	if h.o.state.AppBusy {
		t.Error("AppBusy still set after the last message was consumed")
	}
	if len(h.provider.acks) != 2 || h.provider.acks[1] != 2 {
		t.Errorf("acks = %v, want [1 2]", h.provider.acks)
	}
}

func TestProperty_RecoveryAfterDrop(t *testing.T) {
	t.Run("network still on", func(t *testing.T) {
		h := newHarness(t, nil)
		h.toReady()

		h.send(KindBrokerDroppedConnection)

		if got := len(h.provider.connects); got != 2 {
			t.Errorf("connect requests = %d, want 2 (one new)", got)
		}
		if h.phase() != PhaseConnectingBroker {
			t.Errorf("phase = %s, want connecting_broker", h.phase())
		}
		if _, disconnected, _, _ := h.consumer.counts(); disconnected != 1 {
			t.Errorf("Disconnected() calls = %d, want 1", disconnected)
		}
	})

	t.Run("network lost first", func(t *testing.T) {
		h := newHarness(t, nil)
		h.toReady()

		h.provider.setNetwork(transport.NetworkConnecting)
		h.send(KindNetworkStatusChanged, KindBrokerDroppedConnection)

		if got := len(h.provider.connects); got != 1 {
			t.Fatalf("connect requests while offline = %d, want 1", got)
		}
		if h.phase() != PhaseAcquiringNetwork {
			t.Fatalf("phase = %s, want acquiring_network", h.phase())
		}

		h.provider.setNetwork(transport.NetworkConnected)
		h.send(KindNetworkStatusChanged)

		if got := len(h.provider.connects); got != 2 {
			t.Errorf("connect requests after link returned = %d, want 2", got)
		}
		if got := len(h.provider.fetchKeys); got != 1 {
			t.Errorf("config fetches = %d, want 1 (credentials kept)", got)
		}
	})
}

func TestProperty_SubscribeFailureDisconnects(t *testing.T) {
	h := newHarness(t, nil)
	h.send(KindConnectNetwork, KindNetworkConnected)
	creds := testCredentials()
	h.o.session = &creds

	h.send(KindConfigObtained, KindBrokerConnected, KindBrokerSubscribeFailed)

	if h.provider.disconnects != 1 {
		t.Errorf("disconnect requests = %d, want 1", h.provider.disconnects)
	}
	if connected, _, _, _ := h.consumer.counts(); connected != 0 {
		t.Errorf("Connected() calls = %d, want 0", connected)
	}
	if h.phase() != PhaseDisconnecting {
		t.Errorf("phase = %s, want disconnecting", h.phase())
	}

	// The disconnect completes and the connect is retried.
	h.provider.push(readableItem{kind: transport.ReadableDisconnectResponse})
	h.send(KindBrokerReadable)
	if got := len(h.provider.connects); got != 2 {
		t.Errorf("connect requests = %d, want 2", got)
	}
}

func TestProperty_ProduceIssuesOnePublish(t *testing.T) {
	h := newHarness(t, nil)
	h.toReady()

	if err := h.o.Produce([]byte("X")); err != nil {
		t.Fatalf("Produce() error = %v", err)
	}
	h.drain()

	if len(h.provider.publishes) != 1 {
		t.Fatalf("publish requests = %d, want 1", len(h.provider.publishes))
	}
	pub := h.provider.publishes[0]
	if string(pub.Payload) != "X" {
		t.Errorf("payload = %q, want X", pub.Payload)
	}
	if pub.Topic != "sensor/device/dev-1" {
		t.Errorf("topic = %q, want sensor/device/dev-1", pub.Topic)
	}
}
