package work

import "fmt"

// Kind is the tag of an orchestrator event. The set is closed; the state
// machine switches over every value.
type Kind int

const (
	KindConnectNetwork Kind = iota + 1
	KindNetworkStatusChanged
	KindNetworkConnected
	KindNetworkDisconnected

	KindConfigReadable
	KindConfigObtained
	KindConfigFailed
	KindConfigChannelNotConnected

	KindBrokerReadable
	KindBrokerChannelNotConnected
	KindBrokerConnected
	KindBrokerConnectFailed
	KindBrokerSubscribeSucceeded
	KindBrokerSubscribeFailed
	KindBrokerUnsubscribeSucceeded
	KindBrokerUnsubscribeFailed
	KindBrokerMessageReceived
	KindBrokerMessageLost
	KindBrokerPublishSucceeded
	KindBrokerPublishFailed
	KindBrokerPublishRateLimited
	KindBrokerAckFailed
	KindBrokerDisconnected
	KindBrokerDroppedConnection

	KindApplicationProducedMessage
	KindApplicationConsumedMessage

	KindRetry
	KindReconnectTimer
	KindWatchdogTimeout
	KindShutdown
)

var kindNames = map[Kind]string{
	KindConnectNetwork:             "connect_network",
	KindNetworkStatusChanged:       "network_status_changed",
	KindNetworkConnected:           "network_connected",
	KindNetworkDisconnected:        "network_disconnected",
	KindConfigReadable:             "config_readable",
	KindConfigObtained:             "config_obtained",
	KindConfigFailed:               "config_failed",
	KindConfigChannelNotConnected:  "config_channel_not_connected",
	KindBrokerReadable:             "broker_readable",
	KindBrokerChannelNotConnected:  "broker_channel_not_connected",
	KindBrokerConnected:            "broker_connected",
	KindBrokerConnectFailed:        "broker_connect_failed",
	KindBrokerSubscribeSucceeded:   "broker_subscribe_succeeded",
	KindBrokerSubscribeFailed:      "broker_subscribe_failed",
	KindBrokerUnsubscribeSucceeded: "broker_unsubscribe_succeeded",
	KindBrokerUnsubscribeFailed:    "broker_unsubscribe_failed",
	KindBrokerMessageReceived:      "broker_message_received",
	KindBrokerMessageLost:          "broker_message_lost",
	KindBrokerPublishSucceeded:     "broker_publish_succeeded",
	KindBrokerPublishFailed:        "broker_publish_failed",
	KindBrokerPublishRateLimited:   "broker_publish_rate_limited",
	KindBrokerAckFailed:            "broker_ack_failed",
	KindBrokerDisconnected:         "broker_disconnected",
	KindBrokerDroppedConnection:    "broker_dropped_connection",
	KindApplicationProducedMessage: "application_produced_message",
	KindApplicationConsumedMessage: "application_consumed_message",
	KindRetry:                      "retry",
	KindReconnectTimer:             "reconnect_timer",
	KindWatchdogTimeout:            "watchdog_timeout",
	KindShutdown:                   "shutdown",
}

// String returns the snake_case event name used in logs and metric labels.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Kinds returns every event kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := KindConnectNetwork; k <= KindShutdown; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Event is a single unit of work for the state machine. Only timer events
// use Seq: it carries the generation of the deadline or backoff that armed
// them so that stale timers can be recognised and dropped. CorrelationID
// names the message an ApplicationConsumedMessage event releases.
type Event struct {
	Kind          Kind
	Seq           uint64
	CorrelationID uint32
}

func (e Event) String() string {
	switch {
	case e.Seq != 0:
		return fmt.Sprintf("%s#%d", e.Kind, e.Seq)
	case e.CorrelationID != 0:
		return fmt.Sprintf("%s(%d)", e.Kind, e.CorrelationID)
	}
	return e.Kind.String()
}
