package work

import "fmt"

// Phase is the coarse stage of the connectivity state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAcquiringNetwork
	PhaseFetchingConfig
	PhaseConnectingBroker
	PhaseSubscribing
	PhaseReady
	PhaseDisconnecting
	PhaseReconnecting
)

var phaseNames = [...]string{
	PhaseIdle:             "idle",
	PhaseAcquiringNetwork: "acquiring_network",
	PhaseFetchingConfig:   "fetching_config",
	PhaseConnectingBroker: "connecting_broker",
	PhaseSubscribing:      "subscribing",
	PhaseReady:            "ready",
	PhaseDisconnecting:    "disconnecting",
	PhaseReconnecting:     "reconnecting",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// MarshalText renders the phase name in JSON status output.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("work: unknown phase %q", text)
}

// Phases returns every phase in declaration order.
func Phases() []Phase {
	out := make([]Phase, len(phaseNames))
	for i := range phaseNames {
		out[i] = Phase(i)
	}
	return out
}

// State is the orchestration state. It is owned by the orchestrator
// goroutine; everyone else sees copies through Status.
//
// MessagePending implies AppBusy at every step.
type State struct {
	Phase Phase `json:"phase"`

	NetworkOn     bool `json:"network_on"`
	ConfigPending bool `json:"config_pending"`

	// BrokerActive is true from the connect acknowledgement until teardown.
	BrokerActive bool `json:"broker_active"`

	// CorrelationID identifies the delivered message awaiting Consumed.
	// Only meaningful while AppBusy.
	CorrelationID uint32 `json:"correlation_id"`

	AppBusy        bool `json:"app_busy"`
	MessagePending bool `json:"message_pending"`
}
