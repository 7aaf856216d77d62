package work

import (
	"github.com/nerrad567/gray-logic-edge/internal/transport"
)

// Poster accepts events for the state machine. *Queue satisfies it.
type Poster interface {
	Post(ev Event) error
}

// Demux translates provider notifications into typed events. It runs on
// provider goroutines, so it only classifies and posts; whether a
// notification is still relevant is judged later by the state machine,
// which owns the flags needed to tell.
type Demux struct {
	out    Poster
	logger Logger
}

// NewDemux creates a demultiplexer posting to out.
func NewDemux(out Poster, logger Logger) *Demux {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Demux{out: out, logger: logger}
}

// Classify maps a notification to its event kind. ok is false for
// notifications the orchestrator does not subscribe to.
func Classify(n transport.Notification) (kind Kind, ok bool) {
	switch n.Tag {
	case transport.TagNetwork:
		if n.Type == transport.NetworkStatusChanged {
			return KindNetworkStatusChanged, true
		}
	case transport.TagConfig:
		switch n.Type {
		case transport.ChannelDataReadable:
			return KindConfigReadable, true
		case transport.ChannelNotConnected:
			return KindConfigChannelNotConnected, true
		}
	case transport.TagBroker:
		switch n.Type {
		case transport.ChannelDataReadable:
			return KindBrokerReadable, true
		case transport.ChannelNotConnected:
			return KindBrokerChannelNotConnected, true
		}
	}
	return 0, false
}

// Notify is the transport.Notifier handed to the provider.
func (d *Demux) Notify(n transport.Notification) {
	kind, ok := Classify(n)
	if !ok {
		d.logger.Warn("unhandled transport notification",
			"tag", uint32(n.Tag),
			"type", n.Type.String(),
		)
		return
	}
	if err := d.out.Post(Event{Kind: kind}); err != nil {
		d.logger.Warn("dropping transport notification",
			"event", kind.String(),
			"error", err,
		)
	}
}
