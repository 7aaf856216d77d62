package metrics

import (
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/work"
)

// Fanout forwards every call to each of ms in order. Nil entries are skipped.
func Fanout(ms ...work.Metrics) work.Metrics {
	out := make(fanout, 0, len(ms))
	for _, m := range ms {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

type fanout []work.Metrics

func (f fanout) EventProcessed(kind string) {
	for _, m := range f {
		m.EventProcessed(kind)
	}
}

func (f fanout) EventDropped(kind string) {
	for _, m := range f {
		m.EventDropped(kind)
	}
}

func (f fanout) PhaseChanged(phase string) {
	for _, m := range f {
		m.PhaseChanged(phase)
	}
}

func (f fanout) ReconnectScheduled(delay time.Duration) {
	for _, m := range f {
		m.ReconnectScheduled(delay)
	}
}

func (f fanout) MessageDelivered() {
	for _, m := range f {
		m.MessageDelivered()
	}
}

func (f fanout) MessageLost() {
	for _, m := range f {
		m.MessageLost()
	}
}

func (f fanout) PublishCompleted(ok bool) {
	for _, m := range f {
		m.PublishCompleted(ok)
	}
}
