package work

import "sync"

// outbox holds produced payloads until the orchestrator goroutine picks
// them up. Producers and the orchestrator share it under mu.
type outbox struct {
	mu    sync.Mutex
	items [][]byte
	max   int
}

func newOutbox(max int) *outbox {
	return &outbox{max: max}
}

// push appends a copy of payload and runs announce while still holding the
// lock. If announce fails the payload is withdrawn again, so a payload is
// queued if and only if its event was.
func (b *outbox) push(payload []byte, announce func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) >= b.max {
		return ErrOutboxFull
	}
	b.items = append(b.items, append([]byte(nil), payload...))
	if err := announce(); err != nil {
		b.items = b.items[:len(b.items)-1]
		return err
	}
	return nil
}

// pop removes the oldest payload.
func (b *outbox) pop() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return nil, false
	}
	p := b.items[0]
	b.items[0] = nil
	b.items = b.items[1:]
	return p, true
}

func (b *outbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
