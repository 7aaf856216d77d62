package application

import "sync"

// Actuator drives the device's switch output.
type Actuator interface {
	Open()
	Close()
}

// MemorySwitch is an Actuator that only remembers its position. The switch
// starts open.
type MemorySwitch struct {
	mu     sync.Mutex
	closed bool
}

// Open opens the switch.
func (s *MemorySwitch) Open() {
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()
}

// Close closes the switch.
func (s *MemorySwitch) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// IsClosed reports the switch position.
func (s *MemorySwitch) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
