package work

import (
	"sync/atomic"
	"time"
)

type counters struct {
	processed     uint64
	delivered     uint64
	published     uint64
	publishFailed uint64
	lastError     string
	phaseSince    time.Time

	// dropped is bumped from posting goroutines.
	dropped atomic.Uint64
}

// Status is a point-in-time view of the orchestrator for diagnostics.
type Status struct {
	State

	PhaseSince time.Time `json:"phase_since"`
	Parked     bool      `json:"parked"`
	Attempts   int       `json:"attempts"`

	Broker              string     `json:"broker,omitempty"`
	ClientID            string     `json:"client_id,omitempty"`
	AuthMethod          string     `json:"auth_method,omitempty"`
	CredentialsExpireAt *time.Time `json:"credentials_expire_at,omitempty"`

	EventsProcessed    uint64 `json:"events_processed"`
	EventsDropped      uint64 `json:"events_dropped"`
	QueueLength        int    `json:"queue_length"`
	OutboxLength       int    `json:"outbox_length"`
	MessagesDelivered  uint64 `json:"messages_delivered"`
	PublishesSucceeded uint64 `json:"publishes_succeeded"`
	PublishesFailed    uint64 `json:"publishes_failed"`

	LastError string `json:"last_error,omitempty"`
}

// Status returns the latest snapshot. Safe for concurrent use.
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	s := o.status
	o.statusMu.RUnlock()

	s.EventsDropped = o.counters.dropped.Load()
	s.QueueLength = o.queue.Len()
	s.OutboxLength = o.outbox.len()
	return s
}

// publishStatus refreshes the snapshot from the orchestrator goroutine.
func (o *Orchestrator) publishStatus() {
	s := Status{
		State:              o.state,
		PhaseSince:         o.counters.phaseSince,
		Parked:             o.parked,
		Attempts:           o.attempts,
		EventsProcessed:    o.counters.processed,
		MessagesDelivered:  o.counters.delivered,
		PublishesSucceeded: o.counters.published,
		PublishesFailed:    o.counters.publishFailed,
		LastError:          o.counters.lastError,
	}
	if c := o.session; c != nil {
		s.Broker = c.Address()
		s.ClientID = c.ClientID
		s.AuthMethod = string(c.Method)
		if c.Perishable() {
			exp := c.ExpiresAt
			s.CredentialsExpireAt = &exp
		}
	}

	o.statusMu.Lock()
	o.status = s
	o.statusMu.Unlock()
}
