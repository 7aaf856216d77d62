package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultBacklog = 64
	writeTimeout   = 5 * time.Second
)

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes phase transitions to a Repository. It implements the
// orchestrator's metrics hooks so it can be fanned out beside Prometheus;
// hooks other than PhaseChanged and ReconnectScheduled are ignored.
//
// Hooks never block. Entries are written by Run; when the backlog is full
// the entry is dropped with a warning.
type Recorder struct {
	repo    Repository
	bootID  string
	logger  Logger
	now     func() time.Time
	backlog chan SessionEntry

	mu      sync.Mutex
	pending string // detail attached to the next transition
}

// NewRecorder creates a recorder stamping every entry with bootID.
func NewRecorder(repo Repository, bootID string, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:    repo,
		bootID:  bootID,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		backlog: make(chan SessionEntry, defaultBacklog),
	}
}

// BootID returns the id stamped on this recorder's entries.
func (r *Recorder) BootID() string { return r.bootID }

// Run writes queued entries until ctx is cancelled, then drains what is
// left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case e := <-r.backlog:
			r.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.backlog:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e SessionEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, &e); err != nil {
		r.logger.Warn("recording session transition failed", "phase", e.Phase, "error", err)
	}
}

// PhaseChanged queues a transition entry.
func (r *Recorder) PhaseChanged(phase string) {
	r.mu.Lock()
	detail := r.pending
	r.pending = ""
	r.mu.Unlock()

	e := SessionEntry{BootID: r.bootID, Phase: phase, Detail: detail, CreatedAt: r.now()}
	select {
	case r.backlog <- e:
	default:
		r.logger.Warn("session log backlog full, transition dropped", "phase", phase)
	}
}

// ReconnectScheduled notes the backoff delay on the next transition.
func (r *Recorder) ReconnectScheduled(delay time.Duration) {
	r.mu.Lock()
	r.pending = fmt.Sprintf("retry in %s", delay)
	r.mu.Unlock()
}

func (r *Recorder) EventProcessed(string) {}
func (r *Recorder) EventDropped(string)   {}
func (r *Recorder) MessageDelivered()     {}
func (r *Recorder) MessageLost()          {}
func (r *Recorder) PublishCompleted(bool) {}
