package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-edge/internal/work"
)

const namespace = "graylogic_edge"

// Collector holds every metric the agent exports.
type Collector struct {
	registry *prometheus.Registry

	eventsProcessed  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	phase            *prometheus.GaugeVec
	phaseTransitions *prometheus.CounterVec
	reconnectDelay   prometheus.Histogram

	delivered prometheus.Counter
	lost      prometheus.Counter
	publishes *prometheus.CounterVec

	networkUp prometheus.Gauge

	mu           sync.Mutex
	currentPhase string
}

// New creates a Collector on a fresh registry. Go runtime and process
// collectors are included.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "events_processed_total",
			Help:      "Events taken off the queue and handled, by kind",
		}, []string{"kind"}),

		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "events_dropped_total",
			Help:      "Events rejected because the queue was full, by kind",
		}, []string{"kind"}),

		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "phase",
			Help:      "1 for the phase the state machine is in, 0 otherwise",
		}, []string{"phase"}),

		phaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "phase_transitions_total",
			Help:      "Transitions into each phase",
		}, []string{"phase"}),

		reconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "reconnect_delay_seconds",
			Help:      "Delay before each scheduled recovery attempt",
			Buckets:   []float64{0, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "messages_delivered_total",
			Help:      "Inbound messages handed to the application",
		}),

		lost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "messages_lost_total",
			Help:      "Inbound messages the provider could not deliver",
		}),

		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "publishes_total",
			Help:      "Completed publishes, by status (success/failure)",
		}, []string{"status"}),

		networkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "network",
			Name:      "up",
			Help:      "1 while the network probe reaches its target",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.eventsProcessed,
		c.eventsDropped,
		c.phase,
		c.phaseTransitions,
		c.reconnectDelay,
		c.delivered,
		c.lost,
		c.publishes,
		c.networkUp,
	)

	for _, p := range work.Phases() {
		c.phase.WithLabelValues(p.String()).Set(0)
	}
	c.setPhase(work.PhaseIdle.String())
	return c
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// EventProcessed implements work.Metrics.
func (c *Collector) EventProcessed(kind string) {
	c.eventsProcessed.WithLabelValues(kind).Inc()
}

// EventDropped implements work.Metrics.
func (c *Collector) EventDropped(kind string) {
	c.eventsDropped.WithLabelValues(kind).Inc()
}

// PhaseChanged implements work.Metrics.
func (c *Collector) PhaseChanged(phase string) {
	c.phaseTransitions.WithLabelValues(phase).Inc()
	c.setPhase(phase)
}

func (c *Collector) setPhase(phase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentPhase != "" {
		c.phase.WithLabelValues(c.currentPhase).Set(0)
	}
	c.phase.WithLabelValues(phase).Set(1)
	c.currentPhase = phase
}

// ReconnectScheduled implements work.Metrics.
func (c *Collector) ReconnectScheduled(delay time.Duration) {
	c.reconnectDelay.Observe(delay.Seconds())
}

// MessageDelivered implements work.Metrics.
func (c *Collector) MessageDelivered() {
	c.delivered.Inc()
}

// MessageLost implements work.Metrics.
func (c *Collector) MessageLost() {
	c.lost.Inc()
}

// PublishCompleted implements work.Metrics.
func (c *Collector) PublishCompleted(ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	c.publishes.WithLabelValues(status).Inc()
}

// SetNetworkUp records the network probe result.
func (c *Collector) SetNetworkUp(up bool) {
	if up {
		c.networkUp.Set(1)
		return
	}
	c.networkUp.Set(0)
}

var _ work.Metrics = (*Collector)(nil)
