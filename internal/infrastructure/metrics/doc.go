// Package metrics exposes the edge agent's Prometheus metrics.
//
// Collector implements work.Metrics, so the orchestrator reports into it
// directly. Metrics live on a private registry served by Handler; nothing
// is registered with the prometheus default registry.
//
// # Metric names
//
// All metrics use the graylogic_edge namespace:
//
//	graylogic_edge_orchestrator_events_processed_total{kind}
//	graylogic_edge_orchestrator_events_dropped_total{kind}
//	graylogic_edge_orchestrator_phase{phase}            (1 for the current phase)
//	graylogic_edge_orchestrator_phase_transitions_total{phase}
//	graylogic_edge_orchestrator_reconnect_delay_seconds (histogram)
//	graylogic_edge_broker_messages_delivered_total
//	graylogic_edge_broker_messages_lost_total
//	graylogic_edge_broker_publishes_total{status}
//	graylogic_edge_network_up
package metrics
