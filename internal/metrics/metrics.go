// Package metrics declares the bridge's Prometheus series backing GET
// /api/metrics, grounded on the package-level promauto.New* variables of
// fenilsonani-email-server's internal/metrics/metrics.go — one global
// registry, no per-component wiring needed at construction time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest
	SMSReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_sms_received_total",
		Help: "Total number of SMS ingest requests accepted",
	})

	SMSRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_sms_rejected_total",
		Help: "Total number of SMS ingest requests rejected",
	}, []string{"reason"})

	// Queue
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_queue_depth",
		Help: "Current number of messages buffered in the work queue",
	})

	QueueEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_queue_enqueued_total",
		Help: "Total number of messages accepted into the work queue",
	})

	QueueDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_queue_delivered_total",
		Help: "Total number of messages delivered by any channel",
	})

	QueueFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_queue_failed_total",
		Help: "Total number of messages that exhausted every channel",
	})

	// Dispatch
	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_dispatch_attempts_total",
		Help: "Total dispatch attempts per channel and outcome",
	}, []string{"channel", "result"})

	// Dead Letter Office
	DLOSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_dlo_size",
		Help: "Current number of entries held in the dead letter office",
	})

	DLOOverflow = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_dlo_overflow_total",
		Help: "Total number of dead letters evicted due to capacity overflow",
	})

	// Health Monitor
	NodeAlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_node_alerts_total",
		Help: "Total health alerts raised, by kind",
	}, []string{"kind"})

	// CTO-Agent
	IncidentsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_incidents_total",
		Help: "Total incidents produced by the CTO-Agent, by webhook status",
	}, []string{"status"})
)

// RecordDispatch records one dispatcher attempt's outcome.
func RecordDispatch(channel, result string) {
	DispatchAttempts.WithLabelValues(channel, result).Inc()
}

// RecordIngestRejection records an ingest request rejected before it
// reached the queue (validation failure, duplicate sms_id, queue full).
func RecordIngestRejection(reason string) {
	SMSRejected.WithLabelValues(reason).Inc()
}

// RecordAlert records one health alert raised, by kind.
func RecordAlert(kind string) {
	NodeAlertsRaised.WithLabelValues(kind).Inc()
}

// RecordIncident records one CTO-Agent incident, by webhook status.
func RecordIncident(status string) {
	IncidentsDispatched.WithLabelValues(status).Inc()
}
