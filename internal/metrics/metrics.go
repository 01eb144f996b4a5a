// Package metrics defines the Prometheus collectors exposed on
// /metrics. Collectors are package-level and registered at init via
// promauto; callers record through the exported vars.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP surface
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracehub_http_requests_total",
			Help: "HTTP requests by route group, method, and status class",
		},
		[]string{"group", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracehub_http_request_duration_seconds",
			Help:    "HTTP request latency by route group",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"group"},
	)

	// Tracking ingestor
	PollCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracehub_poll_cycles_total",
			Help: "Completed tracking poll sweeps",
		},
	)

	PollShipmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracehub_poll_shipments_total",
			Help: "Per-shipment poll outcomes",
		},
		[]string{"outcome"}, // ok, transient_error, permanent_error
	)

	ContainerEventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracehub_container_events_ingested_total",
			Help: "Container events stored or deduplicated",
		},
		[]string{"result"}, // stored, duplicate
	)

	// Rules engine
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracehub_rule_evaluations_total",
			Help: "Compliance engine runs by decision",
		},
		[]string{"decision"},
	)

	RuleEvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracehub_rule_evaluation_duration_seconds",
			Help:    "Time to evaluate one shipment",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Notifications
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracehub_notifications_published_total",
			Help: "Notifications enqueued by type",
		},
		[]string{"type"},
	)

	EmailDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracehub_email_deliveries_total",
			Help: "Outbox email delivery outcomes",
		},
		[]string{"outcome"}, // sent, failed
	)

	// Documents
	DocumentUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracehub_document_uploads_total",
			Help: "Document uploads by document type",
		},
		[]string{"document_type"},
	)

	BoLParsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracehub_bol_parses_total",
			Help: "Bill of lading parse outcomes",
		},
		[]string{"outcome"}, // parsed, failed, fallback
	)

	// Audit packs
	AuditPacksBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracehub_audit_packs_built_total",
			Help: "Audit pack archives assembled",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracehub_websocket_clients",
			Help: "Connected live-feed clients",
		},
	)
)
