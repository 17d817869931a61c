package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message outcomes recorded by the ingestion pipeline.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeSpam      = "spam"
	OutcomeBounce    = "bounce"
	OutcomeFailed    = "failed"
)

// Metrics holds the Prometheus collectors used across the service.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	messages        *prometheus.CounterVec
	ticketsCreated  prometheus.Counter
	transitions     *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. A nil registerer uses a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "HTTP errors by route, method and error code.",
		}, []string{"path", "method", "code"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_ingested_messages_total",
			Help: "Mailbox messages processed by outcome.",
		}, []string{"outcome"}),
		ticketsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_tickets_created_total",
			Help: "Tickets created from any channel.",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_ticket_transitions_total",
			Help: "Lifecycle transitions by action.",
		}, []string{"action"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_adapter_fallbacks_total",
			Help: "External adapter calls that degraded to a fallback value.",
		}, []string{"adapter"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordMessage counts one processed mailbox message.
func (m *Metrics) RecordMessage(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

// RecordTicketCreated counts one new ticket.
func (m *Metrics) RecordTicketCreated() {
	if m == nil {
		return
	}
	m.ticketsCreated.Inc()
}

// RecordTransition counts one committed lifecycle transition.
func (m *Metrics) RecordTransition(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

// RecordFallback counts one degraded adapter call.
func (m *Metrics) RecordFallback(adapter string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(adapter).Inc()
}
