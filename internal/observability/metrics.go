package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPTotalRequests is the total number of http requests.
	HTTPTotalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_http_total_requests",
			Help: "Total number of http requests",
		},
		[]string{"path", "method", "status_code"},
	)

	// HTTPRequestDuration is the duration of the http request.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "inquiry_http_request_duration_seconds",
			Help: "Duration of the http request",
		},
		[]string{"path", "method", "status_code"},
	)

	// HTTPErrors counts error responses by code.
	HTTPErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_http_errors_total",
			Help: "Total number of error responses by error code",
		},
		[]string{"path", "method", "code"},
	)

	// StoreLatency is the duration of store queries.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "inquiry_store_latency_seconds",
			Help: "Duration of store queries",
		},
		[]string{"repo", "query"},
	)

	// StoreTotalRequests is the total number of store queries.
	StoreTotalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_store_total_requests",
			Help: "Total number of store queries",
		},
		[]string{"repo", "query"},
	)

	// TicketsCreated counts tickets by type.
	TicketsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_tickets_created_total",
			Help: "Tickets created by type",
		},
		[]string{"ticket_type"},
	)

	// DedupRejections counts creations refused because an open ticket exists.
	DedupRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquiry_dedup_rejections_total",
			Help: "Ticket creations rejected by the dedup guard",
		},
	)

	// MessagesPosted counts thread messages, including first messages.
	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquiry_messages_posted_total",
			Help: "Messages appended to ticket threads",
		},
	)

	// TicketTransitions counts status changes by resulting status.
	TicketTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_ticket_transitions_total",
			Help: "Ticket status transitions by resulting status",
		},
		[]string{"status"},
	)

	// NotificationsDispatched counts delivery outcomes by kind.
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_notifications_total",
			Help: "Notification delivery outcomes",
		},
		[]string{"kind", "result"},
	)

	// LiveSubscribers is the number of open live-update streams.
	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inquiry_live_subscribers",
			Help: "Open live update subscriptions",
		},
	)
)

// ObserveStore starts a latency timer for a store query. Call the
// returned func when the query completes.
func ObserveStore(repo, query string) func() {
	StoreTotalRequests.WithLabelValues(repo, query).Inc()
	t := prometheus.NewTimer(StoreLatency.WithLabelValues(repo, query))
	return func() { t.ObserveDuration() }
}
