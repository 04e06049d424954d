package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// Transfers
	TransfersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transfers_created_total",
			Help: "Transfers accepted in PENDING state",
		},
	)
	TransferTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_transitions_total",
			Help: "Persisted status transitions by target status",
		},
		[]string{"to"},
	)
	TransitionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transfer_transition_conflicts_total",
			Help: "Conditional updates that matched no row because the status had already moved",
		},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests refused by a rate limiter",
		},
	)

	// Notifications
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by event, sink and outcome",
		},
		[]string{"event", "sink", "outcome"},
	)
	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Open push-channel connections",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

var Handler = promhttp.Handler

var once sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestDuration,
			TransfersCreated,
			TransferTransitions,
			TransitionConflicts,
			RateLimited,
			Notifications,
			RealtimeConnections,
			WorkerQueueDepth,
		)
	})
}
