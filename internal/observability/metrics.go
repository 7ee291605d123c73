package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal   *prometheus.CounterVec
	httpLatencySeconds  *prometheus.HistogramVec
	httpErrorsTotal     *prometheus.CounterVec
	sessionsActive      *prometheus.GaugeVec
	roundsEvaluated     *prometheus.CounterVec
	gradingFallbacks    *prometheus.CounterVec
	verdictsTotal       *prometheus.CounterVec
	queueDepth          *prometheus.GaugeVec
	storeFailures       *prometheus.CounterVec
	auditDropped        prometheus.Counter
	notificationsTotal  *prometheus.CounterVec
	streamClientsActive prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the arena.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_http_requests_total",
			Help: "Total number of arena API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_http_latency_seconds",
			Help:    "Latency distribution for arena API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_http_errors_total",
			Help: "Total number of error responses returned by arena endpoints.",
		}, []string{"method", "route", "status"})

		sessionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arena_sessions_active",
			Help: "Number of live sessions held by this node, by state.",
		}, []string{"state"})

		roundsEvaluated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_rounds_evaluated_total",
			Help: "Rounds evaluated, by trigger.",
		}, []string{"trigger"})

		gradingFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_grading_fallbacks_total",
			Help: "Submissions scored by the degraded-mode heuristic, by reason.",
		}, []string{"reason"})

		verdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_anticheat_verdicts_total",
			Help: "Anti-cheat verdicts, by action.",
		}, []string{"action"})

		queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arena_matchmaking_queue_depth",
			Help: "Players waiting per matchmaking bucket.",
		}, []string{"mode", "language"})

		storeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_store_failures_total",
			Help: "Session store operations that failed, by operation.",
		}, []string{"operation"})

		auditDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_audit_events_dropped_total",
			Help: "Audit events dropped because the sink buffer was full.",
		})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_notifications_total",
			Help: "Outbound notifications produced, by type.",
		}, []string{"type"})

		streamClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_stream_clients_active",
			Help: "Websocket clients currently subscribed to session streams.",
		})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			sessionsActive, roundsEvaluated, gradingFallbacks, verdictsTotal,
			queueDepth, storeFailures, auditDropped, notificationsTotal, streamClientsActive,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// SessionsActive exposes the live session gauge.
func SessionsActive() *prometheus.GaugeVec {
	RegisterMetrics()
	return sessionsActive
}

// RoundsEvaluated exposes the evaluated rounds counter.
func RoundsEvaluated() *prometheus.CounterVec {
	RegisterMetrics()
	return roundsEvaluated
}

// GradingFallbacks exposes the degraded-mode grading counter.
func GradingFallbacks() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingFallbacks
}

// Verdicts exposes the anti-cheat verdict counter.
func Verdicts() *prometheus.CounterVec {
	RegisterMetrics()
	return verdictsTotal
}

// QueueDepth exposes the matchmaking queue depth gauge.
func QueueDepth() *prometheus.GaugeVec {
	RegisterMetrics()
	return queueDepth
}

// StoreFailures exposes the session store failure counter.
func StoreFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return storeFailures
}

// AuditDropped exposes the dropped audit event counter.
func AuditDropped() prometheus.Counter {
	RegisterMetrics()
	return auditDropped
}

// Notifications exposes the outbound notification counter.
func Notifications() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// StreamClientsActive exposes the websocket subscriber gauge.
func StreamClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return streamClientsActive
}
