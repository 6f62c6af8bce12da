package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fellowship_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fellowship_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fellowship_notify_dispatches_total",
			Help: "Notification pipeline runs by kind",
		},
		[]string{"kind"},
	)

	dispatchRecipients = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fellowship_notify_recipients",
			Help:    "Recipients left after preference filtering, per dispatch",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"kind"},
	)

	dispatchTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fellowship_notify_tokens",
			Help:    "Active push tokens resolved per dispatch",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"kind"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fellowship_notify_dispatch_duration_seconds",
			Help:    "Time for one full pipeline run",
			Buckets: []float64{.01, .05, .1, .5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	pushTickets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fellowship_push_tickets_total",
			Help: "Push tickets by status and error code",
		},
		[]string{"status", "error"},
	)

	gatewayAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fellowship_push_gateway_attempts_total",
			Help: "Push gateway batch attempts by outcome",
		},
		[]string{"outcome"},
	)

	tokensDisabled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fellowship_push_tokens_disabled_total",
			Help: "Push tokens disabled by reason",
		},
		[]string{"reason"},
	)

	circuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fellowship_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)

	eventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fellowship_activity_events_consumed_total",
			Help: "Activity events consumed by source, type, and result",
		},
		[]string{"source", "type", "result"},
	)

	likesDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fellowship_like_notifications_deduped_total",
			Help: "Like notifications suppressed by the dedupe window",
		},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fellowship_idempotency_hits_total",
			Help: "Requests served from idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fellowship_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"scope"},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fellowship_db_connections_active",
			Help: "Active database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDispatch records one finished pipeline run.
func RecordDispatch(kind string, recipients, tokens int, duration time.Duration) {
	dispatchesTotal.WithLabelValues(kind).Inc()
	dispatchRecipients.WithLabelValues(kind).Observe(float64(recipients))
	dispatchTokens.WithLabelValues(kind).Observe(float64(tokens))
	dispatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTicket records one push ticket. errorCode is empty for ok tickets.
func RecordTicket(status, errorCode string) {
	pushTickets.WithLabelValues(status, errorCode).Inc()
}

// RecordGatewayAttempt records a batch attempt outcome
// (ok, transport_error, rejected).
func RecordGatewayAttempt(outcome string) {
	gatewayAttempts.WithLabelValues(outcome).Inc()
}

func RecordTokenDisabled(reason string, n int) {
	tokensDisabled.WithLabelValues(reason).Add(float64(n))
}

// SetCircuitState publishes the numeric breaker state.
func SetCircuitState(name string, state int) {
	circuitState.WithLabelValues(name).Set(float64(state))
}

func RecordEventConsumed(source, eventType, result string) {
	eventsConsumed.WithLabelValues(source, eventType, result).Inc()
}

func RecordLikeDeduped() {
	likesDeduped.Inc()
}

// RecordIdempotencyHit records a cache hit for idempotency
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection. scope is "user"
// or "ip".
func RecordRateLimitRejection(scope string) {
	rateLimitRejections.WithLabelValues(scope).Inc()
}

// SetDBConnections sets active database connection count
func SetDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics. The path
// label is the matched chi route pattern so ids do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, routePattern(r), wrapped.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
