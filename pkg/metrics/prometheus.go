package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the call service. Every recorder
// is safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Database Metrics
	dbConnectionsActive prometheus.Gauge
	dbConnectionsIdle   prometheus.Gauge

	// Redis Metrics
	redisDegraded     prometheus.Gauge
	redisHealthChecks *prometheus.CounterVec

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Call Metrics
	callsTotal         *prometheus.CounterVec
	callsActive        prometheus.Gauge
	callsDuration      *prometheus.HistogramVec
	callsFailedTotal   *prometheus.CounterVec
	callTransitions    *prometheus.CounterVec
	signalingUpdates   *prometheus.CounterVec
	changePublishTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics on a fresh registry that also carries the
// Go runtime and process collectors.
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		dbConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "db_connections_active",
				Help:        "Number of acquired database connections",
				ConstLabels: labels,
			},
		),
		dbConnectionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "db_connections_idle",
				Help:        "Number of idle database connections",
				ConstLabels: labels,
			},
		),

		redisDegraded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "redis_degraded_mode",
				Help:        "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
				ConstLabels: labels,
			},
		),
		redisHealthChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "redis_health_check_total",
				Help:        "Total number of Redis health checks",
				ConstLabels: labels,
			},
			[]string{"result"},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"type", "direction"},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"error"},
		),

		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of initiated calls",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of calls that are ringing or active",
				ConstLabels: labels,
			},
		),
		callsDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "call_duration_seconds",
				Help:        "Duration of ended calls in seconds",
				ConstLabels: labels,
				Buckets:     []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"type"},
		),
		callsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_failed_total",
				Help:        "Total number of rejected call operations",
				ConstLabels: labels,
			},
			[]string{"operation", "reason"},
		),
		callTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_transitions_total",
				Help:        "Total number of committed call state changes",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		signalingUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_signaling_updates_total",
				Help:        "Total number of peer connection relay writes",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
		changePublishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_change_publish_total",
				Help:        "Total number of call change notifications published",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
	}
}

// GetRegistry returns the registry backing the /metrics endpoint
func (m *Metrics) GetRegistry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m != nil {
		m.httpRequestsInFlight.Inc()
	}
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m != nil {
		m.httpRequestsInFlight.Dec()
	}
}

// SetDBConnections sets database pool connection counts
func (m *Metrics) SetDBConnections(active, idle int) {
	if m == nil {
		return
	}
	m.dbConnectionsActive.Set(float64(active))
	m.dbConnectionsIdle.Set(float64(idle))
}

// SetRedisDegraded flips the degraded-mode gauge
func (m *Metrics) SetRedisDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.redisDegraded.Set(1)
	} else {
		m.redisDegraded.Set(0)
	}
}

// RecordRedisHealthCheck counts a Redis probe by outcome
func (m *Metrics) RecordRedisHealthCheck(healthy bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !healthy {
		result = "failed"
	}
	m.redisHealthChecks.WithLabelValues(result).Inc()
}

// IncWebSocketConnections tracks an opened event stream
func (m *Metrics) IncWebSocketConnections() {
	if m != nil {
		m.websocketConnections.Inc()
	}
}

// DecWebSocketConnections tracks a closed event stream
func (m *Metrics) DecWebSocketConnections() {
	if m != nil {
		m.websocketConnections.Dec()
	}
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	if m != nil {
		m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
	}
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(reason string) {
	if m != nil {
		m.websocketErrorsTotal.WithLabelValues(reason).Inc()
	}
}

// RecordCallInitiated counts a new call and adds it to the live gauge
func (m *Metrics) RecordCallInitiated(callType string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(callType).Inc()
	m.callsActive.Inc()
}

// RecordCallEnded observes the duration and removes the call from the live gauge
func (m *Metrics) RecordCallEnded(callType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.callsActive.Dec()
	m.callsDuration.WithLabelValues(callType).Observe(duration.Seconds())
}

// RecordCallFailure records a rejected call operation
func (m *Metrics) RecordCallFailure(operation, reason string) {
	if m != nil {
		m.callsFailedTotal.WithLabelValues(operation, reason).Inc()
	}
}

// RecordCallTransition counts a committed change by kind
func (m *Metrics) RecordCallTransition(kind string) {
	if m != nil {
		m.callTransitions.WithLabelValues(kind).Inc()
	}
}

// RecordSignalingUpdate counts a peer connection create or update
func (m *Metrics) RecordSignalingUpdate(operation string) {
	if m != nil {
		m.signalingUpdates.WithLabelValues(operation).Inc()
	}
}

// RecordChangePublish counts a change notification by outcome
func (m *Metrics) RecordChangePublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.changePublishTotal.WithLabelValues(result).Inc()
}
