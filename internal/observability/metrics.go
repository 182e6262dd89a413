package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rate limit decision outcomes
const (
	RateLimitAllowed = "allowed"
	RateLimitDenied  = "denied"
	RateLimitError   = "error"
)

// Metrics holds all Prometheus metrics for Markwell
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Database metrics
	dbQueriesTotal    *prometheus.CounterVec
	dbQueryDuration   *prometheus.HistogramVec
	dbConnections     prometheus.Gauge
	dbConnectionsIdle prometheus.Gauge
	dbConnectionsMax  prometheus.Gauge

	// Rate limiting metrics
	rateLimitDecisions *prometheus.CounterVec
	rateLimitLatency   *prometheus.HistogramVec

	// Integration metrics
	metadataFetchesTotal *prometheus.CounterVec
	mailSendsTotal       *prometheus.CounterVec
	authAttemptsTotal    *prometheus.CounterVec
	jobRunsTotal         *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates the metrics on a fresh registry that also carries the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWithRegistry(reg)
}

// NewMetricsWithRegistry registers all metrics on reg.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markwell_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markwell_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "markwell_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		dbQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markwell_db_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markwell_db_query_duration_seconds",
				Help:    "Database query latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation", "table"},
		),
		dbConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "markwell_db_connections",
				Help: "Current number of database connections",
			},
		),
		dbConnectionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "markwell_db_connections_idle",
				Help: "Current number of idle database connections",
			},
		),
		dbConnectionsMax: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "markwell_db_connections_max",
				Help: "Maximum number of database connections",
			},
		),

		rateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markwell_rate_limit_decisions_total",
				Help: "Rate limit decisions by rule and outcome",
			},
			[]string{"rule", "outcome"},
		),
		rateLimitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markwell_rate_limit_store_duration_seconds",
				Help:    "Latency of the rate limit store round trip",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"rule"},
		),

		metadataFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markwell_metadata_fetches_total",
				Help: "Link metadata fetches by status",
			},
			[]string{"status"},
		),
		mailSendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markwell_mail_sends_total",
				Help: "Outgoing mail by provider and result",
			},
			[]string{"provider", "result"},
		),
		authAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markwell_auth_attempts_total",
				Help: "Token verifications by provider and result",
			},
			[]string{"provider", "result"},
		),
		jobRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markwell_job_runs_total",
				Help: "Background job runs by job and result",
			},
			[]string{"job", "result"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markwell_job_duration_seconds",
				Help:    "Background job duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"job"},
		),

		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "markwell_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		err := c.Next()

		// The route pattern keeps label cardinality bounded (/items/:id, not /items/<uuid>)
		route := routeLabel(c)
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		class := statusClass(status)

		m.httpRequestsTotal.WithLabelValues(c.Method(), route, class).Inc()
		m.httpRequestDuration.WithLabelValues(c.Method(), route, class).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordDBQuery records database query metrics
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	m.dbQueriesTotal.WithLabelValues(operation, table, result(err)).Inc()
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDBStats updates database connection pool stats
func (m *Metrics) UpdateDBStats(total, idle, max int32) {
	m.dbConnections.Set(float64(total))
	m.dbConnectionsIdle.Set(float64(idle))
	m.dbConnectionsMax.Set(float64(max))
}

// RecordRateLimit records one limiter decision and the store latency behind it
func (m *Metrics) RecordRateLimit(rule, outcome string, duration time.Duration) {
	m.rateLimitDecisions.WithLabelValues(rule, outcome).Inc()
	m.rateLimitLatency.WithLabelValues(rule).Observe(duration.Seconds())
}

// RecordMetadataFetch records a metadata fetch outcome (ok, unavailable)
func (m *Metrics) RecordMetadataFetch(status string) {
	m.metadataFetchesTotal.WithLabelValues(status).Inc()
}

// RecordMailSend records a mail send; result is sent, skipped or failed
func (m *Metrics) RecordMailSend(provider, result string) {
	m.mailSendsTotal.WithLabelValues(provider, result).Inc()
}

// RecordAuthAttempt records a token verification
func (m *Metrics) RecordAuthAttempt(provider string, success bool) {
	r := "success"
	if !success {
		r = "failure"
	}
	m.authAttemptsTotal.WithLabelValues(provider, r).Inc()
}

// RecordJobRun records a background job execution
func (m *Metrics) RecordJobRun(job string, duration time.Duration, err error) {
	m.jobRunsTotal.WithLabelValues(job, result(err)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func routeLabel(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
		return r.Path
	}
	return "unmatched"
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
