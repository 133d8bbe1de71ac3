// Package metrics exposes Prometheus collectors for the HTTP layer and for
// domain events such as cascade deletes and access denials.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create as many as they need.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	cascadeDeleted   *prometheus.CounterVec
	accessDenied     *prometheus.CounterVec
	displayIDs       *prometheus.CounterVec
	displayIDRetries *prometheus.CounterVec
	surveySubmitted  prometheus.Counter
	authAttempts     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ehr_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ehr_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		cascadeDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ehr_visits_cascade_deleted_total",
			Help: "Visits removed because their last clinical record was deleted",
		}, []string{"kind"}),
		accessDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ehr_access_denied_total",
			Help: "Requests rejected by the patient access guard",
		}, []string{"reason"}),
		displayIDs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ehr_display_ids_generated_total",
			Help: "Display identifiers handed out by the sequence generator",
		}, []string{"scope"}),
		displayIDRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ehr_display_id_retries_total",
			Help: "Inserts retried after a display identifier collision",
		}, []string{"scope"}),
		surveySubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ehr_survey_submissions_total",
			Help: "Usability survey submissions, including resubmissions",
		}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ehr_auth_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.cascadeDeleted,
		m.accessDenied,
		m.displayIDs,
		m.displayIDRetries,
		m.surveySubmitted,
		m.authAttempts,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records request count and latency labelled by route template,
// never by raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) CascadeDeleted(kind string) {
	if m == nil {
		return
	}
	m.cascadeDeleted.WithLabelValues(kind).Inc()
}

func (m *Metrics) AccessDenied(reason string) {
	if m == nil {
		return
	}
	m.accessDenied.WithLabelValues(reason).Inc()
}

func (m *Metrics) DisplayIDGenerated(scope string) {
	if m == nil {
		return
	}
	m.displayIDs.WithLabelValues(scope).Inc()
}

func (m *Metrics) DisplayIDRetried(scope string) {
	if m == nil {
		return
	}
	m.displayIDRetries.WithLabelValues(scope).Inc()
}

func (m *Metrics) SurveySubmitted() {
	if m == nil {
		return
	}
	m.surveySubmitted.Inc()
}

func (m *Metrics) AuthAttempt(success bool) {
	if m == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	m.authAttempts.WithLabelValues(status).Inc()
}
