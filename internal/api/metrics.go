package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/lender-match/internal/model"
)

// Metrics records match-run and HTTP measurements. A nil *Metrics is a
// valid no-op, so it can be passed wherever an observer is optional.
type Metrics struct {
	registry *prometheus.Registry

	// Match runs by outcome
	RunsTotal *prometheus.CounterVec

	// Duration of full runs including store reads
	RunDuration prometheus.Histogram

	// Per-policy results by eligibility
	ResultsTotal *prometheus.CounterVec

	// Result cache lookups by hit/miss
	CacheLookups *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics registers all metrics on a fresh registry together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lender_match_runs_total",
			Help: "Total match runs by outcome",
		}, []string{"outcome"}),

		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lender_match_run_duration_seconds",
			Help:    "Duration of match runs including loading applications and policies",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		ResultsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lender_match_results_total",
			Help: "Total per-policy match results by eligibility",
		}, []string{"eligible"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lender_match_cache_lookups_total",
			Help: "Match result cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss"

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lender_match_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lender_match_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveRun records one match run.
func (m *Metrics) ObserveRun(outcome string, d time.Duration, results []model.MatchResult) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(d.Seconds())
	for _, r := range results {
		m.ResultsTotal.WithLabelValues(strconv.FormatBool(r.Eligible)).Inc()
	}
}

// ObserveCacheLookup records a result cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
