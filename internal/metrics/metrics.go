// Package metrics exposes Prometheus counters for the API and the export worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	txWrites        *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	exports         *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
	suspicious      prometheus.Counter
	rateLimited     prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finease_http_request_duration_seconds",
				Help:    "Duration of HTTP requests by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finease_http_requests_total",
				Help: "HTTP requests by route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		txWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finease_transactions_written_total",
				Help: "Transaction writes by action.",
			},
			[]string{"action"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finease_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finease_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finease_ledger_exports_total",
				Help: "Ledger export attempts by result.",
			},
			[]string{"result"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finease_external_errors_total",
				Help: "Errors returned by external services.",
			},
			[]string{"service"},
		),
		suspicious: factory.NewCounter(prometheus.CounterOpts{
			Name: "finease_suspicious_requests_total",
			Help: "Requests flagged by the security detector.",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "finease_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) IncrTransactionWrite(action string) {
	m.txWrites.WithLabelValues(action).Inc()
}

// Hit and Miss satisfy cache.Observer.
func (m *Metrics) Hit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) Miss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) IncrExport(result string) {
	m.exports.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

func (m *Metrics) IncrSuspicious() {
	m.suspicious.Inc()
}

func (m *Metrics) IncrRateLimited() {
	m.rateLimited.Inc()
}

// TrackRateLimitClients exposes the limiter's live client count as a gauge.
func (m *Metrics) TrackRateLimitClients(active func() int) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "finease_ratelimit_active_clients",
		Help: "Clients with an open rate limit window.",
	}, func() float64 { return float64(active()) }))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
