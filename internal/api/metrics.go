package api

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several servers can coexist in one process.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	buildDuration   prometheus.Gauge
	monthClinics    *prometheus.GaugeVec
	usageScores     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_measures_http_requests_total",
				Help: "Total number of query API requests",
			},
			[]string{"route", "status_code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "referral_measures_http_request_duration_seconds",
				Help:    "Duration of query API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		buildDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "referral_measures_build_duration_seconds",
			Help: "Duration of the startup measure build in seconds",
		}),
		monthClinics: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "referral_measures_month_clinics",
				Help: "Number of clinics in each reporting month",
			},
			[]string{"month"},
		),
		usageScores: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_measures_usage_scorings_total",
				Help: "Total number of usage scoring requests",
			},
			[]string{"status"},
		),
	}
	m.registry.MustRegister(m.requestsTotal, m.requestDuration, m.buildDuration, m.monthClinics, m.usageScores)
	return m
}

func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveBuild records the store build time and clinic count per month.
func (m *Metrics) ObserveBuild(d time.Duration, clinicsByMonth map[string]int) {
	m.buildDuration.Set(d.Seconds())
	for month, n := range clinicsByMonth {
		m.monthClinics.WithLabelValues(month).Set(float64(n))
	}
}

func (m *Metrics) observeScoring(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.usageScores.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
