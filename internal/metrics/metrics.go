// Package metrics exposes Prometheus instruments for the report pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vahan"

type Metrics struct {
	registry *prometheus.Registry

	DatasetLoads     *prometheus.CounterVec
	DatasetLoadTime  prometheus.Histogram
	DatasetRows      prometheus.Gauge
	CacheRequests    *prometheus.CounterVec
	ReportDuration   *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	RowsImported     prometheus.Counter
	RefreshesHandled *prometheus.CounterVec
}

// New builds a Metrics bound to a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_loads_total",
			Help:      "Dataset loads from the configured source, by outcome.",
		}, []string{"outcome"}),
		DatasetLoadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_load_seconds",
			Help:      "Time spent reading and normalizing the registration table.",
			Buckets:   prometheus.DefBuckets,
		}),
		DatasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Rows in the most recently loaded dataset.",
		}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Dataset cache lookups, by result.",
		}, []string{"result"}),
		ReportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Time spent assembling report views.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"view"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status class.",
		}, []string{"route", "code"}),
		RowsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_imported_total",
			Help:      "Rows written to the SQLite store.",
		}),
		RefreshesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_messages_total",
			Help:      "Dataset-loaded notifications consumed, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DatasetLoads,
		m.DatasetLoadTime,
		m.DatasetRows,
		m.CacheRequests,
		m.ReportDuration,
		m.HTTPRequests,
		m.RowsImported,
		m.RefreshesHandled,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCache is suitable as a cache observer.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.CacheRequests.WithLabelValues("hit").Inc()
		return
	}
	m.CacheRequests.WithLabelValues("miss").Inc()
}

func (m *Metrics) ObserveLoad(start time.Time, rows int, err error) {
	m.DatasetLoadTime.Observe(time.Since(start).Seconds())
	if err != nil {
		m.DatasetLoads.WithLabelValues("error").Inc()
		return
	}
	m.DatasetLoads.WithLabelValues("ok").Inc()
	m.DatasetRows.Set(float64(rows))
}

// Time returns a func that records the elapsed time for view when called.
func (m *Metrics) Time(view string) func() {
	start := time.Now()
	return func() {
		m.ReportDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
	}
}

// StatusClass maps an HTTP status to "2xx", "4xx" and so on.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
