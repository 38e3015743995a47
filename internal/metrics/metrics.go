// Package metrics exposes Prometheus counters for imports, rescoring and
// HTTP traffic.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/david/tender-scout/internal/ingest"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	ImportRows          *prometheus.CounterVec
	ImportBatches       *prometheus.CounterVec
	RescoredTenders     *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry so several instances can
// coexist in tests.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		ImportRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_rows_total",
				Help:      "Spreadsheet rows processed by outcome",
			},
			[]string{"outcome"},
		),
		ImportBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "import_batches_total",
				Help:      "Finished import batches by status",
			},
			[]string{"status"},
		),
		RescoredTenders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rescored_tenders_total",
				Help:      "Tenders rescored after a profile change",
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}

// Report counts rows and batches once a batch reaches a terminal stage.
func (m *Metrics) Report(_ context.Context, ev ingest.ProgressEvent) {
	if ev.Stage != ingest.StageCompleted && ev.Stage != ingest.StageFailed {
		return
	}
	m.ImportRows.WithLabelValues("imported").Add(float64(ev.RowsImported))
	m.ImportRows.WithLabelValues("duplicate").Add(float64(ev.RowsDuplicate))
	m.ImportRows.WithLabelValues("failed").Add(float64(ev.RowsFailed))
	m.ImportRows.WithLabelValues("skipped").Add(float64(ev.RowsSkipped))
	m.ImportBatches.WithLabelValues(string(ev.Status)).Inc()
}

func (m *Metrics) ObserveRescore(scored, failed int) {
	m.RescoredTenders.WithLabelValues("scored").Add(float64(scored))
	m.RescoredTenders.WithLabelValues("failed").Add(float64(failed))
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}
			labels := []string{c.Request().Method, c.Path(), strconv.Itoa(status)}
			m.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
			m.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}
