package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/tender-scout/internal/ingest"
	"github.com/david/tender-scout/internal/models"
)

func TestReportCountsTerminalEvents(t *testing.T) {
	m := New("tender")
	ctx := context.Background()

	m.Report(ctx, ingest.ProgressEvent{Stage: ingest.StageProgress, RowsImported: 50})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("imported")))

	m.Report(ctx, ingest.ProgressEvent{
		Stage:         ingest.StageCompleted,
		Status:        models.BatchCompleted,
		RowsImported:  8,
		RowsDuplicate: 2,
		RowsFailed:    1,
	})
	m.Report(ctx, ingest.ProgressEvent{Stage: ingest.StageFailed, Status: models.BatchFailed, RowsSkipped: 3})

	assert.Equal(t, 8.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("imported")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportBatches.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImportBatches.WithLabelValues("failed")))
}

func TestObserveRescore(t *testing.T) {
	m := New("tender")
	m.ObserveRescore(10, 1)
	assert.Equal(t, 10.0, testutil.ToFloat64(m.RescoredTenders.WithLabelValues("scored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RescoredTenders.WithLabelValues("failed")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New("tender")
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "tender_http_requests_total"), body)
}
