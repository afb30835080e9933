package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vahan/internal/cache"
	"vahan/internal/core"
	applog "vahan/internal/log"
	"vahan/internal/metrics"
	"vahan/internal/middleware/ratelimit"
	"vahan/internal/services"
	"vahan/internal/sources"
	"vahan/internal/sources/memory"
)

func raw(date, cat, maker string, n int) core.RawRecord {
	return core.RawRecord{Date: date, VehicleCategory: cat, Manufacturer: maker, Registrations: fmt.Sprint(n)}
}

// sampleRows spans 2023-01 to 2024-03 for two 2W makers and one 4W maker.
func sampleRows() []core.RawRecord {
	var rows []core.RawRecord
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		d := start.AddDate(0, i, 0).Format(time.DateOnly)
		rows = append(rows,
			raw(d, "2W", "HERO", 100+10*i),
			raw(d, "2W", "HONDA", 80+5*i),
			raw(d, "4W", "MARUTI", 50),
		)
	}
	return rows
}

type failingSource struct{ err error }

func (f failingSource) Identity(context.Context) (string, error) { return "", f.err }
func (f failingSource) ReadRecords(context.Context) ([]core.RawRecord, error) {
	return nil, f.err
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Component: applog.ComponentHTTP, Output: io.Discard})
}

func newTestServer(t *testing.T, src sources.Source, opts ...Option) (*Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	svc := services.NewReportService(src, cache.NewLoading[*services.Dataset](4, time.Minute),
		services.WithMetrics(m), services.WithLogger(quietLogger()))
	opts = append([]Option{WithMetrics(m), WithLogger(quietLogger())}, opts...)
	srv := NewServer(":0", svc, opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, m
}

func do(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestIndexRendersDashboard(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()))

	rr := do(t, srv, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := rr.Body.String()
	assert.Contains(t, body, "Vehicle Registrations")
	assert.Contains(t, body, "HERO")
	assert.Contains(t, body, "MARUTI")
	assert.Contains(t, body, `value="2W"`)
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestIndexShowsQueryErrors(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()))

	rr := do(t, srv, http.MethodGet, "/?start=yesterday")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "start must be YYYY-MM or YYYY-MM-DD")
}

func TestReportPartialFilters(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()))

	rr := do(t, srv, http.MethodGet, "/ui/report?category=4W")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "MARUTI")
	assert.NotContains(t, rr.Body.String(), "HERO")
	assert.NotContains(t, rr.Body.String(), "<html")

	rr = do(t, srv, http.MethodGet, "/ui/report?category=3W")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "No registrations match")

	rr = do(t, srv, http.MethodGet, "/ui/report?top=500")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `class="error"`)
}

func TestAPIReport(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()))

	rr := do(t, srv, http.MethodGet, "/api/report")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	rep := decode[reportJSON](t, rr)
	assert.True(t, rep.HasData)
	assert.Equal(t, 45, rep.Rows)
	assert.Equal(t, "2023-01-01", rep.Range.Start)
	assert.Equal(t, "2024-03-01", rep.Range.End)
	assert.Equal(t, services.DefaultTopN, rep.TopN)

	// 2024-03: HERO 240 + HONDA 150 + MARUTI 50
	assert.Equal(t, int64(440), rep.Overview.Registrations)

	require.Len(t, rep.Categories.Latest.Rows, 2)
	twoW := rep.Categories.Latest.Rows[0]
	assert.Equal(t, "2W", twoW.Key["vehicle_category"])
	assert.Equal(t, int64(390), twoW.Registrations)
	// 2023-03 was 120 + 90 = 210
	require.NotNil(t, twoW.YoYPct)
	assert.InDelta(t, 85.71, *twoW.YoYPct, 0.001)

	require.Len(t, rep.Share, 3)
	assert.Equal(t, "HERO", rep.Share[0].Key["manufacturer"])
}

func TestAPIReportRangeAndFilters(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()))

	rr := do(t, srv, http.MethodGet, "/api/report?start=2024-01&end=2024-03-15")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 9, decode[reportJSON](t, rr).Rows)

	q := url.Values{"manufacturer": {"HERO,HONDA"}, "top": {"1"}}
	rr = do(t, srv, http.MethodGet, "/api/report?"+q.Encode())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rep := decode[reportJSON](t, rr)
	assert.Equal(t, 30, rep.Rows)
	assert.Len(t, rep.Share, 1)
	assert.Len(t, rep.Categories.Latest.Rows, 1)
}

func TestAPIReportValidation(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()))

	for _, target := range []string{
		"/api/report?start=2024-13",
		"/api/report?top=0",
		"/api/report?top=101",
		"/api/report?top=ten",
		"/api/report?start=2024-03&end=2024-01",
	} {
		rr := do(t, srv, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
		assert.NotEmpty(t, decode[errorBody](t, rr).Error, target)
	}
}

func TestAPISeriesAndLatest(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()))

	rr := do(t, srv, http.MethodGet, "/api/series?dims=category,manufacturer")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	series := decode[seriesJSON](t, rr)
	assert.Equal(t, []string{"vehicle_category", "manufacturer"}, series.Dimensions)
	assert.Len(t, series.Points, 45)

	rr = do(t, srv, http.MethodGet, "/api/latest?dims=manufacturer&top=2")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	board := decode[leaderboardJSON](t, rr)
	require.Len(t, board.Rows, 2)
	assert.Equal(t, "HERO", board.Rows[0].Key["manufacturer"])
	assert.Equal(t, "HONDA", board.Rows[1].Key["manufacturer"])

	rr = do(t, srv, http.MethodGet, "/api/latest?dims=manufacturer")
	assert.Len(t, decode[leaderboardJSON](t, rr).Rows, 3)

	for _, target := range []string{"/api/series", "/api/latest?dims=colour", "/api/series?dims=category,category"} {
		rr := do(t, srv, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestAPIOptions(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()))

	rr := do(t, srv, http.MethodGet, "/api/options")
	require.Equal(t, http.StatusOK, rr.Code)
	opts := decode[optionsJSON](t, rr)
	assert.True(t, opts.HasData)
	assert.Equal(t, []string{"2W", "4W"}, opts.Categories)
	assert.Equal(t, []string{"HERO", "HONDA", "MARUTI"}, opts.Manufacturers)
	assert.Equal(t, "2023-01-01", opts.MinDate)
	assert.Equal(t, "2024-03-01", opts.MaxDate)
}

func TestInvalidateIsRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()), WithRateLimit(ratelimit.Config{RequestsPerMinute: 1}))

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/options").Code)

	rr := do(t, srv, http.MethodPost, "/api/cache/invalidate")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("HX-Trigger"), "cache:invalidated")
	assert.Equal(t, map[string]int{"invalidated": 1}, decode[map[string]int](t, rr))

	rr = do(t, srv, http.MethodPost, "/api/cache/invalidate")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodGet, "/api/cache/invalidate").Code)
}

func TestSourceFailures(t *testing.T) {
	srv, _ := newTestServer(t, failingSource{err: fmt.Errorf("resolve: %w", sources.ErrNoCandidate)})
	rr := do(t, srv, http.MethodGet, "/api/report")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "data source unavailable", decode[errorBody](t, rr).Error)

	srv, _ = newTestServer(t, failingSource{err: errors.New("boom")})
	rr = do(t, srv, http.MethodGet, "/api/options")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal error", decode[errorBody](t, rr).Error)

	bad := append(sampleRows(), raw("not-a-date", "2W", "HERO", 1))
	srv, _ = newTestServer(t, memory.New(bad))
	rr = do(t, srv, http.MethodGet, "/api/report")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, decode[errorBody](t, rr).Error, "row 46")
}

func TestHealthAndReadiness(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()))
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz").Code)

	rr := do(t, srv, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"dataset":"ok"`)

	srv, _ = newTestServer(t, memory.New(sampleRows()),
		WithReadinessCheck("store", func(context.Context) error {
			return errors.New("open /srv/vahan/data/vahan.db: database is locked")
		}))
	rr = do(t, srv, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"store":"failed: internal error"`)
	assert.NotContains(t, rr.Body.String(), "/srv/vahan")
}

func TestReadinessHidesSourcePaths(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "secret", "registrations.csv")
	srv, _ := newTestServer(t, failingSource{err: fmt.Errorf("open %s: %w", missing, sources.ErrNoCandidate)})

	rr := do(t, srv, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"dataset":"failed: data source unavailable"`)
	assert.NotContains(t, rr.Body.String(), missing)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(sampleRows()))
	do(t, srv, http.MethodGet, "/api/report")

	rr := do(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `vahan_http_requests_total{code="2xx",route="GET /api/report"} 1`)
	assert.Contains(t, body, "vahan_dataset_loads_total")
	assert.True(t, strings.Contains(body, "vahan_report_duration_seconds"))
}

func TestStaticAssets(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(nil))
	rr := do(t, srv, http.MethodGet, "/static/style.css")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Cache-Control"), "max-age=3600")

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/nope").Code)
}

func TestEmptyDataset(t *testing.T) {
	srv, _ := newTestServer(t, memory.New(nil))

	rr := do(t, srv, http.MethodGet, "/api/report")
	require.Equal(t, http.StatusOK, rr.Code)
	rep := decode[reportJSON](t, rr)
	assert.False(t, rep.HasData)
	assert.Empty(t, rep.Share)

	rr = do(t, srv, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "No registrations match")
}
