package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vahan/internal/analytics"
	"vahan/internal/cache"
	"vahan/internal/core"
	"vahan/internal/metrics"
)

type fakeSource struct {
	mu    sync.Mutex
	id    string
	rows  []core.RawRecord
	err   error
	reads atomic.Int32
}

func (f *fakeSource) ReadRecords(context.Context) ([]core.RawRecord, error) {
	f.reads.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]core.RawRecord(nil), f.rows...), nil
}

func (f *fakeSource) Identity(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, nil
}

func (f *fakeSource) set(id string, rows []core.RawRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.id, f.rows = id, rows
}

func raw(date, cat, maker string, n int) core.RawRecord {
	return core.RawRecord{Date: date, VehicleCategory: cat, Manufacturer: maker, Registrations: fmt.Sprint(n)}
}

// Two categories and three manufacturers over fifteen months.
func sampleRows() []core.RawRecord {
	var rows []core.RawRecord
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		d := start.AddDate(0, i, 0).Format(time.DateOnly)
		rows = append(rows,
			raw(d, "2W", "Hero", 100+10*i),
			raw(d, "2W", "Honda", 80+5*i),
			raw(d, "4W", "Maruti", 50),
		)
	}
	return rows
}

func newService(src *fakeSource, opts ...Option) *ReportService {
	return NewReportService(src, cache.NewLoading[*Dataset](4, time.Minute), opts...)
}

func TestReportServiceDatasetIsCachedByIdentity(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{id: "v1", rows: sampleRows()}
	svc := newService(src)

	ds, err := svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", ds.Identity)
	assert.Len(t, ds.Records, 45)

	_, err = svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.reads.Load())

	src.set("v2", sampleRows()[:3])
	ds, err = svc.Dataset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", ds.Identity)
	assert.Len(t, ds.Records, 3)
	assert.Equal(t, int32(2), src.reads.Load())
}

func TestReportServiceInvalidateForcesReload(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{id: "v1", rows: sampleRows()}
	svc := newService(src)

	require.NoError(t, svc.Warm(ctx))
	assert.Equal(t, 1, svc.Invalidate(ctx))
	require.NoError(t, svc.Warm(ctx))
	assert.Equal(t, int32(2), src.reads.Load())
}

func TestReportServiceLoadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("source error", func(t *testing.T) {
		boom := errors.New("boom")
		svc := newService(&fakeSource{id: "x", err: boom})
		_, err := svc.Report(ctx, Query{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("unparseable date", func(t *testing.T) {
		svc := newService(&fakeSource{id: "x", rows: []core.RawRecord{raw("soon", "2W", "Hero", 1)}})
		_, err := svc.Report(ctx, Query{})
		var pe *core.ParseError
		assert.ErrorAs(t, err, &pe)
	})

	t.Run("failed loads are not cached", func(t *testing.T) {
		src := &fakeSource{id: "x", err: errors.New("down")}
		svc := newService(src)
		_, err := svc.Dataset(ctx)
		require.Error(t, err)

		src.mu.Lock()
		src.err, src.rows = nil, sampleRows()
		src.mu.Unlock()
		_, err = svc.Dataset(ctx)
		require.NoError(t, err)
	})
}

func TestReportServiceReport(t *testing.T) {
	ctx := context.Background()
	svc := newService(&fakeSource{id: "v1", rows: sampleRows()})

	rep, err := svc.Report(ctx, Query{TopN: 2})
	require.NoError(t, err)

	assert.True(t, rep.HasData)
	assert.Equal(t, 45, rep.Rows)
	assert.Equal(t, 2, rep.TopN)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), rep.Range.Start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), rep.Range.End)

	// Latest month: Hero 240, Honda 150, Maruti 50.
	assert.True(t, rep.Overview.HasData)
	assert.Equal(t, int64(440), rep.Overview.Registrations)
	assert.Equal(t, rep.Range.End, rep.Overview.Date)

	require.Len(t, rep.Categories.Latest.Rows, 2)
	assert.Equal(t, []string{"2W"}, rep.Categories.Latest.Rows[0].Key)
	assert.Equal(t, int64(390), rep.Categories.Latest.Rows[0].Registrations)

	require.Len(t, rep.Manufacturers.Latest.Rows, 3)
	assert.Equal(t, []string{"Hero"}, rep.Manufacturers.Latest.Rows[0].Key)

	for _, p := range rep.TopSeries.Points {
		assert.NotEqual(t, "Maruti", p.Key[0])
	}
	assert.Len(t, rep.TopSeries.Points, 30)

	require.Len(t, rep.Share, 2)
	assert.Equal(t, []string{"Hero"}, rep.Share[0].Key)
	assert.True(t, rep.Share[0].SharePct.Valid)
}

func TestReportServiceReportFilters(t *testing.T) {
	ctx := context.Background()
	svc := newService(&fakeSource{id: "v1", rows: sampleRows()})

	rng := analytics.DateRange{
		Start: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC),
	}
	rep, err := svc.Report(ctx, Query{Range: &rng, Categories: []string{"4W"}})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Rows)
	assert.Equal(t, rng, rep.Range)
	assert.Equal(t, int64(50), rep.Overview.Registrations)
	assert.Equal(t, DefaultTopN, rep.TopN)
}

func TestReportServiceEmptySelection(t *testing.T) {
	ctx := context.Background()
	svc := newService(&fakeSource{id: "v1", rows: sampleRows()})

	rep, err := svc.Report(ctx, Query{Manufacturers: []string{"Nobody"}})
	require.NoError(t, err)
	assert.False(t, rep.HasData)
	assert.False(t, rep.Overview.HasData)
	assert.Empty(t, rep.Share)
	assert.Empty(t, rep.TopSeries.Points)
}

func TestReportServiceEmptySource(t *testing.T) {
	svc := newService(&fakeSource{id: "empty"})
	rep, err := svc.Report(context.Background(), Query{})
	require.NoError(t, err)
	assert.False(t, rep.HasData)
	assert.True(t, rep.Range.Start.IsZero())
}

func TestReportServiceInvalidRange(t *testing.T) {
	src := &fakeSource{id: "v1", rows: sampleRows()}
	svc := newService(src)
	rng := analytics.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := svc.Report(context.Background(), Query{Range: &rng})
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Equal(t, int32(0), src.reads.Load())
}

func TestReportServiceOpenEndedRange(t *testing.T) {
	svc := newService(&fakeSource{id: "v1", rows: sampleRows()})
	rng := analytics.DateRange{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	rep, err := svc.Report(context.Background(), Query{Range: &rng})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), rep.Range.End)
	assert.Equal(t, 9, rep.Rows)
}

func TestReportServiceTopNBounds(t *testing.T) {
	svc := newService(&fakeSource{}, WithDefaultTopN(5))
	assert.Equal(t, 5, svc.topN(0))
	assert.Equal(t, 5, svc.topN(-3))
	assert.Equal(t, 7, svc.topN(7))
	assert.Equal(t, MaxTopN, svc.topN(MaxTopN+1))

	svc = newService(&fakeSource{}, WithDefaultTopN(0))
	assert.Equal(t, DefaultTopN, svc.topN(0))
}

func TestReportServiceSeriesAndLeaderboard(t *testing.T) {
	ctx := context.Background()
	svc := newService(&fakeSource{id: "v1", rows: sampleRows()})
	dims := []core.Dimension{core.DimCategory, core.DimManufacturer}

	gs, err := svc.Series(ctx, Query{}, dims)
	require.NoError(t, err)
	assert.Len(t, gs.Points, 45)
	assert.Equal(t, dims, gs.Dimensions)

	board, err := svc.Leaderboard(ctx, Query{TopN: 1}, dims)
	require.NoError(t, err)
	require.Len(t, board.Rows, 1)
	assert.Equal(t, []string{"2W", "Hero"}, board.Rows[0].Key)

	board, err = svc.Leaderboard(ctx, Query{}, dims)
	require.NoError(t, err)
	assert.Len(t, board.Rows, 3)

	_, err = svc.Series(ctx, Query{}, []core.Dimension{"colour"})
	assert.ErrorIs(t, err, core.ErrUnknownDimension)
}

func TestReportServiceOptions(t *testing.T) {
	svc := newService(&fakeSource{id: "v1", rows: sampleRows()})
	opts, err := svc.Options(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2W", "4W"}, opts.Categories)
	assert.Equal(t, []string{"Hero", "Honda", "Maruti"}, opts.Manufacturers)
}

func TestReportServiceRecordsMetrics(t *testing.T) {
	m := metrics.New()
	svc := newService(&fakeSource{id: "v1", rows: sampleRows()}, WithMetrics(m))
	_, err := svc.Report(context.Background(), Query{})
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["vahan_dataset_loads_total"])
	assert.True(t, names["vahan_report_duration_seconds"])
}
