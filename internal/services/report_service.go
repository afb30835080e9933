package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"vahan/internal/analytics"
	"vahan/internal/cache"
	"vahan/internal/core"
	applog "vahan/internal/log"
	"vahan/internal/metrics"
	"vahan/internal/sources"
)

const (
	DefaultTopN = 10
	MaxTopN     = 100
)

var ErrInvalidRange = errors.New("range start is after range end")

// Dataset is one normalized snapshot of a source.
type Dataset struct {
	Identity string
	Records  []core.Record
	Options  core.Options
	LoadedAt time.Time
}

// Query selects the slice of a dataset a report is built from. A nil Range
// means the full span of the data, and a zero bound leaves that side open.
// Empty allow-lists do not restrict.
type Query struct {
	Range         *analytics.DateRange
	Categories    []string
	Manufacturers []string
	TopN          int
}

// View is one grouping of the filtered data.
type View struct {
	Dimensions []core.Dimension
	Series     core.GrowthSeries
	Latest     core.Leaderboard
}

// Report is everything the dashboard renders for one query.
type Report struct {
	Identity      string
	HasData       bool
	Range         analytics.DateRange
	Rows          int
	TopN          int
	Overview      core.Overview
	Categories    View
	Manufacturers View
	// TopSeries is the manufacturer series restricted to the TopN
	// manufacturers of the leaderboard.
	TopSeries core.GrowthSeries
	// Share is the latest-month market share, at most TopN rows.
	Share []core.ShareRow
}

type ReportService struct {
	source      sources.Source
	cache       *cache.Loading[*Dataset]
	metrics     *metrics.Metrics
	logger      *applog.Logger
	name        string
	defaultTopN int
}

type Option func(*ReportService)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ReportService) { s.metrics = m }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *ReportService) { s.logger = l }
}

// WithSourceName sets the label logged for dataset loads.
func WithSourceName(name string) Option {
	return func(s *ReportService) { s.name = name }
}

func WithDefaultTopN(n int) Option {
	return func(s *ReportService) {
		if n > 0 && n <= MaxTopN {
			s.defaultTopN = n
		}
	}
}

// NewReportService builds a service over src. Datasets are cached in c, keyed
// by source identity.
func NewReportService(src sources.Source, c *cache.Loading[*Dataset], opts ...Option) *ReportService {
	s := &ReportService{
		source:      src,
		cache:       c,
		name:        "source",
		defaultTopN: DefaultTopN,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.New(applog.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(applog.ComponentReport)
	return s
}

// Dataset returns the normalized table for the current source identity,
// loading it on a cache miss.
func (s *ReportService) Dataset(ctx context.Context) (*Dataset, error) {
	id, err := s.source.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("source identity: %w", err)
	}
	return s.cache.Get(ctx, id, func(ctx context.Context) (*Dataset, error) {
		return s.load(ctx, id)
	})
}

func (s *ReportService) load(ctx context.Context, id string) (*Dataset, error) {
	start := time.Now()
	raw, err := s.source.ReadRecords(ctx)
	if err == nil {
		var records []core.Record
		records, err = core.Normalize(raw)
		if err == nil {
			ds := &Dataset{
				Identity: id,
				Records:  records,
				Options:  analytics.Options(records),
				LoadedAt: time.Now().UTC(),
			}
			s.observeLoad(start, len(records), nil)
			applog.NewStructuredLogger(s.logger).LogDatasetLoaded(ctx, s.name, id, len(records), time.Since(start).Milliseconds())
			return ds, nil
		}
	}
	s.observeLoad(start, 0, err)
	return nil, fmt.Errorf("load dataset: %w", err)
}

func (s *ReportService) observeLoad(start time.Time, rows int, err error) {
	if s.metrics != nil {
		s.metrics.ObserveLoad(start, rows, err)
	}
}

func (s *ReportService) timer(view string) func() {
	if s.metrics == nil {
		return func() {}
	}
	return s.metrics.Time(view)
}

func (s *ReportService) Options(ctx context.Context) (core.Options, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return core.Options{}, err
	}
	return ds.Options, nil
}

// Invalidate drops every cached dataset so the next request reloads.
func (s *ReportService) Invalidate(ctx context.Context) int {
	n := s.cache.InvalidateAll()
	s.logger.InfoContext(ctx, "Dataset cache invalidated", applog.FieldOperation, applog.OpInvalidate, "entries", n)
	return n
}

// Warm loads the current dataset into the cache.
func (s *ReportService) Warm(ctx context.Context) error {
	_, err := s.Dataset(ctx)
	return err
}

// Report builds the dashboard for q. The category and manufacturer views are
// computed concurrently.
func (s *ReportService) Report(ctx context.Context, q Query) (Report, error) {
	defer s.timer("report")()

	ds, filtered, rng, err := s.filtered(ctx, q)
	if err != nil {
		return Report{}, err
	}
	topN := s.topN(q.TopN)
	rep := Report{
		Identity: ds.Identity,
		HasData:  len(filtered) > 0,
		Range:    rng,
		Rows:     len(filtered),
		TopN:     topN,
	}

	var cats, makers View
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := buildView(gctx, filtered, []core.Dimension{core.DimCategory})
		cats = v
		return err
	})
	g.Go(func() error {
		v, err := buildView(gctx, filtered, []core.Dimension{core.DimManufacturer})
		makers = v
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	rep.Categories = cats
	rep.Manufacturers = makers
	rep.Overview = analytics.Overview(cats.Series)

	top := analytics.Top(makers.Latest, topN)
	rep.TopSeries, err = analytics.Restrict(makers.Series, makers.Dimensions, analytics.Keys(top))
	if err != nil {
		return Report{}, err
	}
	share := analytics.Share(makers.Series)
	if len(share) > topN {
		share = share[:topN]
	}
	rep.Share = share
	return rep, nil
}

// Series returns the growth series of the filtered data grouped by dims.
func (s *ReportService) Series(ctx context.Context, q Query, dims []core.Dimension) (core.GrowthSeries, error) {
	defer s.timer("series")()

	_, filtered, _, err := s.filtered(ctx, q)
	if err != nil {
		return core.GrowthSeries{}, err
	}
	v, err := buildView(ctx, filtered, dims)
	if err != nil {
		return core.GrowthSeries{}, err
	}
	return v.Series, nil
}

// Leaderboard returns the latest row per group of the filtered data grouped
// by dims. A positive q.TopN truncates it.
func (s *ReportService) Leaderboard(ctx context.Context, q Query, dims []core.Dimension) (core.Leaderboard, error) {
	defer s.timer("latest")()

	_, filtered, _, err := s.filtered(ctx, q)
	if err != nil {
		return core.Leaderboard{}, err
	}
	v, err := buildView(ctx, filtered, dims)
	if err != nil {
		return core.Leaderboard{}, err
	}
	if q.TopN > 0 {
		return analytics.Top(v.Latest, q.TopN), nil
	}
	return v.Latest, nil
}

// filtered applies q to the current dataset. A zero Start or End in q.Range
// is taken from the data bounds.
func (s *ReportService) filtered(ctx context.Context, q Query) (*Dataset, []core.Record, analytics.DateRange, error) {
	if q.Range != nil && !q.Range.Start.IsZero() && !q.Range.End.IsZero() && q.Range.Start.After(q.Range.End) {
		return nil, nil, analytics.DateRange{}, ErrInvalidRange
	}
	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, nil, analytics.DateRange{}, err
	}

	rng, _ := analytics.Bounds(ds.Records)
	if q.Range != nil {
		if !q.Range.Start.IsZero() {
			rng.Start = q.Range.Start
		}
		if !q.Range.End.IsZero() {
			rng.End = q.Range.End
		}
	}
	return ds, analytics.Filter(ds.Records, rng, q.Categories, q.Manufacturers), rng, nil
}

func (s *ReportService) topN(n int) int {
	switch {
	case n <= 0:
		return s.defaultTopN
	case n > MaxTopN:
		return MaxTopN
	default:
		return n
	}
}

func buildView(ctx context.Context, records []core.Record, dims []core.Dimension) (View, error) {
	if err := ctx.Err(); err != nil {
		return View{}, err
	}
	series, err := analytics.Aggregate(records, dims)
	if err != nil {
		return View{}, err
	}
	gs, err := analytics.WithGrowth(series, dims)
	if err != nil {
		return View{}, err
	}
	board, err := analytics.Latest(gs, dims)
	if err != nil {
		return View{}, err
	}
	return View{Dimensions: dims, Series: gs, Latest: board}, nil
}
