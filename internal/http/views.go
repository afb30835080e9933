package http

import (
	"slices"
	"strings"
	"time"

	"vahan/internal/analytics"
	"vahan/internal/core"
	"vahan/internal/services"
)

// JSON shapes. Dates are YYYY-MM-DD month starts and percentages are numbers
// or null.

type pointJSON struct {
	Key           map[string]string `json:"key"`
	Date          string            `json:"date"`
	Registrations int64             `json:"registrations"`
	YoYPct        *float64          `json:"yoy_pct"`
	QoQPct        *float64          `json:"qoq_pct"`
}

type seriesJSON struct {
	Dimensions []string    `json:"dimensions"`
	Points     []pointJSON `json:"points"`
}

type leaderboardJSON struct {
	Dimensions []string    `json:"dimensions"`
	Rows       []pointJSON `json:"rows"`
}

type overviewJSON struct {
	HasData       bool     `json:"has_data"`
	Date          string   `json:"date,omitempty"`
	Registrations int64    `json:"registrations"`
	AvgYoYPct     *float64 `json:"avg_yoy_pct"`
	AvgQoQPct     *float64 `json:"avg_qoq_pct"`
}

type shareJSON struct {
	Key           map[string]string `json:"key"`
	Date          string            `json:"date"`
	Registrations int64             `json:"registrations"`
	SharePct      *float64          `json:"share_pct"`
}

type rangeJSON struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type viewJSON struct {
	Series seriesJSON      `json:"series"`
	Latest leaderboardJSON `json:"latest"`
}

type reportJSON struct {
	Identity      string       `json:"identity"`
	HasData       bool         `json:"has_data"`
	Range         rangeJSON    `json:"range"`
	Rows          int          `json:"rows"`
	TopN          int          `json:"top_n"`
	Overview      overviewJSON `json:"overview"`
	Categories    viewJSON     `json:"categories"`
	Manufacturers viewJSON     `json:"manufacturers"`
	TopSeries     seriesJSON   `json:"top_series"`
	Share         []shareJSON  `json:"share"`
}

type optionsJSON struct {
	HasData       bool     `json:"has_data"`
	Categories    []string `json:"categories"`
	Manufacturers []string `json:"manufacturers"`
	MinDate       string   `json:"min_date,omitempty"`
	MaxDate       string   `json:"max_date,omitempty"`
}

func keyMap(dims []core.Dimension, key []string) map[string]string {
	m := make(map[string]string, len(dims))
	for i, d := range dims {
		if i < len(key) {
			m[d.String()] = key[i]
		}
	}
	return m
}

func dimNames(dims []core.Dimension) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		out[i] = d.String()
	}
	return out
}

func toSeriesJSON(gs core.GrowthSeries) seriesJSON {
	out := seriesJSON{Dimensions: dimNames(gs.Dimensions), Points: make([]pointJSON, 0, len(gs.Points))}
	for _, p := range gs.Points {
		out.Points = append(out.Points, pointJSON{
			Key:           keyMap(gs.Dimensions, p.Key),
			Date:          dateString(p.Date),
			Registrations: p.Registrations,
			YoYPct:        pctNumber(p.YoY),
			QoQPct:        pctNumber(p.QoQ),
		})
	}
	return out
}

func toLeaderboardJSON(b core.Leaderboard) leaderboardJSON {
	out := leaderboardJSON{Dimensions: dimNames(b.Dimensions), Rows: make([]pointJSON, 0, len(b.Rows))}
	for _, r := range b.Rows {
		out.Rows = append(out.Rows, pointJSON{
			Key:           keyMap(b.Dimensions, r.Key),
			Date:          dateString(r.Date),
			Registrations: r.Registrations,
			YoYPct:        pctNumber(r.YoY),
			QoQPct:        pctNumber(r.QoQ),
		})
	}
	return out
}

func toOptionsJSON(o core.Options) optionsJSON {
	return optionsJSON{
		HasData:       o.HasData,
		Categories:    nonNil(o.Categories),
		Manufacturers: nonNil(o.Manufacturers),
		MinDate:       dateString(o.MinDate),
		MaxDate:       dateString(o.MaxDate),
	}
}

func toReportJSON(rep services.Report) reportJSON {
	out := reportJSON{
		Identity: rep.Identity,
		HasData:  rep.HasData,
		Range:    rangeJSON{Start: dateString(rep.Range.Start), End: dateString(rep.Range.End)},
		Rows:     rep.Rows,
		TopN:     rep.TopN,
		Overview: overviewJSON{
			HasData:       rep.Overview.HasData,
			Date:          dateString(rep.Overview.Date),
			Registrations: rep.Overview.Registrations,
			AvgYoYPct:     pctNumber(rep.Overview.AvgYoY),
			AvgQoQPct:     pctNumber(rep.Overview.AvgQoQ),
		},
		Categories:    viewJSON{Series: toSeriesJSON(rep.Categories.Series), Latest: toLeaderboardJSON(rep.Categories.Latest)},
		Manufacturers: viewJSON{Series: toSeriesJSON(rep.Manufacturers.Series), Latest: toLeaderboardJSON(rep.Manufacturers.Latest)},
		TopSeries:     toSeriesJSON(rep.TopSeries),
		Share:         make([]shareJSON, 0, len(rep.Share)),
	}
	dims := rep.Manufacturers.Dimensions
	for _, s := range rep.Share {
		out.Share = append(out.Share, shareJSON{
			Key:           keyMap(dims, s.Key),
			Date:          dateString(s.Date),
			Registrations: s.Registrations,
			SharePct:      pctNumber(s.SharePct),
		})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Template view models. Every value is preformatted.

type kpiRow struct {
	Name          string
	Month         string
	Registrations string
	YoY, QoQ      string
	YoYClass      string
	QoQClass      string
}

type shareRow struct {
	Name          string
	Registrations string
	Share         string
	Width         int
}

type pivotView struct {
	Columns []string
	Rows    []pivotRow
}

type pivotRow struct {
	Month string
	Cells []string
}

type reportView struct {
	HasData       bool
	RangeLabel    string
	Rows          string
	TopN          int
	LatestMonth   string
	Total         string
	AvgYoY        string
	AvgQoQ        string
	AvgYoYClass   string
	AvgQoQClass   string
	Categories    []kpiRow
	Manufacturers []kpiRow
	Share         []shareRow
	CategoryTrend pivotView
	MakerTrend    pivotView
}

type formState struct {
	Start         string
	End           string
	Top           int
	Categories    map[string]bool
	Manufacturers map[string]bool
}

type dashboardView struct {
	Options core.Options
	MinDate string
	MaxDate string
	Form    formState
	Report  *reportView
	Error   string
}

// trendMonths caps the trend tables to the most recent months.
const trendMonths = 12

func newReportView(rep services.Report) reportView {
	v := reportView{
		HasData:     rep.HasData,
		Rows:        formatCount(int64(rep.Rows)),
		TopN:        rep.TopN,
		LatestMonth: monthLabel(rep.Overview.Date),
		Total:       formatCount(rep.Overview.Registrations),
		AvgYoY:      formatPct(rep.Overview.AvgYoY),
		AvgQoQ:      formatPct(rep.Overview.AvgQoQ),
		AvgYoYClass: pctClass(rep.Overview.AvgYoY),
		AvgQoQClass: pctClass(rep.Overview.AvgQoQ),
	}
	if !rep.Range.Start.IsZero() {
		v.RangeLabel = monthLabel(rep.Range.Start) + " to " + monthLabel(rep.Range.End)
	}
	v.Categories = kpiRows(rep.Categories.Latest)
	v.Manufacturers = kpiRows(analytics.Top(rep.Manufacturers.Latest, rep.TopN))

	var maxShare int64
	for _, s := range rep.Share {
		maxShare = max(maxShare, s.Registrations)
	}
	for _, s := range rep.Share {
		v.Share = append(v.Share, shareRow{
			Name:          strings.Join(s.Key, " / "),
			Registrations: formatCount(s.Registrations),
			Share:         formatShare(s.SharePct),
			Width:         barWidth(s.Registrations, maxShare),
		})
	}
	v.CategoryTrend = pivot(rep.Categories.Series, trendMonths)
	v.MakerTrend = pivot(rep.TopSeries, trendMonths)
	return v
}

func kpiRows(b core.Leaderboard) []kpiRow {
	rows := make([]kpiRow, 0, len(b.Rows))
	for _, r := range b.Rows {
		rows = append(rows, kpiRow{
			Name:          strings.Join(r.Key, " / "),
			Month:         monthLabel(r.Date),
			Registrations: formatCount(r.Registrations),
			YoY:           formatPct(r.YoY),
			QoQ:           formatPct(r.QoQ),
			YoYClass:      pctClass(r.YoY),
			QoQClass:      pctClass(r.QoQ),
		})
	}
	return rows
}

// barWidth scales v against the largest value to a percentage, keeping very
// small non-zero values visible.
func barWidth(v, largest int64) int {
	if largest <= 0 || v <= 0 {
		return 0
	}
	width := int((v*100 + largest/2) / largest)
	if width < 2 {
		width = 2
	}
	return min(width, 100)
}

// pivot lays gs out as one row per month (newest first, at most months rows)
// and one column per group. Missing cells are blank.
func pivot(gs core.GrowthSeries, months int) pivotView {
	colIdx := map[string]int{}
	var cols []string
	cells := map[time.Time]map[int]int64{}
	for _, p := range gs.Points {
		name := strings.Join(p.Key, " / ")
		i, ok := colIdx[name]
		if !ok {
			i = len(cols)
			colIdx[name] = i
			cols = append(cols, name)
		}
		if cells[p.Date] == nil {
			cells[p.Date] = map[int]int64{}
		}
		cells[p.Date][i] += p.Registrations
	}

	dates := make([]time.Time, 0, len(cells))
	for d := range cells {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return b.Compare(a) })
	if len(dates) > months {
		dates = dates[:months]
	}

	pv := pivotView{Columns: cols}
	for _, d := range dates {
		row := pivotRow{Month: monthLabel(d), Cells: make([]string, len(cols))}
		for i, n := range cells[d] {
			row.Cells[i] = formatCount(n)
		}
		pv.Rows = append(pv.Rows, row)
	}
	return pv
}

func newFormState(q services.Query) formState {
	fs := formState{
		Top:           q.TopN,
		Categories:    make(map[string]bool, len(q.Categories)),
		Manufacturers: make(map[string]bool, len(q.Manufacturers)),
	}
	if q.Range != nil {
		fs.Start = monthValue(q.Range.Start)
		fs.End = monthValue(q.Range.End)
	}
	for _, c := range q.Categories {
		fs.Categories[c] = true
	}
	for _, m := range q.Manufacturers {
		fs.Manufacturers[m] = true
	}
	return fs
}
