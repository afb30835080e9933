package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"vahan/internal/core"
)

// Overview summarizes the latest month across the whole series: the total
// of that month and the mean of the growth rates that have a value.
func Overview(gs core.GrowthSeries) core.Overview {
	latest, ok := maxDate(gs)
	if !ok {
		return core.Overview{}
	}

	var (
		total          int64
		yoySum, qoqSum decimal.Decimal
		yoyN, qoqN     int64
	)
	for _, p := range gs.Points {
		if !p.Date.Equal(latest) {
			continue
		}
		total += p.Registrations
		if p.YoY.Valid {
			yoySum = yoySum.Add(p.YoY.Decimal)
			yoyN++
		}
		if p.QoQ.Valid {
			qoqSum = qoqSum.Add(p.QoQ.Decimal)
			qoqN++
		}
	}

	return core.Overview{
		HasData:       true,
		Date:          latest,
		Registrations: total,
		AvgYoY:        mean(yoySum, yoyN),
		AvgQoQ:        mean(qoqSum, qoqN),
	}
}

// Share returns the rows of the latest month with each row's share of that
// month's total, largest first.
func Share(gs core.GrowthSeries) []core.ShareRow {
	latest, ok := maxDate(gs)
	if !ok {
		return []core.ShareRow{}
	}

	var total int64
	rows := make([]core.ShareRow, 0)
	for _, p := range gs.Points {
		if !p.Date.Equal(latest) {
			continue
		}
		total += p.Registrations
		rows = append(rows, core.ShareRow{
			Key:           slices.Clone(p.Key),
			Date:          p.Date,
			Registrations: p.Registrations,
		})
	}
	for i := range rows {
		rows[i].SharePct = PercentOf(rows[i].Registrations, total)
	}
	slices.SortStableFunc(rows, func(a, b core.ShareRow) int {
		return cmp.Compare(b.Registrations, a.Registrations)
	})
	return rows
}

// Restrict keeps the points whose key, projected on dims, is one of keys.
func Restrict(gs core.GrowthSeries, dims []core.Dimension, keys [][]string) (core.GrowthSeries, error) {
	idx, err := projection(gs.Dimensions, dims)
	if err != nil {
		return core.GrowthSeries{}, err
	}
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[groupID(k)] = struct{}{}
	}

	points := make([]core.GrowthPoint, 0)
	for _, p := range gs.Points {
		if _, ok := allowed[groupID(project(p.Key, idx))]; ok {
			p.Key = slices.Clone(p.Key)
			points = append(points, p)
		}
	}
	return core.GrowthSeries{Dimensions: slices.Clone(gs.Dimensions), Points: points}, nil
}

// Options lists the distinct labels and the month bounds of a dataset.
func Options(records []core.Record) core.Options {
	cats := make(map[string]struct{})
	makers := make(map[string]struct{})
	for _, r := range records {
		cats[r.VehicleCategory] = struct{}{}
		makers[r.Manufacturer] = struct{}{}
	}
	opts := core.Options{
		Categories:    sortedKeys(cats),
		Manufacturers: sortedKeys(makers),
	}
	if b, ok := Bounds(records); ok {
		opts.MinDate, opts.MaxDate, opts.HasData = b.Start, b.End, true
	}
	return opts
}

// PercentOf returns part / total * 100, or no value when total is zero.
func PercentOf(part, total int64) decimal.NullDecimal {
	if total == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{
		Decimal: decimal.NewFromInt(part).Mul(hundred).Div(decimal.NewFromInt(total)),
		Valid:   true,
	}
}

func maxDate(gs core.GrowthSeries) (time.Time, bool) {
	if len(gs.Points) == 0 {
		return time.Time{}, false
	}
	latest := gs.Points[0].Date
	for _, p := range gs.Points[1:] {
		if p.Date.After(latest) {
			latest = p.Date
		}
	}
	return latest, true
}

func mean(sum decimal.Decimal, n int64) decimal.NullDecimal {
	if n == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: sum.Div(decimal.NewFromInt(n)), Valid: true}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
