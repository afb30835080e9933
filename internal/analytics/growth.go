package analytics

import (
	"slices"

	"github.com/shopspring/decimal"

	"vahan/internal/core"
)

const (
	// QuarterLag and YearLag count observed periods of a group, not calendar
	// months. A group with a missing month compares against its nearest
	// earlier observation.
	QuarterLag = 3
	YearLag    = 12
)

var hundred = decimal.NewFromInt(100)

// WithGrowth adds trailing QoQ and YoY percent changes to every point. Groups
// are formed by the series keys projected on dims and never share history.
// Insufficient history and a zero prior value both yield no value.
func WithGrowth(series core.Series, dims []core.Dimension) (core.GrowthSeries, error) {
	idx, err := projection(series.Dimensions, dims)
	if err != nil {
		return core.GrowthSeries{}, err
	}

	points := make([]core.GrowthPoint, len(series.Points))
	for i, p := range series.Points {
		p.Key = slices.Clone(p.Key)
		points[i] = core.GrowthPoint{Point: p}
	}
	slices.SortStableFunc(points, func(a, b core.GrowthPoint) int {
		return a.Date.Compare(b.Date)
	})

	history := make(map[string][]int64)
	for i := range points {
		p := &points[i]
		id := groupID(project(p.Key, idx))
		prior := history[id]
		n := len(prior)

		if n >= QuarterLag {
			p.QoQ = PercentChange(p.Registrations, prior[n-QuarterLag])
		}
		if n >= YearLag {
			p.YoY = PercentChange(p.Registrations, prior[n-YearLag])
		}
		history[id] = append(prior, p.Registrations)
	}

	return core.GrowthSeries{Dimensions: slices.Clone(series.Dimensions), Points: points}, nil
}

// PercentChange returns (current - prior) / prior * 100, or no value when
// prior is zero.
func PercentChange(current, prior int64) decimal.NullDecimal {
	if prior == 0 {
		return decimal.NullDecimal{}
	}
	p := decimal.NewFromInt(prior)
	return decimal.NullDecimal{
		Decimal: decimal.NewFromInt(current).Sub(p).Mul(hundred).Div(p),
		Valid:   true,
	}
}
