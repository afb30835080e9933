package analytics

import (
	"slices"
	"strconv"

	"vahan/internal/core"
)

// Aggregate sums registrations per (dimension values, month). Points come
// back ordered by month, then by key. Months without rows for a key are not
// synthesized: an absent month and a month with zero registrations are
// different things to the growth calculation.
func Aggregate(records []core.Record, dims []core.Dimension) (core.Series, error) {
	if err := validateDimensions(dims); err != nil {
		return core.Series{}, err
	}

	index := make(map[string]int)
	points := make([]core.Point, 0)
	for _, r := range records {
		key := make([]string, len(dims))
		for i, d := range dims {
			key[i], _ = r.Value(d)
		}
		date := core.MonthStart(r.Date)
		id := groupID(key) + strconv.FormatInt(date.Unix(), 10)

		if at, ok := index[id]; ok {
			points[at].Registrations += r.Registrations
			continue
		}
		index[id] = len(points)
		points = append(points, core.Point{Key: key, Date: date, Registrations: r.Registrations})
	}

	slices.SortStableFunc(points, comparePoints)

	return core.Series{Dimensions: slices.Clone(dims), Points: points}, nil
}

func comparePoints(a, b core.Point) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return slices.Compare(a.Key, b.Key)
}

// Total sums registrations over a series.
func Total(s core.Series) int64 {
	var n int64
	for _, p := range s.Points {
		n += p.Registrations
	}
	return n
}
