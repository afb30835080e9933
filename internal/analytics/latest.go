package analytics

import (
	"cmp"
	"slices"
	"time"

	"vahan/internal/core"
)

// Latest picks, for every group, the rows at that group's own latest month,
// then orders them by registrations descending. A group that stopped
// reporting early still contributes its last observation. Ties keep the
// series order.
func Latest(gs core.GrowthSeries, dims []core.Dimension) (core.Leaderboard, error) {
	idx, err := projection(gs.Dimensions, dims)
	if err != nil {
		return core.Leaderboard{}, err
	}

	ids := make([]string, len(gs.Points))
	keys := make([][]string, len(gs.Points))
	newest := make(map[string]time.Time)
	for i, p := range gs.Points {
		keys[i] = project(p.Key, idx)
		ids[i] = groupID(keys[i])
		if d, ok := newest[ids[i]]; !ok || p.Date.After(d) {
			newest[ids[i]] = p.Date
		}
	}

	rows := make([]core.LatestKPI, 0, len(newest))
	for i, p := range gs.Points {
		if !p.Date.Equal(newest[ids[i]]) {
			continue
		}
		rows = append(rows, core.LatestKPI{
			Key:           keys[i],
			Date:          p.Date,
			Registrations: p.Registrations,
			YoY:           p.YoY,
			QoQ:           p.QoQ,
		})
	}
	slices.SortStableFunc(rows, func(a, b core.LatestKPI) int {
		return cmp.Compare(b.Registrations, a.Registrations)
	})

	return core.Leaderboard{Dimensions: slices.Clone(dims), Rows: rows}, nil
}

// Top returns the first n rows of a leaderboard; n <= 0 keeps all rows.
func Top(board core.Leaderboard, n int) core.Leaderboard {
	rows := board.Rows
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return core.Leaderboard{
		Dimensions: slices.Clone(board.Dimensions),
		Rows:       slices.Clone(rows),
	}
}

// Keys lists the leaderboard keys in rank order.
func Keys(board core.Leaderboard) [][]string {
	out := make([][]string, len(board.Rows))
	for i, r := range board.Rows {
		out[i] = slices.Clone(r.Key)
	}
	return out
}
