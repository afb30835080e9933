package analytics

import (
	"time"

	"vahan/internal/core"
)

// DateRange is a closed interval [Start, End].
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether Start <= t <= End.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Filter keeps records inside r whose category and manufacturer appear in the
// given allow-lists. A nil or empty allow-list does not restrict its
// dimension: an empty selection means the user cleared the filter.
func Filter(records []core.Record, r DateRange, categories, manufacturers []string) []core.Record {
	cats := allowList(categories)
	makers := allowList(manufacturers)

	out := make([]core.Record, 0, len(records))
	for _, rec := range records {
		if !r.Contains(rec.Date) {
			continue
		}
		if cats != nil {
			if _, ok := cats[rec.VehicleCategory]; !ok {
				continue
			}
		}
		if makers != nil {
			if _, ok := makers[rec.Manufacturer]; !ok {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

// Bounds returns the earliest and latest month present in records.
func Bounds(records []core.Record) (DateRange, bool) {
	if len(records) == 0 {
		return DateRange{}, false
	}
	r := DateRange{Start: records[0].Date, End: records[0].Date}
	for _, rec := range records[1:] {
		if rec.Date.Before(r.Start) {
			r.Start = rec.Date
		}
		if rec.Date.After(r.End) {
			r.End = rec.Date
		}
	}
	return r, true
}

func allowList(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
