// Package core holds the registration data model and the normalizer that
// turns loader rows into canonical records.
//
// Normalization is tolerant about counts and strict about dates: a count that
// cannot be read becomes zero, a date that cannot be read fails the whole
// table.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order. Only year and month of the result are kept.
var dateLayouts = []string{
	time.DateOnly,
	"2006-1-2",
	"2006-01",
	"2006-1",
	time.RFC3339Nano,
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006/01/02",
	"2006/1/2",
	"2006/01",
	"Jan 2006",
	"January 2006",
	"Jan-2006",
	"January-2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan, 2006",
	"01/02/2006",
	"1/2/2006",
	// Day-first only when month-first is impossible.
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"01/2006",
	"2006.01.02",
	"20060102",
}

// Normalize coerces raw rows into canonical records. The input is not
// modified. A row whose date cannot be interpreted aborts normalization with
// a *ParseError; no partial table is returned.
func Normalize(raw []RawRecord) ([]Record, error) {
	out := make([]Record, 0, len(raw))
	for i, r := range raw {
		month, err := ParseMonth(r.Date)
		if err != nil {
			return nil, &ParseError{Row: i + 1, Field: "date", Value: r.Date, Err: err}
		}
		n, _ := ParseCount(r.Registrations)
		out = append(out, Record{
			Date:            month,
			VehicleCategory: r.VehicleCategory,
			Manufacturer:    r.Manufacturer,
			Registrations:   n,
		})
	}
	return out, nil
}

// NormalizeRecord re-applies the record invariants to an already typed row.
func NormalizeRecord(r Record) Record {
	r.Date = MonthStart(r.Date)
	if r.Registrations < 0 {
		r.Registrations = 0
	}
	return r
}

// ParseMonth interprets s as a date and returns the first day of its month.
func ParseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnparseableDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthStart(t), nil
		}
	}
	return time.Time{}, ErrUnparseableDate
}

// ParseCount reads a registrations cell. It reports false, with a zero count,
// for anything that is not a finite non-negative number. Fractions are
// truncated toward zero.
//
// Examples:
//
//	ParseCount("1,234")  -> 1234, true
//	ParseCount("12.9")   -> 12, true
//	ParseCount("-")      -> 0, false
//	ParseCount("-5")     -> 0, false
func ParseCount(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', '_', ' ', '\u00a0':
			return -1
		}
		return r
	}, s)

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}

	if strings.ContainsAny(s, "xXpP") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, so >= rejects overflow.
	if f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
