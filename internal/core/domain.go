package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DimCategory     Dimension = "vehicle_category"
	DimManufacturer Dimension = "manufacturer"
)

type (
	// Dimension names a categorical column usable as a grouping key.
	Dimension string

	// RawRecord is one input row as delivered by a loader, every cell as text.
	RawRecord struct {
		Date            string
		VehicleCategory string
		Manufacturer    string
		Registrations   string
	}

	// Record is a normalized registration row. Date is always the first day
	// of its month at 00:00 UTC.
	Record struct {
		Date            time.Time
		VehicleCategory string
		Manufacturer    string
		Registrations   int64
	}

	// Point is one (key, month) cell of an aggregated series. Key holds the
	// values of the series dimensions, in the same order.
	Point struct {
		Key           []string
		Date          time.Time
		Registrations int64
	}

	Series struct {
		Dimensions []Dimension
		Points     []Point
	}

	// GrowthPoint extends a Point with trailing growth percentages. An
	// invalid NullDecimal means "no value".
	GrowthPoint struct {
		Point
		YoY decimal.NullDecimal
		QoQ decimal.NullDecimal
	}

	GrowthSeries struct {
		Dimensions []Dimension
		Points     []GrowthPoint
	}

	// LatestKPI is the row at a group's own latest month.
	LatestKPI struct {
		Key           []string
		Date          time.Time
		Registrations int64
		YoY           decimal.NullDecimal
		QoQ           decimal.NullDecimal
	}

	Leaderboard struct {
		Dimensions []Dimension
		Rows       []LatestKPI
	}
)

var (
	ErrUnknownDimension = errors.New("unknown dimension")
	ErrUnparseableDate  = errors.New("unparseable date")
)

// Dimensions lists every column that can be used as a grouping key.
func Dimensions() []Dimension {
	return []Dimension{DimCategory, DimManufacturer}
}

// ParseDimension accepts a column name or its short alias.
func ParseDimension(s string) (Dimension, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vehicle_category", "category":
		return DimCategory, nil
	case "manufacturer", "maker":
		return DimManufacturer, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
}

func (d Dimension) String() string {
	return string(d)
}

// Value returns the record's value for the given dimension.
func (r Record) Value(d Dimension) (string, bool) {
	switch d {
	case DimCategory:
		return r.VehicleCategory, true
	case DimManufacturer:
		return r.Manufacturer, true
	}
	return "", false
}

// Raw renders the record back into loader form.
func (r Record) Raw() RawRecord {
	return RawRecord{
		Date:            r.Date.Format(time.DateOnly),
		VehicleCategory: r.VehicleCategory,
		Manufacturer:    r.Manufacturer,
		Registrations:   strconv.FormatInt(r.Registrations, 10),
	}
}

// MonthStart truncates t to the first day of its month in UTC. The wall clock
// year and month of t are kept regardless of its location.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseError reports a row that could not be normalized.
type ParseError struct {
	Row   int // 1-based position in the input
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d: %s %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
