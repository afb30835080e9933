package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Overview is the headline block of the dashboard for the latest month of a
// series.
type Overview struct {
	HasData       bool
	Date          time.Time
	Registrations int64
	AvgYoY        decimal.NullDecimal
	AvgQoQ        decimal.NullDecimal
}

// ShareRow is one group's slice of the latest month.
type ShareRow struct {
	Key           []string
	Date          time.Time
	Registrations int64
	SharePct      decimal.NullDecimal
}

// Options describes the values available for filtering a dataset.
type Options struct {
	Categories    []string
	Manufacturers []string
	MinDate       time.Time
	MaxDate       time.Time
	HasData       bool
}
