package sources

import (
	"errors"
	"fmt"
	"strings"

	"vahan/internal/core"
)

// Canonical column names of the registration table.
const (
	ColDate          = "date"
	ColCategory      = "vehicle_category"
	ColManufacturer  = "manufacturer"
	ColRegistrations = "registrations"
)

// Header is the canonical header, in the order writers emit it.
var Header = []string{ColDate, ColCategory, ColManufacturer, ColRegistrations}

var ErrMissingColumn = errors.New("missing required column")

// Columns holds the position of each canonical column in a source header.
type Columns struct {
	Date, Category, Manufacturer, Registrations int
}

// MapHeader locates the canonical columns in a header row. Matching ignores
// case, surrounding spaces and a leading byte order mark.
func MapHeader(header []string) (Columns, error) {
	cols := Columns{Date: -1, Category: -1, Manufacturer: -1, Registrations: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case ColDate:
			cols.Date = i
		case ColCategory:
			cols.Category = i
		case ColManufacturer:
			cols.Manufacturer = i
		case ColRegistrations:
			cols.Registrations = i
		}
	}

	var missing []string
	if cols.Date < 0 {
		missing = append(missing, ColDate)
	}
	if cols.Category < 0 {
		missing = append(missing, ColCategory)
	}
	if cols.Manufacturer < 0 {
		missing = append(missing, ColManufacturer)
	}
	if cols.Registrations < 0 {
		missing = append(missing, ColRegistrations)
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("%w: %s; got header=%v", ErrMissingColumn, strings.Join(missing, ","), header)
	}
	return cols, nil
}

// Row converts one data row. Short rows yield empty cells.
func (c Columns) Row(row []string) core.RawRecord {
	return core.RawRecord{
		Date:            safeGet(row, c.Date),
		VehicleCategory: safeGet(row, c.Category),
		Manufacturer:    safeGet(row, c.Manufacturer),
		Registrations:   safeGet(row, c.Registrations),
	}
}

// Rows converts a values matrix whose first row is the header. Blank rows
// are skipped.
func Rows(values [][]string) ([]core.RawRecord, error) {
	if len(values) == 0 {
		return []core.RawRecord{}, nil
	}
	cols, err := MapHeader(values[0])
	if err != nil {
		return nil, err
	}
	out := make([]core.RawRecord, 0, len(values)-1)
	for _, row := range values[1:] {
		if blank(row) {
			continue
		}
		out = append(out, cols.Row(row))
	}
	return out, nil
}

func safeGet(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
