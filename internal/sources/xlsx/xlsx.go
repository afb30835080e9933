// Package xlsx reads registration tables from Excel workbooks.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"vahan/internal/core"
	applog "vahan/internal/log"
	"vahan/internal/sources"
)

const defaultSheet = "Sheet1"

var ErrSheetNotFound = errors.New("sheet not found")

type Workbook struct {
	path  string
	sheet string
}

// Ensure interface conformance
var (
	_ sources.Source       = (*Workbook)(nil)
	_ sources.RecordWriter = (*Workbook)(nil)
)

// Open returns a workbook source. An empty sheet selects the first sheet.
func Open(path, sheet string) *Workbook {
	return &Workbook{path: path, sheet: strings.TrimSpace(sheet)}
}

func (w *Workbook) Identity(_ context.Context) (string, error) {
	id, err := sources.FileIdentity("xlsx", w.path)
	if err != nil {
		return "", err
	}
	return id + ":" + w.sheet, nil
}

func (w *Workbook) ReadRecords(ctx context.Context) ([]core.RawRecord, error) {
	wb, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheet, err := pickSheet(wb, w.sheet)
	if err != nil {
		return nil, err
	}
	// Raw values keep date cells as serial numbers instead of text in the
	// cell's display format.
	rows, err := wb.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	records, err := sources.Rows(rows)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}

	date1904 := false
	if props, err := wb.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	for i := range records {
		records[i].Date = serialDate(records[i].Date, date1904)
	}
	applog.FromContext(ctx).WithComponent(applog.ComponentSource).DebugContext(ctx, "Read XLSX registrations",
		"path", w.path, "sheet", sheet, applog.FieldRows, len(records))
	return records, nil
}

// maxSerial is 9999-12-31, the last date Excel can represent.
const maxSerial = 2958465

// serialDate renders an Excel date serial as 2006-01-02. Any other text is
// returned unchanged.
func serialDate(cell string, date1904 bool) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || v < 1 || v > maxSerial {
		return cell
	}
	t, err := excelize.ExcelDateToTime(v, date1904)
	if err != nil {
		return cell
	}
	return t.Format(time.DateOnly)
}

// WriteRecords saves records as a single-sheet workbook under the canonical
// header. Counts are stored as numbers.
func (w *Workbook) WriteRecords(_ context.Context, records []core.Record) error {
	wb := excelize.NewFile()
	defer wb.Close()

	sheet := w.sheet
	if sheet == "" {
		sheet = defaultSheet
	}
	if sheet != defaultSheet {
		idx, err := wb.NewSheet(sheet)
		if err != nil {
			return fmt.Errorf("create sheet: %w", err)
		}
		wb.SetActiveSheet(idx)
		if err := wb.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("drop default sheet: %w", err)
		}
	}

	header := make([]any, len(sources.Header))
	for i, h := range sources.Header {
		header[i] = h
	}
	if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.Date.Format("2006-01-02"), r.VehicleCategory, r.Manufacturer, r.Registrations}
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := wb.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func pickSheet(wb *excelize.File, want string) (string, error) {
	list := wb.GetSheetList()
	if len(list) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", ErrSheetNotFound)
	}
	if want == "" {
		return list[0], nil
	}
	if i := slices.IndexFunc(list, func(s string) bool { return strings.EqualFold(s, want) }); i >= 0 {
		return list[i], nil
	}
	return "", fmt.Errorf("%w: %q (have %v)", ErrSheetNotFound, want, list)
}
