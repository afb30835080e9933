// Package csvfile reads and writes registration tables stored as CSV files
// with a header row.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"vahan/internal/core"
	applog "vahan/internal/log"
	"vahan/internal/sources"
)

type File struct {
	path string
}

// Ensure interface conformance
var (
	_ sources.Source       = (*File)(nil)
	_ sources.RecordWriter = (*File)(nil)
)

func Open(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// Identity implements sources.Identifier
func (f *File) Identity(_ context.Context) (string, error) {
	return sources.FileIdentity("csv", f.path)
}

// ReadRecords implements sources.RecordReader
func (f *File) ReadRecords(ctx context.Context) ([]core.RawRecord, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer fh.Close()

	records, err := Read(fh)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	applog.FromContext(ctx).WithComponent(applog.ComponentSource).DebugContext(ctx, "Read CSV registrations",
		"path", f.path, applog.FieldRows, len(records))
	return records, nil
}

// WriteRecords implements sources.RecordWriter. The file is replaced
// atomically.
func (f *File) WriteRecords(_ context.Context, records []core.Record) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".registrations-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// Read parses a CSV stream whose first row is the header.
func Read(r io.Reader) ([]core.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	values, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return sources.Rows(values)
}

// Write emits records under the canonical header.
func Write(w io.Writer, records []core.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sources.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		raw := r.Raw()
		if err := cw.Write([]string{raw.Date, raw.VehicleCategory, raw.Manufacturer, raw.Registrations}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
