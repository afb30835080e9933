package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vahan/internal/core"
	"vahan/internal/sources"

	_ "modernc.org/sqlite"
)

// Import describes one load of the registrations table.
type Import struct {
	ID         int64
	Source     string
	Rows       int64
	ImportedAt time.Time
}

type SQLiteRepository struct {
	path    string
	db      *sql.DB
	queries *Queries
}

// Ensure interface conformance
var (
	_ sources.Source       = (*SQLiteRepository)(nil)
	_ sources.RecordWriter = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		path:    dbPath,
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ImportMode selects what happens to rows already in the store.
type ImportMode int

const (
	// Append keeps existing rows.
	Append ImportMode = iota
	// Replace clears the table first.
	Replace
)

func (m ImportMode) String() string {
	if m == Replace {
		return "replace"
	}
	return "append"
}

// ParseImportMode accepts "append" or "replace".
func ParseImportMode(s string) (ImportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "append":
		return Append, nil
	case "replace":
		return Replace, nil
	}
	return Append, fmt.Errorf("unknown import mode %q: must be append or replace", s)
}

// ImportRecords writes records in a single transaction and logs the load in
// the imports table.
func (r *SQLiteRepository) ImportRecords(ctx context.Context, source string, records []core.Record, mode ImportMode) (Import, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Import{}, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	now := time.Now().UTC()
	id, err := q.CreateImport(ctx, CreateImportParams{
		Source:     source,
		RowCount:   int64(len(records)),
		ImportedAt: now.Unix(),
	})
	if err != nil {
		return Import{}, fmt.Errorf("create import: %w", err)
	}
	if mode == Replace {
		if err := q.DeleteRegistrations(ctx); err != nil {
			return Import{}, fmt.Errorf("clear registrations: %w", err)
		}
	}
	for i, rec := range records {
		err := q.InsertRegistration(ctx, InsertRegistrationParams{
			ImportID:        id,
			Date:            rec.Date.Format(time.DateOnly),
			VehicleCategory: rec.VehicleCategory,
			Manufacturer:    rec.Manufacturer,
			Registrations:   rec.Registrations,
		})
		if err != nil {
			return Import{}, fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Import{}, fmt.Errorf("commit import: %w", err)
	}

	slog.InfoContext(ctx, "Registrations imported into SQLite",
		"import_id", id,
		"source", source,
		"mode", mode.String(),
		"rows", len(records))

	return Import{ID: id, Source: source, Rows: int64(len(records)), ImportedAt: now.Truncate(time.Second)}, nil
}

// WriteRecords implements sources.RecordWriter by replacing the table.
func (r *SQLiteRepository) WriteRecords(ctx context.Context, records []core.Record) error {
	_, err := r.ImportRecords(ctx, "writer", records, Replace)
	return err
}

// ReadRecords implements sources.RecordReader. Rows come back in load order.
func (r *SQLiteRepository) ReadRecords(ctx context.Context) ([]core.RawRecord, error) {
	rows, err := r.queries.ListRegistrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	out := make([]core.RawRecord, len(rows))
	for i, row := range rows {
		out[i] = core.RawRecord{
			Date:            row.Date,
			VehicleCategory: row.VehicleCategory,
			Manufacturer:    row.Manufacturer,
			Registrations:   strconv.FormatInt(row.Registrations, 10),
		}
	}
	return out, nil
}

// Identity implements sources.Identifier. It changes with every import.
func (r *SQLiteRepository) Identity(ctx context.Context) (string, error) {
	last, ok, err := r.LastImport(ctx)
	if err != nil {
		return "", err
	}
	var id int64
	if ok {
		id = last.ID
	}
	return fmt.Sprintf("sqlite:%s:%d", r.path, id), nil
}

// LastImport returns the most recent import, or false when the store was
// never loaded.
func (r *SQLiteRepository) LastImport(ctx context.Context) (Import, bool, error) {
	row, err := r.queries.GetLastImport(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Import{}, false, nil
	}
	if err != nil {
		return Import{}, false, fmt.Errorf("get last import: %w", err)
	}
	return Import{
		ID:         row.ID,
		Source:     row.Source,
		Rows:       row.RowCount,
		ImportedAt: time.Unix(row.ImportedAt, 0).UTC(),
	}, true, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.queries.CountRegistrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
