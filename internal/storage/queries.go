package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Registration struct {
	ID              int64
	ImportID        int64
	Date            string
	VehicleCategory string
	Manufacturer    string
	Registrations   int64
}

const createImport = `
INSERT INTO imports (source, row_count, imported_at)
VALUES (?, ?, ?)
RETURNING id
`

type CreateImportParams struct {
	Source     string
	RowCount   int64
	ImportedAt int64
}

func (q *Queries) CreateImport(ctx context.Context, arg CreateImportParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createImport, arg.Source, arg.RowCount, arg.ImportedAt)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const deleteRegistrations = `DELETE FROM registrations`

func (q *Queries) DeleteRegistrations(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteRegistrations)
	return err
}

const insertRegistration = `
INSERT INTO registrations (import_id, date, vehicle_category, manufacturer, registrations)
VALUES (?, ?, ?, ?, ?)
`

type InsertRegistrationParams struct {
	ImportID        int64
	Date            string
	VehicleCategory string
	Manufacturer    string
	Registrations   int64
}

func (q *Queries) InsertRegistration(ctx context.Context, arg InsertRegistrationParams) error {
	_, err := q.db.ExecContext(ctx, insertRegistration,
		arg.ImportID, arg.Date, arg.VehicleCategory, arg.Manufacturer, arg.Registrations)
	return err
}

const listRegistrations = `
SELECT id, import_id, date, vehicle_category, manufacturer, registrations
FROM registrations
ORDER BY id
`

func (q *Queries) ListRegistrations(ctx context.Context) ([]Registration, error) {
	rows, err := q.db.QueryContext(ctx, listRegistrations)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Registration
	for rows.Next() {
		var i Registration
		if err := rows.Scan(&i.ID, &i.ImportID, &i.Date, &i.VehicleCategory, &i.Manufacturer, &i.Registrations); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getLastImport = `
SELECT id, source, row_count, imported_at
FROM imports
ORDER BY id DESC
LIMIT 1
`

type ImportRow struct {
	ID         int64
	Source     string
	RowCount   int64
	ImportedAt int64
}

func (q *Queries) GetLastImport(ctx context.Context) (ImportRow, error) {
	row := q.db.QueryRowContext(ctx, getLastImport)
	var i ImportRow
	err := row.Scan(&i.ID, &i.Source, &i.RowCount, &i.ImportedAt)
	return i, err
}

const countRegistrations = `SELECT COUNT(*) FROM registrations`

func (q *Queries) CountRegistrations(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countRegistrations)
	var n int64
	err := row.Scan(&n)
	return n, err
}
