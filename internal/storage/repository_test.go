package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vahan/internal/core"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "vahan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestEmptyRepository(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	raw, err := repo.ReadRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, raw)

	_, ok, err := repo.LastImport(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := repo.Identity(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, ":0"))
	require.NoError(t, repo.Ping(ctx))
}

func TestImportReplacesTable(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	first := []core.Record{
		{Date: month(2023, 1), VehicleCategory: "2W", Manufacturer: "Acme", Registrations: 100},
		{Date: month(2023, 2), VehicleCategory: "2W", Manufacturer: "Acme", Registrations: 110},
	}
	imp, err := repo.ImportRecords(ctx, "data/a.csv", first, Append)
	require.NoError(t, err)
	assert.Equal(t, int64(2), imp.Rows)
	idBefore, err := repo.Identity(ctx)
	require.NoError(t, err)

	second := []core.Record{
		{Date: month(2024, 3), VehicleCategory: "4W", Manufacturer: "Bolt", Registrations: 5},
	}
	imp2, err := repo.ImportRecords(ctx, "data/b.xlsx", second, Replace)
	require.NoError(t, err)
	assert.Greater(t, imp2.ID, imp.ID)

	idAfter, err := repo.Identity(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, idBefore, idAfter)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	raw, err := repo.ReadRecords(ctx)
	require.NoError(t, err)
	got, err := core.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	last, ok, err := repo.LastImport(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, imp2.ID, last.ID)
	assert.Equal(t, "data/b.xlsx", last.Source)
	assert.Equal(t, int64(1), last.Rows)
}

func TestReadPreservesLoadOrder(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	records := []core.Record{
		{Date: month(2023, 5), VehicleCategory: "2W", Manufacturer: "Zed", Registrations: 1},
		{Date: month(2023, 1), VehicleCategory: "2W", Manufacturer: "Acme", Registrations: 2},
	}
	_, err := repo.ImportRecords(ctx, "x", records, Append)
	require.NoError(t, err)

	raw, err := repo.ReadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, raw, 2)
	assert.Equal(t, "Zed", raw[0].Manufacturer)
	assert.Equal(t, "2023-05-01", raw[0].Date)
}

func TestImportAppendKeepsRows(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	rec := []core.Record{{Date: month(2023, 1), VehicleCategory: "2W", Manufacturer: "Acme", Registrations: 10}}
	_, err := repo.ImportRecords(ctx, "a", rec, Append)
	require.NoError(t, err)
	_, err = repo.ImportRecords(ctx, "a", rec, Append)
	require.NoError(t, err)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "replace", Replace.String())
	assert.Equal(t, "append", Append.String())
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "vahan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	v, err := Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	v, err = Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	// The caller's connection stays usable.
	require.NoError(t, db.PingContext(ctx))
	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM registrations").Scan(&n))
	assert.Zero(t, n)
}

func TestParseImportMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ImportMode
		wantErr bool
	}{
		{"", Append, false},
		{"append", Append, false},
		{" Replace ", Replace, false},
		{"merge", Append, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseImportMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
