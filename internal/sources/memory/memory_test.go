package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vahan/internal/core"
)

func TestStoreReplaceBumpsIdentity(t *testing.T) {
	ctx := context.Background()
	s := New([]core.RawRecord{{Date: "2023-01-01", VehicleCategory: "2W", Manufacturer: "Acme", Registrations: "1"}})

	before, err := s.Identity(ctx)
	require.NoError(t, err)
	again, _ := s.Identity(ctx)
	assert.Equal(t, before, again)

	s.Replace(nil)
	after, _ := s.Identity(ctx)
	assert.NotEqual(t, before, after)
	assert.Equal(t, 0, s.Len())
}

func TestStoreReadReturnsCopy(t *testing.T) {
	s := New([]core.RawRecord{{Manufacturer: "Acme"}})
	got, err := s.ReadRecords(context.Background())
	require.NoError(t, err)
	got[0].Manufacturer = "changed"

	again, _ := s.ReadRecords(context.Background())
	assert.Equal(t, "Acme", again[0].Manufacturer)
}

func TestStoreWriteRecords(t *testing.T) {
	s := New(nil)
	rec := core.Record{Date: time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), VehicleCategory: "4W", Manufacturer: "Bolt", Registrations: 9}
	require.NoError(t, s.WriteRecords(context.Background(), []core.Record{rec}))

	got, _ := s.ReadRecords(context.Background())
	assert.Equal(t, []core.RawRecord{{Date: "2023-04-01", VehicleCategory: "4W", Manufacturer: "Bolt", Registrations: "9"}}, got)
}

func TestNewFromDir(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, 0, NewFromDir(dir).Len())

	data := "date,vehicle_category,manufacturer,registrations\n2023-01-01,2W,Acme,5\n2023-02-01,2W,Acme,6\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, SampleFile), []byte(data), 0o644))
	assert.Equal(t, 2, NewFromDir(dir).Len())
}
