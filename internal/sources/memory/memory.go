// Package memory holds a registration table in process memory.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"vahan/internal/core"
	"vahan/internal/sources"
	"vahan/internal/sources/csvfile"
)

// SampleFile is the seed table looked up by NewFromDir.
const SampleFile = "sample_registrations.csv"

type Store struct {
	mu      sync.Mutex
	version uint64
	items   []core.RawRecord
}

// Ensure interface conformance
var (
	_ sources.Source       = (*Store)(nil)
	_ sources.RecordWriter = (*Store)(nil)
)

func New(records []core.RawRecord) *Store {
	return &Store{items: slices.Clone(records)}
}

// NewFromDir seeds the store from SampleFile in base. A missing or unreadable
// sample leaves the store empty.
func NewFromDir(base string) *Store {
	path := filepath.Join(base, SampleFile)
	if _, err := os.Stat(path); err != nil {
		return New(nil)
	}
	records, err := csvfile.Open(path).ReadRecords(context.Background())
	if err != nil {
		slog.Warn("Ignoring unreadable sample data", "path", path, "error", err)
		return New(nil)
	}
	return New(records)
}

// Replace swaps the whole table and bumps the version.
func (s *Store) Replace(records []core.RawRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.Clone(records)
	s.version++
}

// WriteRecords implements sources.RecordWriter.
func (s *Store) WriteRecords(_ context.Context, records []core.Record) error {
	raw := make([]core.RawRecord, len(records))
	for i, r := range records {
		raw[i] = r.Raw()
	}
	s.Replace(raw)
	return nil
}

func (s *Store) ReadRecords(_ context.Context) ([]core.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items), nil
}

func (s *Store) Identity(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("memory:%p:%d", s, s.version), nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
