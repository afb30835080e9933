// Package sources defines the ports through which raw registration tables
// enter the system, plus helpers shared by the tabular adapters.
package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"vahan/internal/core"
)

// Ports for inbound adapters.
type (
	RecordReader interface {
		// ReadRecords returns the whole raw table.
		ReadRecords(ctx context.Context) ([]core.RawRecord, error)
	}

	// Identifier names the current content of a source. Two calls return the
	// same identity only if the table did not change in between, as far as
	// the adapter can tell.
	Identifier interface {
		Identity(ctx context.Context) (string, error)
	}

	Source interface {
		RecordReader
		Identifier
	}

	RecordWriter interface {
		WriteRecords(ctx context.Context, records []core.Record) error
	}
)

var ErrNoCandidate = errors.New("no data file found")

// FirstExisting returns the first path that exists as a regular file. Empty
// entries are skipped.
func FirstExisting(paths []string) (string, error) {
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w (tried %s)", ErrNoCandidate, strings.Join(paths, ", "))
}

// FileIdentity identifies a file by path, modification time and size.
func FileIdentity(kind, path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	return fmt.Sprintf("%s:%s:%d:%d", kind, path, st.ModTime().UnixNano(), st.Size()), nil
}
