package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"vahan/internal/core"
	"vahan/internal/sources"
	"vahan/internal/sources/csvfile"
	"vahan/internal/sources/google"
	"vahan/internal/sources/memory"
	"vahan/internal/sources/xlsx"
	"vahan/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case CSVBackend:
		return f.createFileBackend(config, func(path string) sources.Source {
			return csvfile.Open(path)
		})
	case XLSXBackend:
		return f.createFileBackend(config, func(path string) sources.Source {
			return xlsx.Open(path, config.XLSXSheet)
		})
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createFileBackend(config Config, open func(string) sources.Source) (*BackendResult, error) {
	src := &Candidates{paths: config.DataPaths, open: open}
	if path, err := sources.FirstExisting(config.DataPaths); err == nil {
		f.logger.Info("Initialized file backend", "type", config.Type, "path", path)
	} else {
		// Not fatal: a file may appear later, e.g. after the loader runs.
		f.logger.Warn("No data file present yet", "type", config.Type, "error", err)
	}

	return &BackendResult{
		Source: src,
		Name:   strings.Join(config.DataPaths, ","),
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Source:  sqliteRepo,
		Name:    config.SQLiteDBPath,
		Store:   sqliteRepo,
		Cleanup: sqliteRepo.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := google.New(ctx, google.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		Range:           config.GoogleSheetRange,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "range", config.GoogleSheetRange)

	return &BackendResult{
		Source: cli,
		Name:   "sheets:" + config.GoogleSpreadsheetID,
		Polled: true,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data" // Default directory
	}

	store := memory.NewFromDir(dataDir)

	f.logger.Info("Initialized memory backend", "data_directory", dataDir, "rows", store.Len())

	return &BackendResult{
		Source: store,
		Name:   "memory",
	}, nil
}

// Candidates reads the first existing file of a list, re-resolving on every
// call so that a higher priority file takes over as soon as it appears.
type Candidates struct {
	paths []string
	open  func(path string) sources.Source
}

func (c *Candidates) resolve() (sources.Source, error) {
	path, err := sources.FirstExisting(c.paths)
	if err != nil {
		return nil, err
	}
	return c.open(path), nil
}

func (c *Candidates) Identity(ctx context.Context) (string, error) {
	src, err := c.resolve()
	if err != nil {
		return "", err
	}
	return src.Identity(ctx)
}

func (c *Candidates) ReadRecords(ctx context.Context) ([]core.RawRecord, error) {
	src, err := c.resolve()
	if err != nil {
		return nil, err
	}
	return src.ReadRecords(ctx)
}
