package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vahan/internal/amqp"
	"vahan/internal/core"
	"vahan/internal/metrics"
	"vahan/internal/sources"
	"vahan/internal/storage"
)

// Importer persists a normalized table.
type Importer interface {
	ImportRecords(ctx context.Context, source string, records []core.Record, mode storage.ImportMode) (storage.Import, error)
}

// Publisher announces that a dataset changed.
type Publisher interface {
	PublishDatasetLoaded(ctx context.Context, msg *amqp.DatasetLoadedMessage) error
}

// ImportService loads a raw table into storage and notifies consumers
type ImportService struct {
	store     Importer
	publisher Publisher
	metrics   *metrics.Metrics
}

// NewImportService accepts a nil publisher, in which case notifications are
// skipped, and nil metrics.
func NewImportService(store Importer, publisher Publisher, m *metrics.Metrics) *ImportService {
	return &ImportService{
		store:     store,
		publisher: publisher,
		metrics:   m,
	}
}

// Import reads src, normalizes it and stores it under the given source label.
func (s *ImportService) Import(ctx context.Context, name string, src sources.RecordReader, mode storage.ImportMode) (storage.Import, error) {
	if s.store == nil {
		return storage.Import{}, errors.New("import service has no store")
	}

	raw, err := src.ReadRecords(ctx)
	if err != nil {
		return storage.Import{}, fmt.Errorf("read %s: %w", name, err)
	}
	records, err := core.Normalize(raw)
	if err != nil {
		return storage.Import{}, fmt.Errorf("normalize %s: %w", name, err)
	}

	// Store first; the notification is best effort
	imp, err := s.store.ImportRecords(ctx, name, records, mode)
	if err != nil {
		return storage.Import{}, fmt.Errorf("store %s: %w", name, err)
	}
	if s.metrics != nil {
		s.metrics.RowsImported.Add(float64(imp.Rows))
	}
	slog.InfoContext(ctx, "Imported registrations",
		"source", name,
		"import_id", imp.ID,
		"rows", imp.Rows,
		"mode", mode.String())

	if err := s.publish(ctx, imp); err != nil {
		slog.ErrorContext(ctx, "Failed to publish dataset loaded message",
			"import_id", imp.ID, "error", err)
	}
	return imp, nil
}

func (s *ImportService) publish(ctx context.Context, imp storage.Import) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping dataset loaded message")
		return nil
	}
	return s.publisher.PublishDatasetLoaded(ctx, amqp.NewDatasetLoadedMessage(imp.Source, imp.ID, int(imp.Rows)))
}
