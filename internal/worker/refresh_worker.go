package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vahan/internal/amqp"
	"vahan/internal/metrics"
)

// Refresher is the part of the report service the worker drives.
type Refresher interface {
	Invalidate(ctx context.Context) int
	Warm(ctx context.Context) error
}

// RefreshWorker keeps the report cache in step with the registration store
type RefreshWorker struct {
	reports Refresher
	metrics *metrics.Metrics
}

func NewRefreshWorker(reports Refresher, m *metrics.Metrics) *RefreshWorker {
	return &RefreshWorker{
		reports: reports,
		metrics: m,
	}
}

// HandleDatasetLoaded processes a single dataset-loaded message from AMQP.
// Returning an error makes the consumer requeue the message once.
func (w *RefreshWorker) HandleDatasetLoaded(ctx context.Context, msg *amqp.DatasetLoadedMessage) error {
	slog.InfoContext(ctx, "Processing dataset loaded message",
		"source", msg.Source,
		"import_id", msg.ImportID,
		"rows", msg.Rows)

	if err := w.refresh(ctx); err != nil {
		w.record("error")
		return fmt.Errorf("refresh after import %d: %w", msg.ImportID, err)
	}
	w.record("ok")

	slog.InfoContext(ctx, "Report cache refreshed",
		"source", msg.Source,
		"import_id", msg.ImportID,
		"lag", time.Since(msg.Timestamp).Round(time.Millisecond))
	return nil
}

// StartupWarm loads the dataset once before traffic arrives. A failure is
// logged and left to the first request to retry.
func (w *RefreshWorker) StartupWarm(ctx context.Context) {
	if err := w.reports.Warm(ctx); err != nil {
		slog.WarnContext(ctx, "Initial dataset load failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "Initial dataset loaded")
}

// PeriodicRefresh invalidates and reloads the dataset every interval until ctx
// is done. It serves sources whose identity cannot reflect remote edits.
func (w *RefreshWorker) PeriodicRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.refresh(ctx); err != nil {
				w.record("error")
				slog.ErrorContext(ctx, "Periodic dataset refresh failed", "error", err)
				continue
			}
			w.record("ok")
		}
	}
}

func (w *RefreshWorker) refresh(ctx context.Context) error {
	n := w.reports.Invalidate(ctx)
	slog.DebugContext(ctx, "Dropped cached datasets", "entries", n)
	return w.reports.Warm(ctx)
}

func (w *RefreshWorker) record(outcome string) {
	if w.metrics != nil {
		w.metrics.RefreshesHandled.WithLabelValues(outcome).Inc()
	}
}
