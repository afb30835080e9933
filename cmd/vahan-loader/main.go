// Command vahan-loader normalizes a registrations table from CSV or XLSX and
// either writes it back out in canonical form or imports it into SQLite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vahan/internal/amqp"
	"vahan/internal/cli"
	"vahan/internal/config"
	"vahan/internal/core"
	applog "vahan/internal/log"
	"vahan/internal/metrics"
	"vahan/internal/services"
	"vahan/internal/sources"
	"vahan/internal/sources/csvfile"
	"vahan/internal/sources/xlsx"
	"vahan/internal/storage"
)

const loadTimeout = 5 * time.Minute

func main() {
	var (
		input  = flag.String("input", "", "CSV or XLSX file to load (defaults to the first existing DATA_PATHS entry)")
		sheet  = flag.String("sheet", "", "XLSX sheet name (defaults to XLSX_SHEET or the first sheet)")
		mode   = flag.String("mode", "append", "SQLite import mode: append | replace")
		out    = flag.String("out", "", "write the normalized table to this .csv or .xlsx file instead of importing")
		source = flag.String("source", "", "label recorded with the import (defaults to the input file name)")
	)
	flag.Parse()

	if err := run(*input, *sheet, *mode, *out, *source); err != nil {
		applog.New(applog.Config{Component: applog.ComponentLoader}).Error("Load failed", applog.FieldError, err)
		os.Exit(1)
	}
}

func run(input, sheet, modeFlag, out, source string) error {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentLoader)

	importMode, err := storage.ParseImportMode(modeFlag)
	if err != nil {
		return err
	}
	if input == "" {
		if input, err = sources.FirstExisting(cfg.DataPaths); err != nil {
			return err
		}
	}
	if sheet == "" {
		sheet = cfg.XLSXSheet
	}
	if source == "" {
		source = filepath.Base(input)
	}

	ctx, stop := cli.SignalContext(logger.Logger)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	src, err := openTable(input, sheet)
	if err != nil {
		return err
	}
	logger.Info("Loading registrations", "input", input, applog.FieldSource, source)

	if out != "" {
		return convert(ctx, logger, src, out, sheet)
	}

	repo := cli.InitSQLite(logger.Logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var publisher services.Publisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, running dashboards will pick up the import on their next refresh", applog.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	imp, err := services.NewImportService(repo, publisher, metrics.New()).Import(ctx, source, src, importMode)
	if err != nil {
		return err
	}
	logger.Info("Import complete",
		applog.FieldImportID, imp.ID,
		applog.FieldRows, imp.Rows,
		"mode", importMode.String(),
		"db_path", cfg.SQLiteDBPath)
	return nil
}

// openTable picks a reader by file extension.
func openTable(path, sheet string) (sources.RecordReader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return csvfile.Open(path), nil
	case ".xlsx", ".xlsm":
		return xlsx.Open(path, sheet), nil
	}
	return nil, fmt.Errorf("unsupported input %s: expected .csv or .xlsx", path)
}

func openWriter(path, sheet string) (sources.RecordWriter, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return csvfile.Open(path), nil
	case ".xlsx":
		return xlsx.Open(path, sheet), nil
	}
	return nil, fmt.Errorf("unsupported output %s: expected .csv or .xlsx", path)
}

func convert(ctx context.Context, logger *applog.Logger, src sources.RecordReader, out, sheet string) error {
	w, err := openWriter(out, sheet)
	if err != nil {
		return err
	}
	raw, err := src.ReadRecords(ctx)
	if err != nil {
		return err
	}
	records, err := core.Normalize(raw)
	if err != nil {
		var pe *core.ParseError
		if errors.As(err, &pe) {
			logger.Error("Rejected row", "row", pe.Row, "field", pe.Field, "value", pe.Value)
		}
		return err
	}
	if err := w.WriteRecords(ctx, records); err != nil {
		return err
	}
	logger.Info("Wrote normalized table", "out", out, applog.FieldRows, len(records))
	return nil
}
