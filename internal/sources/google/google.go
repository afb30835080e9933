// Package google reads registration tables from a Google Sheets range.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"vahan/internal/core"
	applog "vahan/internal/log"
	"vahan/internal/sources"
)

const DefaultRange = "Registrations!A:D"

type Config struct {
	SpreadsheetID string
	// Range in A1 notation; the first row must be the header.
	Range string
	// Inline service account JSON; takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	rng           string
}

// Ensure interface conformance
var _ sources.Source = (*Client)(nil)

// New creates a Sheets client. When opts is empty the service account from
// cfg is used; otherwise opts are passed to the Sheets service unchanged.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	rng := strings.TrimSpace(cfg.Range)
	if rng == "" {
		rng = DefaultRange
	}

	if len(opts) == 0 {
		creds, err := credentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	applog.FromContext(ctx).WithComponent(applog.ComponentSource).InfoContext(ctx, "Google Sheets source ready", "spreadsheet_id", id, "range", rng)
	return &Client{svc: svc, spreadsheetID: id, rng: rng}, nil
}

// credentials resolves service account JSON from the config, falling back to
// GOOGLE_APPLICATION_CREDENTIALS.
func credentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		applog.FromContext(ctx).WithComponent(applog.ComponentSource).DebugContext(ctx, "Using inline service account credentials", "json_length", len(inline))
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		applog.FromContext(ctx).WithComponent(applog.ComponentSource).DebugContext(ctx, "Read service account credentials", "path", file, "size", len(data))
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Identity names the spreadsheet range. Sheets exposes no cheap change
// marker, so freshness relies on cache expiry and explicit invalidation.
func (c *Client) Identity(_ context.Context) (string, error) {
	return fmt.Sprintf("sheets:%s:%s", c.spreadsheetID, c.rng), nil
}

func (c *Client) ReadRecords(ctx context.Context) ([]core.RawRecord, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.rng, err)
	}
	records, err := parseValues(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", c.rng, err)
	}
	applog.FromContext(ctx).WithComponent(applog.ComponentSource).DebugContext(ctx, "Read Sheets registrations", "range", c.rng, "rows", len(records))
	return records, nil
}

func parseValues(values [][]interface{}) ([]core.RawRecord, error) {
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = toStrings(row)
	}
	return sources.Rows(rows)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}
