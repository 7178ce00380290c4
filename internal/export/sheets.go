package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// SheetsConfig selects the spreadsheet and the service account used to
// write it. Inline JSON wins over the file path.
type SheetsConfig struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// SheetsExporter mirrors report tables into tabs of one spreadsheet.
type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// NewSheetsExporter creates an exporter authenticated with a service account.
func NewSheetsExporter(ctx context.Context, cfg SheetsConfig, opts ...goption.ClientOption) (*SheetsExporter, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if len(opts) == 0 {
		creds, err := serviceAccountJSON(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsExporter{svc: svc, spreadsheetID: id}, nil
}

func serviceAccountJSON(ctx context.Context, cfg SheetsConfig) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	path := strings.TrimSpace(cfg.ServiceAccountFile)
	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case path != "":
		slog.InfoContext(ctx, "Reading service account credentials from file", "path", path)
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
}

// Export replaces the content of the tab named after t.Title, creating the
// tab when it does not exist.
func (e *SheetsExporter) Export(ctx context.Context, t Table) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	tab := SheetName(t.Title)
	if err := e.ensureTab(ctx, tab); err != nil {
		return err
	}

	rng := quoteTab(tab)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", tab, err)
	}

	vr := &gsheet.ValueRange{Values: sheetValues(t)}
	_, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", tab, err)
	}

	slog.InfoContext(ctx, "Exported table to Google Sheets", "tab", tab, "rows", len(t.Rows))
	return nil
}

func (e *SheetsExporter) ensureTab(ctx context.Context, tab string) error {
	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == tab {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", tab, err)
	}
	slog.InfoContext(ctx, "Created spreadsheet tab", "tab", tab)
	return nil
}

func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// sheetValues keeps numbers numeric so the sheet can compute on them.
func sheetValues(t Table) [][]any {
	out := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Name
	}
	out = append(out, header)
	for _, row := range t.Rows {
		vals := make([]any, len(row))
		for i, c := range row {
			switch {
			case c.Empty:
				vals[i] = ""
			case c.Kind == KindInt:
				vals[i] = c.Int
			case c.Kind == KindMoney:
				vals[i] = float64(c.Int) / 100
			case c.Kind == KindPercent:
				vals[i] = c.Float
			case c.Kind == KindBool:
				vals[i] = c.Bool
			default:
				vals[i] = c.Text()
			}
		}
		out = append(out, vals)
	}
	return out
}
