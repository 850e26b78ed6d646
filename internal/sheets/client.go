// Package sheets mirrors ledger records into a Google Sheets spreadsheet,
// one row per expense keyed by the expense id in column A.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/cache"
	"ledger/internal/core"
)

// sheetIDTTL bounds how long a resolved tab id is reused.
const sheetIDTTL = 10 * time.Minute

// Header is the first row of the mirror sheet.
var Header = []any{"ID", "User", "Date", "Title", "Category", "Amount", "Description", "Updated At"}

type Config struct {
	SpreadsheetID string
	SheetName     string
	// ServiceAccountJSON takes precedence over ServiceAccountFile.
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	sheetIDs      *cache.LRU[string, int64]
}

func newClient(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		sheetIDs:      cache.New[string, int64](8, sheetIDTTL),
	}
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Ledger"
	}
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets client ready", "spreadsheet_id", cfg.SpreadsheetID, "sheet", cfg.SheetName)
	return newClient(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// credentials resolves service account JSON from the config, falling back
// to GOOGLE_APPLICATION_CREDENTIALS.
func credentials(cfg Config) ([]byte, error) {
	if s := strings.TrimSpace(cfg.ServiceAccountJSON); s != "" {
		return []byte(s), nil
	}
	path := strings.TrimSpace(cfg.ServiceAccountFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// UpsertExpense rewrites the row holding e.ID, or appends one.
func (c *Client) UpsertExpense(ctx context.Context, e core.Expense) error {
	ids, err := c.idColumn(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if err := c.write(ctx, fmt.Sprintf("%s!A1:H1", c.sheetName), Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		ids = [][]any{Header}
	}

	row := findRow(ids, e.ID)
	if row < 0 {
		vr := &gsheet.ValueRange{Values: [][]any{expenseRow(e)}}
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, fmt.Sprintf("%s!A:H", c.sheetName), vr).
			ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append row for %s: %w", e.ID, err)
		}
		slog.DebugContext(ctx, "Appended expense row", "id", e.ID)
		return nil
	}

	if err := c.write(ctx, fmt.Sprintf("%s!A%d:H%d", c.sheetName, row, row), expenseRow(e)); err != nil {
		return fmt.Errorf("update row %d for %s: %w", row, e.ID, err)
	}
	slog.DebugContext(ctx, "Updated expense row", "id", e.ID, "row", row)
	return nil
}

// DeleteExpense removes the row holding id. A missing row is not an error.
func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	ids, err := c.idColumn(ctx)
	if err != nil {
		return err
	}
	row := findRow(ids, id)
	if row < 0 {
		return nil
	}
	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(row - 1),
			EndIndex:   int64(row),
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d for %s: %w", row, id, err)
	}
	slog.DebugContext(ctx, "Deleted expense row", "id", id, "row", row)
	return nil
}

func (c *Client) idColumn(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) write(ctx context.Context, rng string, row []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

// sheetID resolves the numeric id of the mirror tab, which row deletion
// needs.
func (c *Client) sheetID(ctx context.Context) (int64, error) {
	if id, ok := c.sheetIDs.Get(c.sheetName); ok {
		return id, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheetName {
			c.sheetIDs.Set(c.sheetName, s.Properties.SheetId)
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}

func expenseRow(e core.Expense) []any {
	return []any{
		e.ID,
		e.OwnerID,
		e.Date.String(),
		e.Title,
		e.Category,
		e.Amount.String(),
		e.Description,
		e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// findRow returns the 1-based row whose first cell equals id, skipping the
// header, or -1.
func findRow(values [][]any, id string) int {
	for i := 1; i < len(values); i++ {
		if len(values[i]) == 0 {
			continue
		}
		if fmt.Sprint(values[i][0]) == id {
			return i + 1
		}
	}
	return -1
}
