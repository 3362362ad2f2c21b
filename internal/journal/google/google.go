// Package google mirrors committed transfers into a Google Sheets journal,
// one sheet per year ("2025 Journal").
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"conti/internal/core"
	"conti/internal/ledger"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultSheetName = "Journal"
	attemptColumn    = "B"
)

var _ ledger.JournalWriter = (*Client)(nil)

// Options configure a journal client. Credentials fall back to
// GOOGLE_APPLICATION_CREDENTIALS when neither field is set.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	// attempt ids already written, per sheet; loaded lazily.
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = defaultSheetName
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		seen:          make(map[string]map[string]struct{}),
	}, nil
}

// newSheetsService initializes a Sheets service from service-account
// credentials.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	credentialsJSON := strings.TrimSpace(opts.CredentialsJSON)
	credentialsFile := strings.TrimSpace(opts.CredentialsFile)
	if credentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var raw []byte
	switch {
	case credentialsJSON != "":
		raw = []byte(credentialsJSON)
	case credentialsFile != "":
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		raw = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(raw),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendTransfer writes one journal row. A redelivered transfer already on
// the sheet is not written twice; its attempt id is returned as reference.
func (c *Client) AppendTransfer(ctx context.Context, rec ledger.TransferRecord) (string, error) {
	if strings.TrimSpace(rec.AttemptID) == "" {
		return "", errors.New("validation failed: missing attempt id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := c.sheetFor(rec)
	written, err := c.hasAttempt(ctx, sheet, rec.AttemptID)
	if err != nil {
		return "", err
	}
	if written {
		slog.InfoContext(ctx, "Transfer already journaled", "attempt_id", rec.AttemptID, "sheet", sheet)
		return fmt.Sprintf("%s!%s", sheet, rec.AttemptID), nil
	}

	vr := &gsheet.ValueRange{Values: [][]any{journalRow(rec)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A:J", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	c.remember(sheet, rec.AttemptID)

	ref := sheet
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

func (c *Client) sheetFor(rec ledger.TransferRecord) string {
	if rec.CreatedAt.IsZero() {
		return c.sheetBase
	}
	return yearPrefixedName(c.sheetBase, rec.CreatedAt.UTC().Year())
}

func (c *Client) hasAttempt(ctx context.Context, sheet, attemptID string) (bool, error) {
	c.mu.Lock()
	ids, loaded := c.seen[sheet]
	c.mu.Unlock()

	if !loaded {
		col, err := c.readCol(ctx, sheet, attemptColumn+":"+attemptColumn)
		if err != nil {
			return false, err
		}
		ids = make(map[string]struct{}, len(col))
		for _, id := range col {
			ids[id] = struct{}{}
		}
		c.mu.Lock()
		c.seen[sheet] = ids
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[sheet][attemptID]
	return ok, nil
}

func (c *Client) remember(sheet, attemptID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[sheet] == nil {
		c.seen[sheet] = make(map[string]struct{})
	}
	c.seen[sheet][attemptID] = struct{}{}
}

func (c *Client) readCol(ctx context.Context, sheetName, col string) ([]string, error) {
	rng := fmt.Sprintf("%s!%s", sheetName, col)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return columnValues(resp.Values), nil
}

// columnValues flattens the first cell of each row, skipping blanks and
// comment rows.
func columnValues(rows [][]any) []string {
	var out []string
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" || strings.HasPrefix(v, "#") {
			continue
		}
		out = append(out, v)
	}
	return out
}

// journalRow lays out a transfer as
// committed | attempt | source | destination | source delta | destination delta | fee | profit | mode | memo.
func journalRow(rec ledger.TransferRecord) []any {
	committed := ""
	if !rec.CreatedAt.IsZero() {
		committed = rec.CreatedAt.UTC().Format("2006-01-02 15:04:05")
	}
	return []any{
		committed,
		rec.AttemptID,
		string(rec.SourceKind) + "/" + rec.SourceID,
		string(rec.DestinationKind) + "/" + rec.DestinationID,
		core.FormatAmount(rec.SourceDelta),
		core.FormatAmount(rec.DestinationDelta),
		core.FormatAmount(rec.Fee),
		core.FormatAmount(rec.RealizedProfit),
		string(rec.Mode),
		rec.Memo,
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
