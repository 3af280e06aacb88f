// Package google implements the sheets ports on the Google Sheets API.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	gauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

const defaultSheetName = "Transactions"

var _ ports.TransactionAppender = (*Client)(nil)

var (
	ErrMissingSpreadsheetID = errors.New("missing spreadsheet id")
	ErrMissingCredentials   = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	ErrNotInitialized       = errors.New("sheets service not initialized")
)

// Config selects the spreadsheet and the service account used to write it.
// SheetName is a base name; rows land in "<year> <SheetName>" by transaction
// year.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger
	now           func() time.Time

	// prepared remembers sheets that exist and carry a header.
	mu       sync.Mutex
	prepared map[string]bool
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, ErrMissingSpreadsheetID
	}
	if logger == nil {
		logger = log.FromContext(ctx)
	}
	logger = logger.WithComponent(log.ComponentSheets)

	svc, err := newSheetsService(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, cfg, logger), nil
}

func newClient(svc *gsheet.Service, cfg Config, logger *log.Logger) *Client {
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = defaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		sheetBase:     base,
		logger:        logger,
		now:           time.Now,
		prepared:      map[string]bool{},
	}
}

// credentialsJSON resolves inline JSON, then the configured file, then
// GOOGLE_APPLICATION_CREDENTIALS.
func credentialsJSON(cfg Config) ([]byte, error) {
	if s := strings.TrimSpace(cfg.ServiceAccountJSON); s != "" {
		return []byte(s), nil
	}
	path := strings.TrimSpace(cfg.ServiceAccountFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, ErrMissingCredentials
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

func newSheetsService(ctx context.Context, cfg Config, logger *log.Logger) (*gsheet.Service, error) {
	creds, err := credentialsJSON(cfg)
	if err != nil {
		return nil, err
	}

	credentials, err := gauth.CredentialsFromJSON(ctx, creds, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	logger.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"project_id", credentials.ProjectID,
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx, goption.WithCredentials(credentials))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendTransaction appends one row for t to the sheet of t's year and
// returns the updated A1 range.
func (c *Client) AppendTransaction(ctx context.Context, action string, t core.TransactionWithDetails) (string, error) {
	if c.svc == nil {
		return "", ErrNotInitialized
	}
	if strings.TrimSpace(t.ID) == "" {
		return "", errors.New("transaction id is required")
	}

	sheet := yearPrefixedName(c.sheetBase, t.Date.Year())
	if err := c.prepare(ctx, sheet); err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A:%s", quoteSheet(sheet), lastColumn)
	vr := &gsheet.ValueRange{Values: [][]any{transactionRow(action, t, c.now())}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Appended transaction row",
		log.FieldTransactionID, t.ID,
		log.FieldOperation, action,
		"range", ref)
	return ref, nil
}

// prepare creates sheet when missing and writes the header into an empty one.
func (c *Client) prepare(ctx context.Context, sheet string) error {
	c.mu.Lock()
	done := c.prepared[sheet]
	c.mu.Unlock()
	if done {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	if !hasSheet(ss, sheet) {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
		}}}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add sheet %s: %w", sheet, err)
		}
		c.logger.InfoContext(ctx, "Created sheet", "sheet", sheet)
	}

	headerRange := fmt.Sprintf("%s!A1:%s1", quoteSheet(sheet), lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", sheet, err)
	}
	if len(resp.Values) == 0 {
		vr := &gsheet.ValueRange{Values: [][]any{Header}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, headerRange, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write header of %s: %w", sheet, err)
		}
	}

	c.mu.Lock()
	c.prepared[sheet] = true
	c.mu.Unlock()
	return nil
}

func hasSheet(ss *gsheet.Spreadsheet, title string) bool {
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return true
		}
	}
	return false
}
