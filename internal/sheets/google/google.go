package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"finease/internal/core"
	"finease/internal/log"
	"finease/internal/resilience"
	ports "finease/internal/sheets"

	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var _ ports.LedgerWriter = (*Client)(nil)

// ErrUnavailable is returned while the circuit breaker rejects calls.
var ErrUnavailable = errors.New("google sheets temporarily unavailable")

type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	Retry           resilience.Config
	// ClientOptions replace the credential options, e.g. to target a test endpoint.
	ClientOptions []goption.ClientOption
	// Errors counts failed API calls; optional.
	Errors ErrorCounter
}

type ErrorCounter interface {
	IncrExternalError(service string)
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	retry         resilience.Config
	breaker       *gobreaker.CircuitBreaker
	errCounter    ErrorCounter
	logger        *log.Logger

	// rowsMu is held from reading the rows to writing one; row indexes are
	// only valid in between.
	rowsMu sync.Mutex

	mu            sync.Mutex
	sheetID       int64
	sheetIDLoaded bool
	headerChecked bool
}

// New creates a ledger client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if opts.SheetName == "" {
		opts.SheetName = "Transactions"
	}
	if opts.Retry == (resilience.Config{}) {
		opts.Retry = resilience.DefaultConfig()
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentSheets)

	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 {
		creds, err := credentials(opts)
		if err != nil {
			return nil, err
		}
		clientOpts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets ledger ready", "sheet", opts.SheetName)

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheet:         opts.SheetName,
		retry:         opts.Retry,
		errCounter:    opts.Errors,
		logger:        logger,
		breaker: resilience.NewCircuitBreaker("google-sheets", func(name string, from, to gobreaker.State) {
			logger.Warn("Sheets circuit breaker state changed", "from", from.String(), "to", to.String())
		}),
	}, nil
}

func credentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		return []byte(opts.CredentialsJSON), nil
	case strings.TrimSpace(opts.CredentialsFile) != "":
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials")
}

// Upsert writes t to its row, appending a new row when the ID is not present.
// A row already at t.Version or newer is left alone.
func (c *Client) Upsert(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", &resilience.Permanent{Err: fmt.Errorf("validation failed: %w", err)}
	}
	if err := c.ensureHeader(ctx); err != nil {
		return "", err
	}

	c.rowsMu.Lock()
	defer c.rowsMu.Unlock()

	values, err := c.readRows(ctx)
	if err != nil {
		return "", err
	}
	row := findRow(values, t.ID)
	if row > 0 {
		if existing, perr := parseRow(values[row-1]); perr == nil && existing.Version >= t.Version {
			return c.rowRange(row), nil
		}
		ref := c.rowRange(row)
		vr := &gsheet.ValueRange{Values: [][]any{transactionRow(t)}}
		err := c.call(ctx, func() error {
			_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref, vr).
				ValueInputOption("RAW").Context(ctx).Do()
			return err
		})
		if err != nil {
			return "", fmt.Errorf("update %s: %w", ref, err)
		}
		return ref, nil
	}

	rng := fmt.Sprintf("%s!A:%s", c.sheet, lastCol)
	vr := &gsheet.ValueRange{Values: [][]any{transactionRow(t)}}
	var ref string
	err = c.call(ctx, func() error {
		resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return err
		}
		if resp.Updates != nil {
			ref = resp.Updates.UpdatedRange
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.sheet, err)
	}
	if ref == "" {
		ref = c.rowRange(len(values) + 1)
	}
	return ref, nil
}

// Remove deletes the row holding id. A missing row is not an error.
func (c *Client) Remove(ctx context.Context, id string) error {
	c.rowsMu.Lock()
	defer c.rowsMu.Unlock()

	values, err := c.readRows(ctx)
	if err != nil {
		return err
	}
	row := findRow(values, id)
	if row == 0 {
		return nil
	}
	sheetID, err := c.lookupSheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
				},
			},
		}},
	}
	err = c.call(ctx, func() error {
		_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete row %d: %w", row, err)
	}
	return nil
}

func (c *Client) readRows(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:%s", c.sheet, lastCol)
	var values [][]any
	err := c.call(ctx, func() error {
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return err
		}
		values = resp.Values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return values, nil
}

func (c *Client) ensureHeader(ctx context.Context) error {
	c.mu.Lock()
	done := c.headerChecked
	c.mu.Unlock()
	if done {
		return nil
	}

	rng := fmt.Sprintf("%s!A1:%s1", c.sheet, lastCol)
	err := c.call(ctx, func() error {
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return err
		}
		if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
			return nil
		}
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
			ValueInputOption("RAW").Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure header: %w", err)
	}
	c.mu.Lock()
	c.headerChecked = true
	c.mu.Unlock()
	return nil
}

func (c *Client) lookupSheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	if c.sheetIDLoaded {
		id := c.sheetID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var id int64
	err := c.call(ctx, func() error {
		ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
		if err != nil {
			return err
		}
		for _, s := range ss.Sheets {
			if s.Properties != nil && s.Properties.Title == c.sheet {
				id = s.Properties.SheetId
				return nil
			}
		}
		return &resilience.Permanent{Err: fmt.Errorf("sheet %q not found", c.sheet)}
	})
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.sheetID, c.sheetIDLoaded = id, true
	c.mu.Unlock()
	return id, nil
}

// call runs fn through the circuit breaker with retries. Client errors other
// than 429 are not retried.
func (c *Client) call(ctx context.Context, fn func() error) error {
	return resilience.RetryWithBackoff(ctx, c.retry, func() error {
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, fn()
		})
		if err != nil && c.errCounter != nil {
			c.errCounter.IncrExternalError("google_sheets")
		}
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return &resilience.Permanent{Err: ErrUnavailable}
		case isPermanent(err):
			var perm *resilience.Permanent
			if errors.As(err, &perm) {
				return err
			}
			return &resilience.Permanent{Err: err}
		}
		c.logger.WarnContext(ctx, "Sheets call failed, retrying", log.FieldError, err)
		return err
	})
}

func isPermanent(err error) bool {
	var perm *resilience.Permanent
	if errors.As(err, &perm) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != http.StatusTooManyRequests
	}
	return false
}

func (c *Client) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", c.sheet, row, lastCol, row)
}
