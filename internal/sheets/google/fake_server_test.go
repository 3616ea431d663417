package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"finease/internal/log"
	"finease/internal/resilience"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets is a tiny in-memory stand-in for the Sheets values API
// holding a single sheet.
type fakeSheets struct {
	mu      sync.Mutex
	rows    [][]any
	failN   int // fail the next failN requests with 503
	status  int // when set, every request fails with this status
	calls   int
	sheetID int64
	// inputOptions records valueInputOption of every write.
	inputOptions []string
	// readDelay holds full-sheet reads after their snapshot is taken.
	readDelay time.Duration
}

var rowRangeRe = regexp.MustCompile(`![A-Z]+(\d+)`)

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "!A:J") && f.readDelay > 0 {
		rows := f.snapshot()
		time.Sleep(f.readDelay)
		writeJSON(w, map[string]any{"values": rows})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.status != 0 {
		writeAPIError(w, f.status)
		return
	}
	if f.failN > 0 {
		f.failN--
		writeAPIError(w, http.StatusServiceUnavailable)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/")
	if opt := r.URL.Query().Get("valueInputOption"); opt != "" {
		f.inputOptions = append(f.inputOptions, opt)
	}
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if d := rq.DeleteDimension; d != nil {
				start, end := int(d.Range.StartIndex), int(d.Range.EndIndex)
				if start < len(f.rows) {
					if end > len(f.rows) {
						end = len(f.rows)
					}
					f.rows = append(f.rows[:start], f.rows[end:]...)
				}
			}
		}
		writeJSON(w, map[string]any{"spreadsheetId": "sheet-1"})
	case strings.HasSuffix(path, ":append"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.rows = append(f.rows, vr.Values...)
		n := len(f.rows)
		writeJSON(w, map[string]any{"updates": map[string]any{"updatedRange": "Transactions!A" + strconv.Itoa(n) + ":J" + strconv.Itoa(n)}})
	case strings.Contains(path, "/values/") && r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		m := rowRangeRe.FindStringSubmatch(path)
		row, _ := strconv.Atoi(m[1])
		for len(f.rows) < row {
			f.rows = append(f.rows, []any{})
		}
		f.rows[row-1] = vr.Values[0]
		writeJSON(w, map[string]any{"updatedRows": 1})
	case strings.Contains(path, "/values/"):
		values := f.rows
		if strings.HasSuffix(path, "A1:J1") {
			values = nil
			if len(f.rows) > 0 {
				values = f.rows[:1]
			}
		}
		writeJSON(w, map[string]any{"values": values})
	default:
		writeJSON(w, map[string]any{
			"sheets": []any{map[string]any{"properties": map[string]any{"sheetId": f.sheetID, "title": "Transactions"}}},
		})
	}
}

func (f *fakeSheets) snapshot() [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]any, len(f.rows))
	copy(out, f.rows)
	return out
}

func (f *fakeSheets) countID(id string) int {
	n := 0
	for _, row := range f.snapshot() {
		if len(row) > 0 && row[0] == id {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": http.StatusText(status)},
	})
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Options{
		SpreadsheetID: "sheet-1",
		SheetName:     "Transactions",
		Retry:         resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		ClientOptions: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithoutAuthentication(),
			goption.WithHTTPClient(srv.Client()),
		},
	}, log.NewWithWriter(log.DefaultConfig(), io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}
