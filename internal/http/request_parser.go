package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"finease/internal/core"
	"finease/internal/report"
	"finease/internal/services"
)

const maxBodyBytes = 1 << 20

// errBadRequest wraps every malformed query or body error so handlers can answer 400.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads a size-capped JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return badRequest("request body too large")
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		}
		return badRequest("invalid JSON body")
	}
	return nil
}

// parseFilter reads the shared filter parameters: type, category, month,
// year, q, minAmount and maxAmount.
func parseFilter(query url.Values) (report.Filter, error) {
	var f report.Filter

	if v := strings.TrimSpace(query.Get("type")); v != "" {
		t, err := core.ParseTxType(v)
		if err != nil {
			return f, badRequest("type must be income or expense")
		}
		f.Type = t
	}
	f.Category = sanitizeInput(query.Get("category"))
	f.Query = sanitizeInput(query.Get("q"))

	month, err := intParam(query, "month")
	if err != nil {
		return f, err
	}
	if month < 0 || month > 12 {
		return f, badRequest("month must be between 1 and 12")
	}
	f.Month = month

	year, err := intParam(query, "year")
	if err != nil {
		return f, err
	}
	if year < 0 {
		return f, badRequest("year must be positive")
	}
	f.Year = year

	if f.Min, err = moneyParam(query, "minAmount"); err != nil {
		return f, err
	}
	if f.Max, err = moneyParam(query, "maxAmount"); err != nil {
		return f, err
	}
	return f, nil
}

// parseListQuery reads the list endpoint's sorting, filtering and paging parameters.
// A "sort" preset wins over sortBy/order.
func parseListQuery(r *http.Request) (services.ListQuery, error) {
	query := r.URL.Query()
	q := services.ListQuery{
		Owner: strings.TrimSpace(query.Get("email")),
		Sort:  report.ParseSortKey(query.Get("sortBy")),
		Order: report.ParseOrder(query.Get("order")),
	}
	if preset := query.Get("sort"); preset != "" {
		key, order, ok := report.Preset(preset)
		if !ok {
			return q, badRequest("unknown sort %q", preset)
		}
		q.Sort, q.Order = key, order
	}

	f, err := parseFilter(query)
	if err != nil {
		return q, err
	}
	q.Filter = f

	if q.Page, err = intParam(query, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(query, "limit"); err != nil {
		return q, err
	}
	if q.Page < 0 || q.PageSize < 0 {
		return q, badRequest("page and limit must be positive")
	}
	return q, nil
}

func parseReportFilter(r *http.Request) (report.Filter, error) {
	return parseFilter(r.URL.Query())
}

func intParam(query url.Values, key string) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("%s must be a number", key)
	}
	return n, nil
}

func moneyParam(query url.Values, key string) (*core.Money, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil, nil
	}
	cents, err := core.ParseDecimalToCents(v)
	if err != nil {
		return nil, badRequest("%s must be an amount", key)
	}
	return &core.Money{Cents: cents}, nil
}

// sanitizeInput trims and drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
