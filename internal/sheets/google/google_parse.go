package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"finease/internal/core"

	"github.com/shopspring/decimal"
)

// Ledger columns, A to J.
var header = []any{"ID", "Date", "Type", "Category", "Description", "Amount", "User Email", "User Name", "Version", "Updated At"}

const (
	colID = iota
	colDate
	colType
	colCategory
	colDescription
	colAmount
	colUserEmail
	colUserName
	colVersion
	colUpdatedAt
	numCols
)

const lastCol = "J"

func transactionRow(t core.Transaction) []any {
	return []any{
		t.ID,
		t.Date.String(),
		string(t.Type),
		t.Category,
		t.Description,
		t.Amount.String(),
		t.UserEmail,
		t.UserName,
		t.Version,
		t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// parseRow is the inverse of transactionRow. Amounts accept a decimal comma.
func parseRow(row []any) (core.Transaction, error) {
	cols := toStrings(row)
	if len(cols) < numCols {
		return core.Transaction{}, fmt.Errorf("row has %d columns, want %d", len(cols), numCols)
	}
	typ, err := core.ParseTxType(cols[colType])
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(cols[colDate])
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := parseAmount(cols[colAmount])
	if err != nil {
		return core.Transaction{}, err
	}
	version, err := strconv.ParseInt(cols[colVersion], 10, 64)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("version %q: %w", cols[colVersion], err)
	}
	t := core.Transaction{
		ID:          cols[colID],
		Type:        typ,
		Category:    cols[colCategory],
		Amount:      amount,
		Description: cols[colDescription],
		Date:        date,
		UserEmail:   cols[colUserEmail],
		UserName:    cols[colUserName],
		Version:     version,
	}
	if ts, err := time.Parse(time.RFC3339, cols[colUpdatedAt]); err == nil {
		t.UpdatedAt = ts
	}
	return t, nil
}

func parseAmount(s string) (core.Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("amount %q: %w", s, err)
	}
	return core.MoneyFromDecimal(d)
}

// findRow returns the 1-based sheet row whose first column equals id, or 0.
func findRow(values [][]any, id string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
