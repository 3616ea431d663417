package report

import (
	"sort"
	"strings"

	"finease/internal/core"
)

// Filter selects transactions. Zero fields match everything.
type Filter struct {
	Type     core.TxType
	Category string
	Month    int // 1-12, any year
	Year     int
	Query    string // case-insensitive match on category or description
	Min      *core.Money
	Max      *core.Money
}

func (f Filter) Match(t core.Transaction) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Category != "" && !strings.EqualFold(t.CategoryOrOther(), f.Category) {
		return false
	}
	if f.Month != 0 && (t.Date.IsZero() || t.Date.Month() != f.Month) {
		return false
	}
	if f.Year != 0 && (t.Date.IsZero() || t.Date.Year() != f.Year) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(t.Category), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	if f.Min != nil && t.Amount.Cents < f.Min.Cents {
		return false
	}
	if f.Max != nil && t.Amount.Cents > f.Max.Cents {
		return false
	}
	return true
}

// Apply returns the matching transactions in source order.
func Apply(txns []core.Transaction, f Filter) []core.Transaction {
	out := make([]core.Transaction, 0, len(txns))
	for _, t := range txns {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

type SortKey string

type Order string

const (
	SortDate     SortKey = "date"
	SortAmount   SortKey = "amount"
	SortCategory SortKey = "category"

	Asc  Order = "asc"
	Desc Order = "desc"
)

// ParseSortKey falls back to SortDate for unknown keys.
func ParseSortKey(s string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortAmount:
		return SortAmount
	case SortCategory:
		return SortCategory
	}
	return SortDate
}

// ParseOrder falls back to Desc for unknown values.
func ParseOrder(s string) Order {
	if Order(strings.ToLower(strings.TrimSpace(s))) == Asc {
		return Asc
	}
	return Desc
}

// Preset maps the list page's sort options to a key and order.
func Preset(name string) (SortKey, Order, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "newest":
		return SortDate, Desc, true
	case "oldest":
		return SortDate, Asc, true
	case "amount-high", "high-amount":
		return SortAmount, Desc, true
	case "amount-low", "low-amount":
		return SortAmount, Asc, true
	case "category":
		return SortCategory, Asc, true
	}
	return "", "", false
}

// Sort returns a sorted copy. Equal keys keep their source order in both directions.
func Sort(txns []core.Transaction, key SortKey, order Order) []core.Transaction {
	out := make([]core.Transaction, len(txns))
	copy(out, txns)
	cmp := compareFunc(key)
	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if order == Asc {
			return c < 0
		}
		return c > 0
	})
	return out
}

func compareFunc(key SortKey) func(a, b core.Transaction) int {
	switch key {
	case SortAmount:
		return func(a, b core.Transaction) int {
			return compareInt64(a.Amount.Cents, b.Amount.Cents)
		}
	case SortCategory:
		return func(a, b core.Transaction) int {
			return strings.Compare(strings.ToLower(a.CategoryOrOther()), strings.ToLower(b.CategoryOrOther()))
		}
	default:
		return func(a, b core.Transaction) int {
			return a.Date.Compare(b.Date.Time)
		}
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
