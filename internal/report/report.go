// Package report aggregates transaction lists into totals, breakdowns and
// chart series. Every function is pure and leaves its input untouched.
package report

import (
	"sort"
	"strings"
	"time"

	"finease/internal/core"
)

type Summary struct {
	Income  core.Money
	Expense core.Money
	Balance core.Money
	Count   int
}

type CategoryRow struct {
	Name    string
	Income  core.Money
	Expense core.Money
}

type MonthRow struct {
	Key     string // YYYY-MM
	Label   string // "Jan 2025"
	Income  core.Money
	Expense core.Money
}

type Slice struct {
	Name  string
	Value core.Money
}

// Report is the payload behind the reports page.
type Report struct {
	Summary    Summary
	Pie        []Slice
	Monthly    []MonthRow
	Categories []CategoryRow
	Trend      []MonthRow
}

// Summarize partitions by type and sums each side.
func Summarize(txns []core.Transaction) Summary {
	var s Summary
	for _, t := range txns {
		switch t.Type {
		case core.Income:
			s.Income = s.Income.Add(t.Amount)
		case core.Expense:
			s.Expense = s.Expense.Add(t.Amount)
		}
	}
	s.Balance = s.Income.Sub(s.Expense)
	s.Count = len(txns)
	return s
}

// ByCategory returns per-category totals in first-seen order.
func ByCategory(txns []core.Transaction) []CategoryRow {
	idx := map[string]int{}
	var rows []CategoryRow
	for _, t := range txns {
		name := t.CategoryOrOther()
		i, ok := idx[name]
		if !ok {
			i = len(rows)
			idx[name] = i
			rows = append(rows, CategoryRow{Name: name})
		}
		addTo(&rows[i].Income, &rows[i].Expense, t)
	}
	return rows
}

// ByMonth groups by calendar month in chronological order. When lastN > 0
// only the most recent lastN months are returned.
func ByMonth(txns []core.Transaction, lastN int) []MonthRow {
	byKey := map[string]*MonthRow{}
	for _, t := range txns {
		if t.Date.IsZero() {
			continue
		}
		key := t.Date.MonthKey()
		row, ok := byKey[key]
		if !ok {
			row = &MonthRow{
				Key:   key,
				Label: t.Date.Format("Jan 2006"),
			}
			byKey[key] = row
		}
		addTo(&row.Income, &row.Expense, t)
	}
	rows := make([]MonthRow, 0, len(byKey))
	for _, r := range byKey {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	if lastN > 0 && len(rows) > lastN {
		rows = rows[len(rows)-lastN:]
	}
	return rows
}

// MonthlyForYear returns twelve rows, January to December. A zero year
// folds every year into the same twelve buckets.
func MonthlyForYear(txns []core.Transaction, year int) []MonthRow {
	rows := make([]MonthRow, 12)
	for i := range rows {
		rows[i].Label = time.Month(i + 1).String()
		if year > 0 {
			rows[i].Key = core.NewDate(year, i+1, 1).MonthKey()
		}
	}
	for _, t := range txns {
		if t.Date.IsZero() || (year > 0 && t.Date.Year() != year) {
			continue
		}
		r := &rows[t.Date.Month()-1]
		addTo(&r.Income, &r.Expense, t)
	}
	return rows
}

// CategoryTotal sums every transaction of the given category regardless of type.
func CategoryTotal(txns []core.Transaction, category string) core.Money {
	var total core.Money
	for _, t := range txns {
		if strings.EqualFold(t.CategoryOrOther(), category) {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// Paginate returns the requested 1-based page and the total page count.
// Out of range pages yield an empty slice.
func Paginate(txns []core.Transaction, page, pageSize int) ([]core.Transaction, int) {
	if pageSize <= 0 {
		return txns, 1
	}
	if page < 1 {
		page = 1
	}
	totalPages := (len(txns) + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * pageSize
	if start >= len(txns) {
		return []core.Transaction{}, totalPages
	}
	end := start + pageSize
	if end > len(txns) {
		end = len(txns)
	}
	return txns[start:end], totalPages
}

// Build assembles the reports page. Totals, pie and category rows follow
// the filter. The monthly and trend series only honour f.Year.
func Build(txns []core.Transaction, f Filter) Report {
	filtered := Apply(txns, f)
	sum := Summarize(filtered)
	return Report{
		Summary: sum,
		Pie: []Slice{
			{Name: string(core.Income), Value: sum.Income},
			{Name: string(core.Expense), Value: sum.Expense},
		},
		Monthly:    MonthlyForYear(txns, f.Year),
		Categories: ByCategory(filtered),
		Trend:      ByMonth(Apply(txns, Filter{Year: f.Year}), 6),
	}
}

func addTo(income, expense *core.Money, t core.Transaction) {
	switch t.Type {
	case core.Income:
		*income = income.Add(t.Amount)
	case core.Expense:
		*expense = expense.Add(t.Amount)
	}
}
