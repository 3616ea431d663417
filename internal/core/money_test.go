package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyFromDecimal(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"100", 10000, true},
		{"40.5", 4050, true},
		{"0.125", 13, true},
		{"0", 0, true},
		{"-1", 0, false},
	}
	for _, tc := range cases {
		m, err := MoneyFromDecimal(decimal.RequireFromString(tc.in))
		if tc.ok {
			if err != nil || m.Cents != tc.out {
				t.Fatalf("%s expected %d, got %d (err=%v)", tc.in, tc.out, m.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%s expected error", tc.in)
		}
	}
}

func TestMoneyArithmeticAndFormat(t *testing.T) {
	income := Money{Cents: 10000}
	expense := Money{Cents: 4000}
	if got := income.Sub(expense).String(); got != "60.00" {
		t.Fatalf("balance = %s", got)
	}
	if got := expense.Sub(income).String(); got != "-60.00" {
		t.Fatalf("negative balance = %s", got)
	}
	if got := income.Add(expense).Decimal().String(); got != "140" {
		t.Fatalf("sum decimal = %s", got)
	}
}
