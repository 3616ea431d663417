package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TxType = "Income"
	Expense TxType = "Expense"

	RoleUser  Role = "user"
	RoleAdmin Role = "admin"

	// DateLayout is the calendar date format used on the wire and in storage.
	DateLayout = "2006-01-02"

	// OtherCategory groups transactions recorded without a category.
	OtherCategory = "Other"

	maxDescriptionLen = 200
	maxCategoryLen    = 50
)

// KnownCategories are the categories offered by the add-transaction form.
var KnownCategories = []string{"Salary", "Food", "Shopping", "Bills", "Transport", "Entertainment"}

type (
	TxType string

	Role string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID          string
		Type        TxType
		Category    string
		Amount      Money
		Description string
		Date        Date
		UserEmail   string
		UserName    string
		Version     int64
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	UserProfile struct {
		Email       string
		DisplayName string
		PhotoURL    string
		Role        Role
		CreatedAt   time.Time
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("type must be Income or Expense")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidRole      = errors.New("role must be user or admin")
)

// ParseTxType accepts the two literals, tolerating case and surrounding spaces.
func ParseTxType(s string) (TxType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income":
		return Income, nil
	case "expense":
		return Expense, nil
	}
	return "", ErrInvalidType
}

func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

// ParseRole accepts "user" or "admin"; empty input defaults to RoleUser.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", ErrInvalidRole
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the YYYY-MM grouping key used by monthly reports.
func (d Date) MonthKey() string {
	return fmt.Sprintf("%04d-%02d", d.Year(), d.Month())
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date. Full RFC 3339 timestamps are accepted
// and truncated to their date part, since browsers often send ISO strings.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	if len(s) > len(DateLayout) {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return NewDate(ts.Year(), int(ts.Month()), ts.Day()), nil
		}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Category) > maxCategoryLen {
		return fmt.Errorf("category too long (max %d characters)", maxCategoryLen)
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > maxDescriptionLen {
		return fmt.Errorf("description too long (max %d characters)", maxDescriptionLen)
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	return nil
}

// SameContent reports whether the user-editable fields match.
func (t Transaction) SameContent(o Transaction) bool {
	return t.Type == o.Type &&
		t.Category == o.Category &&
		t.Amount == o.Amount &&
		t.Description == o.Description &&
		t.Date.Equal(o.Date.Time)
}

// OwnedBy reports whether email owns the transaction. Emails compare case-insensitively.
func (t Transaction) OwnedBy(email string) bool {
	return strings.EqualFold(strings.TrimSpace(t.UserEmail), strings.TrimSpace(email))
}

// CategoryOrOther returns the category, or OtherCategory when empty.
func (t Transaction) CategoryOrOther() string {
	if c := strings.TrimSpace(t.Category); c != "" {
		return c
	}
	return OtherCategory
}

func (p UserProfile) Validate() error {
	if !ValidEmail(p.Email) {
		return ErrInvalidEmail
	}
	if _, err := ParseRole(string(p.Role)); err != nil {
		return err
	}
	return nil
}

// NormalizeEmail lowercases and trims an email so it can be used as an identity key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
