package core

import (
	"errors"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var ErrInvalidEmail = errors.New("please enter a valid email address")

const (
	minPasswordLen       = 6
	minContactMessageLen = 10
)

// FieldErrors maps a form field to its inline error message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns nil when there are no field errors.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailRegex.MatchString(strings.TrimSpace(s))
}

// ValidatePassword applies the registration password rules.
func ValidatePassword(password string) error {
	var hasUpper, hasLower bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if len(password) < minPasswordLen {
		return errors.New("password must be at least 6 characters long")
	}
	return nil
}

type Registration struct {
	Name     string
	Email    string
	Password string
	PhotoURL string
}

func (r Registration) Validate() error {
	fe := FieldErrors{}
	if strings.TrimSpace(r.Name) == "" {
		fe["name"] = "Name is required"
	}
	checkEmail(fe, r.Email)
	if err := ValidatePassword(r.Password); err != nil {
		fe["password"] = err.Error()
	}
	if msg := photoURLError(r.PhotoURL); msg != "" {
		fe["photoURL"] = msg
	}
	return fe.Err()
}

type Login struct {
	Email    string
	Password string
}

func (l Login) Validate() error {
	fe := FieldErrors{}
	checkEmail(fe, l.Email)
	if l.Password == "" {
		fe["password"] = "Password is required"
	}
	return fe.Err()
}

type ContactMessage struct {
	Name    string
	Email   string
	Subject string
	Message string
}

func (c ContactMessage) Validate() error {
	fe := FieldErrors{}
	if strings.TrimSpace(c.Name) == "" {
		fe["name"] = "Name is required"
	}
	checkEmail(fe, c.Email)
	if strings.TrimSpace(c.Subject) == "" {
		fe["subject"] = "Subject is required"
	}
	msg := strings.TrimSpace(c.Message)
	if msg == "" {
		fe["message"] = "Message is required"
	} else if len([]rune(msg)) < minContactMessageLen {
		fe["message"] = "Message must be at least 10 characters long"
	}
	return fe.Err()
}

type ProfileUpdate struct {
	DisplayName string
	PhotoURL    string
}

func (p ProfileUpdate) Validate() error {
	fe := FieldErrors{}
	if strings.TrimSpace(p.DisplayName) == "" {
		fe["displayName"] = "Display name is required"
	}
	if msg := photoURLError(p.PhotoURL); msg != "" {
		fe["photoURL"] = msg
	}
	return fe.Err()
}

// TransactionForm is the raw add/edit form as submitted by the client.
type TransactionForm struct {
	Type        string
	Category    string
	Amount      string
	Description string
	Date        string
}

// NewTransactionForm returns the defaults the add form resets to after a successful submit.
func NewTransactionForm() TransactionForm {
	return TransactionForm{Type: string(Income)}
}

// Transaction validates every field and builds the domain value.
// All field problems are reported at once.
func (f TransactionForm) Transaction() (Transaction, error) {
	fe := FieldErrors{}
	var t Transaction

	typ, err := ParseTxType(f.Type)
	if err != nil {
		fe["type"] = err.Error()
	}
	t.Type = typ

	t.Category = strings.TrimSpace(f.Category)
	if t.Category == "" {
		fe["category"] = "Category is required"
	} else if len(t.Category) > maxCategoryLen {
		fe["category"] = "Category is too long"
	}

	if cents, err := ParseDecimalToCents(f.Amount); err != nil {
		fe["amount"] = "Amount must be a positive number"
	} else {
		t.Amount = Money{Cents: cents}
	}

	t.Description = strings.TrimSpace(f.Description)
	if t.Description == "" {
		fe["description"] = "Description is required"
	} else if len(t.Description) > maxDescriptionLen {
		fe["description"] = "Description is too long"
	}

	if d, err := ParseDate(f.Date); err != nil {
		fe["date"] = "Date is required (YYYY-MM-DD)"
	} else {
		t.Date = d
	}

	if err := fe.Err(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func checkEmail(fe FieldErrors, email string) {
	switch {
	case strings.TrimSpace(email) == "":
		fe["email"] = "Email is required"
	case !ValidEmail(email):
		fe["email"] = ErrInvalidEmail.Error()
	}
}

func photoURLError(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "Photo URL must be an http(s) URL"
	}
	return ""
}
