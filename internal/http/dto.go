package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"finease/internal/auth"
	"finease/internal/core"
	"finease/internal/report"
	"finease/internal/services"
)

// amount renders money as a JSON number with two decimals.
func amount(m core.Money) json.Number {
	return json.Number(m.Decimal().StringFixed(2))
}

type transactionDTO struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Category    string      `json:"category"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
	UserEmail   string      `json:"userEmail"`
	UserName    string      `json:"userName,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func toTransactionDTO(t core.Transaction) transactionDTO {
	return transactionDTO{
		ID:          t.ID,
		Type:        string(t.Type),
		Category:    t.Category,
		Amount:      amount(t.Amount),
		Description: t.Description,
		Date:        t.Date.String(),
		UserEmail:   t.UserEmail,
		UserName:    t.UserName,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTransactionDTOs(txns []core.Transaction) []transactionDTO {
	out := make([]transactionDTO, len(txns))
	for i, t := range txns {
		out[i] = toTransactionDTO(t)
	}
	return out
}

// flexString accepts a JSON string or number, so amounts may be sent either way.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected string or number: %w", err)
		}
		*f = flexString(n.String())
	}
	return nil
}

type transactionRequest struct {
	Type        string     `json:"type"`
	Category    string     `json:"category"`
	Amount      flexString `json:"amount"`
	Description string     `json:"description"`
	Date        string     `json:"date"`
}

func (r transactionRequest) form() core.TransactionForm {
	return core.TransactionForm{
		Type:        r.Type,
		Category:    r.Category,
		Amount:      string(r.Amount),
		Description: r.Description,
		Date:        r.Date,
	}
}

type summaryDTO struct {
	Income  json.Number `json:"income"`
	Expense json.Number `json:"expense"`
	Balance json.Number `json:"balance"`
	Count   int         `json:"count"`
}

func toSummaryDTO(s report.Summary) summaryDTO {
	return summaryDTO{
		Income:  amount(s.Income),
		Expense: amount(s.Expense),
		Balance: amount(s.Balance),
		Count:   s.Count,
	}
}

type sliceDTO struct {
	Name  string      `json:"name"`
	Value json.Number `json:"value"`
}

type monthDTO struct {
	Month   string      `json:"month"`
	Label   string      `json:"label"`
	Income  json.Number `json:"income"`
	Expense json.Number `json:"expense"`
}

type categoryDTO struct {
	Name    string      `json:"name"`
	Income  json.Number `json:"income"`
	Expense json.Number `json:"expense"`
}

type reportDTO struct {
	Summary    summaryDTO    `json:"summary"`
	Pie        []sliceDTO    `json:"pie"`
	Monthly    []monthDTO    `json:"monthly"`
	Categories []categoryDTO `json:"categories"`
	Trend      []monthDTO    `json:"trend"`
}

func toMonthDTOs(rows []report.MonthRow) []monthDTO {
	out := make([]monthDTO, len(rows))
	for i, r := range rows {
		out[i] = monthDTO{Month: r.Key, Label: r.Label, Income: amount(r.Income), Expense: amount(r.Expense)}
	}
	return out
}

func toReportDTO(r report.Report) reportDTO {
	dto := reportDTO{
		Summary:    toSummaryDTO(r.Summary),
		Pie:        make([]sliceDTO, len(r.Pie)),
		Monthly:    toMonthDTOs(r.Monthly),
		Categories: make([]categoryDTO, len(r.Categories)),
		Trend:      toMonthDTOs(r.Trend),
	}
	for i, s := range r.Pie {
		dto.Pie[i] = sliceDTO{Name: s.Name, Value: amount(s.Value)}
	}
	for i, c := range r.Categories {
		dto.Categories[i] = categoryDTO{Name: c.Name, Income: amount(c.Income), Expense: amount(c.Expense)}
	}
	return dto
}

type profileDTO struct {
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoURL"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toProfileDTO(p core.UserProfile) profileDTO {
	return profileDTO{
		Email:       p.Email,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		Role:        string(p.Role),
		CreatedAt:   p.CreatedAt,
	}
}

func sessionResponse(s auth.Session, status int) *ResponseBuilder {
	return NewResponse().
		Status(status).
		With("token", s.Token).
		With("expiresAt", s.ExpiresAt).
		With("user", toProfileDTO(s.Profile))
}

func pageResponse(p services.Page) *ResponseBuilder {
	return NewResponse().
		With("transactions", toTransactionDTOs(p.Transactions)).
		With("total", p.Total).
		With("page", p.Page).
		With("totalPages", p.TotalPages)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	PhotoURL string `json:"photoURL"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}
