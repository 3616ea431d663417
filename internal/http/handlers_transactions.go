package http

import (
	"context"
	"net/http"

	"finease/internal/core"
	"finease/internal/services"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	s.listWith(w, r, s.txns.List)
}

func (s *Server) handleListAllTransactions(w http.ResponseWriter, r *http.Request) {
	s.listWith(w, r, s.txns.ListAll)
}

type listFunc func(ctx context.Context, a services.Actor, q services.ListQuery) (services.Page, error)

func (s *Server) listWith(w http.ResponseWriter, r *http.Request, list listFunc) {
	a, err := s.actor(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	q, err := parseListQuery(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	page, err := list(r.Context(), a, q)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	pageResponse(page).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	a, err := s.actor(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	d, err := s.txns.Details(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().
		With("transaction", toTransactionDTO(d.Transaction)).
		With("categoryTotal", amount(d.CategoryTotal)).
		Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	a, err := s.actor(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	t, err := s.txns.Create(r.Context(), a, sanitizeForm(req))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		With("insertedId", t.ID).
		With("transaction", toTransactionDTO(t)).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	a, err := s.actor(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	changed, err := s.txns.Update(r.Context(), a, chi.URLParam(r, "id"), sanitizeForm(req))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().With("modifiedCount", boolCount(changed)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	a, err := s.actor(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	deleted, err := s.txns.Delete(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().With("deletedCount", boolCount(deleted)).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	a, err := s.actor(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	sum, err := s.txns.Summary(r.Context(), a, r.URL.Query().Get("email"))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().With("summary", toSummaryDTO(sum)).Write(w)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	a, err := s.actor(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	f, err := parseReportFilter(r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	rep, err := s.txns.Report(r.Context(), a, f)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().With("report", toReportDTO(rep)).Write(w)
}

func sanitizeForm(req transactionRequest) core.TransactionForm {
	req.Category = sanitizeInput(req.Category)
	req.Description = sanitizeInput(req.Description)
	req.Type = sanitizeInput(req.Type)
	req.Date = sanitizeInput(req.Date)
	return req.form()
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
