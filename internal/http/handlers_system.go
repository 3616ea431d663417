package http

import (
	"context"
	"net/http"
	"time"

	"finease/internal/core"
	"finease/internal/log"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().With("status", "ok").Write(w)
}

// handleCategories lists the categories the add form offers. Others are accepted too.
func handleCategories(w http.ResponseWriter, r *http.Request) {
	NewResponse().With("categories", core.KnownCategories).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
		return
	}
	NewResponse().With("status", "ready").Write(w)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	m := core.ContactMessage{
		Name:    sanitizeInput(req.Name),
		Email:   core.NormalizeEmail(req.Email),
		Subject: sanitizeInput(req.Subject),
		Message: sanitizeInput(req.Message),
	}
	if err := m.Validate(); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	if err := s.store.SaveContact(r.Context(), m); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Contact message received", log.FieldUserEmail, m.Email)
	NewResponse().Write(w)
}
