package http

import (
	"net/http"

	"finease/internal/core"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	session, err := s.auth.Register(r.Context(), core.Registration{
		Name:     sanitizeInput(req.Name),
		Email:    req.Email,
		Password: req.Password,
		PhotoURL: sanitizeInput(req.PhotoURL),
	})
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	sessionResponse(session, http.StatusCreated).Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	session, err := s.auth.Login(r.Context(), core.Login{Email: req.Email, Password: req.Password})
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	sessionResponse(session, http.StatusOK).Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := s.auth.Logout(r.Context(), id); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().Write(w)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	p, err := s.auth.Profile(r.Context(), id)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().With("user", toProfileDTO(p)).Write(w)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	p, err := s.auth.UpdateProfile(r.Context(), id, core.ProfileUpdate{
		DisplayName: sanitizeInput(req.DisplayName),
		PhotoURL:    sanitizeInput(req.PhotoURL),
	})
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewResponse().With("user", toProfileDTO(p)).Write(w)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	users, err := s.auth.ListUsers(r.Context(), id)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	out := make([]profileDTO, len(users))
	for i, u := range users {
		out[i] = toProfileDTO(u)
	}
	NewResponse().With("users", out).Write(w)
}
