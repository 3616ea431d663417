package http

import (
	"context"
	"net/http"
	"strings"

	"finease/internal/auth"
	"finease/internal/log"
	"finease/internal/services"
)

type identityKey struct{}

// requireAuth rejects requests without a valid bearer token and stores the
// caller's identity in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			UnauthorizedError("Missing bearer token").Write(w)
			return
		}
		id, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			log.FromContext(r.Context()).DebugContext(r.Context(), "Token rejected", log.FieldError, err)
			UnauthorizedError("Invalid or expired token").Write(w)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserEmail, id.Email))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func identityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// actor resolves the caller for the transaction service. Admin rights come
// from the stored role so a demotion applies before the token expires.
func (s *Server) actor(r *http.Request) (services.Actor, error) {
	id, _ := identityFrom(r.Context())
	role, err := s.auth.Role(r.Context(), id)
	if err != nil {
		return services.Actor{}, err
	}
	return services.Actor{Email: id.Email, Name: id.Name, Admin: role.IsAdmin()}, nil
}
