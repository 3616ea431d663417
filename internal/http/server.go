// Package http exposes the JSON REST API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finease/internal/auth"
	"finease/internal/log"
	"finease/internal/metrics"
	"finease/internal/middleware/ratelimit"
	"finease/internal/middleware/security"
	"finease/internal/middleware/trace"
	"finease/internal/ports"
	"finease/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Store is the slice of the data backend the handlers use directly.
type Store interface {
	ports.ContactStore
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth         *auth.Service
	Transactions *services.TransactionService
	Store        Store
	// Metrics is optional. Without it /metrics is not mounted.
	Metrics     *metrics.Metrics
	Logger      *log.Logger
	CORSOrigins []string
	// TrustedProxies extend the private ranges whose forwarding headers are believed.
	TrustedProxies []string
	RateLimit      ratelimit.Config
}

type Server struct {
	http.Server
	auth     *auth.Service
	txns     *services.TransactionService
	store    Store
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	s := &Server{
		auth:     deps.Auth,
		txns:     deps.Transactions,
		store:    deps.Store,
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		detector: security.NewDetector(),
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			deps.Logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(deps Deps) http.Handler {
	logger := deps.Logger.WithComponent(log.ComponentHTTP)

	var (
		observer trace.Observer
		counter  security.Counter
	)
	if deps.Metrics != nil {
		observer = deps.Metrics
		counter = deps.Metrics
		deps.Metrics.TrackRateLimitClients(s.limiter.ActiveClients)
	}

	r := chi.NewRouter()
	r.Use(trace.NewMiddleware(s.detector.ExtractClientIP, deps.Logger, observer).Middleware)
	// inside trace so a recovered panic is still logged and counted as a 500
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(logger, func(r *http.Request) string { return trace.GetRequestID(r.Context()) }))
	r.Use(s.detector.Middleware(deps.Logger, counter, func(w http.ResponseWriter, r *http.Request) {
		BadRequestError("Bad request").Write(w)
	}))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", trace.RequestIDHeader},
		ExposedHeaders:   []string{trace.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		if deps.Metrics != nil {
			deps.Metrics.IncrRateLimited()
		}
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r), log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})
	writesLimited := func(next http.Handler) http.Handler {
		limitedNext := limited(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			limitedNext.ServeHTTP(w, r)
		})
	}

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/categories", handleCategories)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(writesLimited)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/contact", s.handleContact)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/me", s.handleGetProfile)
			r.Put("/me", s.handleUpdateProfile)
			r.Get("/users", s.handleListUsers)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", s.handleListTransactions)
				r.Post("/", s.handleCreateTransaction)
				r.Get("/{id}", s.handleGetTransaction)
				r.Put("/{id}", s.handleUpdateTransaction)
				r.Delete("/{id}", s.handleDeleteTransaction)
			})
			r.Get("/admin/transactions", s.handleListAllTransactions)
			r.Get("/summary", s.handleSummary)
			r.Get("/reports", s.handleReport)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed").Write(w)
	})
	return r
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
