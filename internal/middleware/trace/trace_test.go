package trace

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"finease/internal/log"

	"github.com/go-chi/chi/v5"
)

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
	codes  []int
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, method+" "+route)
	o.codes = append(o.codes, status)
}

func newRouter(obs Observer) http.Handler {
	m := NewMiddleware(func(r *http.Request) string { return "10.0.0.1" }, log.NewWithWriter(log.DefaultConfig(), io.Discard), obs)
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t := w.Header()
			t.Set("X-Missing", "1")
		}
		w.WriteHeader(http.StatusTeapot)
	})
	return r
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	obs := &recordingObserver{}
	h := newRouter(obs)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions/abc-123", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Missing") != "" {
		t.Error("request id missing from context")
	}
	if len(obs.routes) != 1 || obs.routes[0] != "GET /transactions/{id}" || obs.codes[0] != http.StatusTeapot {
		t.Errorf("observed %v %v", obs.routes, obs.codes)
	}
}

func TestMiddleware_RequestIDHeader(t *testing.T) {
	h := newRouter(nil)

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"none", "", false},
		{"valid", "client-abc.1", true},
		{"injection attempt", "abc\nSet-Cookie: x", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/transactions/1", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if tt.keep && got != tt.incoming {
				t.Errorf("request id = %q, want %q", got, tt.incoming)
			}
			if !tt.keep && !strings.HasPrefix(got, "req_") {
				t.Errorf("request id = %q, want generated", got)
			}
		})
	}
}
