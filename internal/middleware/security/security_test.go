package security

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finease/internal/log"
)

func TestInspect(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name           string
		method, target string
		ua             string
		wantSuspicious bool
		wantBlock      bool
	}{
		{"plain request", http.MethodGet, "/transactions?sortBy=date", "Mozilla/5.0", false, false},
		{"path traversal", http.MethodGet, "/static/../../etc/passwd", "", true, true},
		{"dotenv scan", http.MethodGet, "/.env", "", true, true},
		{"sql in query", http.MethodGet, "/transactions?q=1%20union%20select", "", true, false},
		{"scanner agent", http.MethodGet, "/healthz", "sqlmap/1.7", true, false},
		{"trace method", "TRACE", "/", "", true, true},
		{"long url", http.MethodGet, "/transactions?q=" + strings.Repeat("a", 2100), "", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			r.Header.Set("User-Agent", tt.ua)
			s, b := d.Inspect(r)
			if s != tt.wantSuspicious || b != tt.wantBlock {
				t.Errorf("Inspect() = %v, %v; want %v, %v", s, b, tt.wantSuspicious, tt.wantBlock)
			}
		})
	}
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name       string
		remote     string
		xff, xreal string
		want       string
	}{
		{"direct", "203.0.113.9:5555", "", "", "203.0.113.9"},
		{"untrusted proxy ignored", "203.0.113.9:5555", "1.2.3.4", "", "203.0.113.9"},
		{"trusted proxy xff", "10.0.0.2:80", "198.51.100.7, 10.0.0.2", "", "198.51.100.7"},
		{"trusted proxy x-real-ip", "127.0.0.1:80", "", "198.51.100.8", "198.51.100.8"},
		{"garbage xff", "10.0.0.2:80", "not-an-ip", "", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xreal != "" {
				r.Header.Set("X-Real-IP", tt.xreal)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

type countingCounter struct{ n int }

func (c *countingCounter) IncrSuspicious() { c.n++ }

func TestDetectorMiddleware(t *testing.T) {
	d := NewDetector()
	c := &countingCounter{}
	h := d.Middleware(log.NewWithWriter(log.DefaultConfig(), io.Discard), c, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.git/config", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blocked status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("User-Agent", "nikto")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("flagged-but-allowed status = %d", rec.Code)
	}
	if c.n != 2 {
		t.Errorf("counted %d, want 2", c.n)
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, name := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Cache-Control"} {
		if rec.Header().Get(name) == "" {
			t.Errorf("missing %s", name)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must only be sent over TLS")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !strings.HasPrefix(rec.Header().Get("Strict-Transport-Security"), "max-age=") {
		t.Error("missing HSTS over TLS")
	}
}
