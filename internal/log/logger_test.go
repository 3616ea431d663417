package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(Config{Level: slog.LevelDebug, Component: ComponentAuth}, &buf)
	l.Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "component=auth") || !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	l.WithComponent(ComponentHTTP).Warn("x", FieldComponent, "override")
	if strings.Count(buf.String(), "component=") != 1 || !strings.Contains(buf.String(), "component=override") {
		t.Fatalf("explicit component should win, got %q", buf.String())
	}
}

func TestMiddlewareAddsRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(Config{Level: slog.LevelInfo}, &buf)
	h := Middleware(base, func(*http.Request) string { return "req-42" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "inside")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Fatalf("request id missing: %q", buf.String())
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("fallback logger should be unknown")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(NewWithWriter(Config{Level: slog.LevelInfo}, &buf))
	r := httptest.NewRequest(http.MethodGet, "/transactions?email=a", nil)

	sl.LogHTTPEnd(context.Background(), r, 404, 3, "1.2.3.4")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("4xx should log at warn: %q", buf.String())
	}
	buf.Reset()
	sl.LogHTTPEnd(context.Background(), r, 500, 3, "1.2.3.4")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Fatalf("5xx should log at error: %q", buf.String())
	}
	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("bad"), ComponentStorage, OpCreate, nil)
	if !strings.Contains(buf.String(), "error=bad") {
		t.Fatalf("error field missing: %q", buf.String())
	}
}
