package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Hit("summary")
	m.Hit("summary")
	m.Miss("summary")
	m.IncrTransactionWrite("created")
	m.IncrExport("ok")
	m.ObserveRequest(http.MethodGet, "/summary", 200, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.cacheHits.WithLabelValues("summary")); got != 2 {
		t.Fatalf("hits = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses.WithLabelValues("summary")); got != 1 {
		t.Fatalf("misses = %v", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/summary", "200")); got != 1 {
		t.Fatalf("requests = %v", got)
	}

	m.IncrSuspicious()
	m.IncrRateLimited()
	m.IncrRateLimited()
	if got := testutil.ToFloat64(m.rateLimited); got != 2 {
		t.Fatalf("rate limited = %v", got)
	}
	if got := testutil.ToFloat64(m.suspicious); got != 1 {
		t.Fatalf("suspicious = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.IncrTransactionWrite("deleted")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `finease_transactions_written_total{action="deleted"} 1`) {
		t.Fatalf("metric missing from output:\n%s", rec.Body.String())
	}
}

func TestNewTwiceDoesNotPanic(t *testing.T) {
	_ = New()
	_ = New()
}

func TestRateLimitClientsGauge(t *testing.T) {
	m := New()
	active := 3
	m.TrackRateLimitClients(func() int { return active })

	expected := `
# HELP finease_ratelimit_active_clients Clients with an open rate limit window.
# TYPE finease_ratelimit_active_clients gauge
finease_ratelimit_active_clients 3
`
	if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "finease_ratelimit_active_clients"); err != nil {
		t.Fatal(err)
	}
	active = 1
	if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(strings.Replace(expected, " 3\n", " 1\n", 1)), "finease_ratelimit_active_clients"); err != nil {
		t.Fatal(err)
	}
}
