package obs

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b", "c"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projects/"+id, nil))
	}

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/projects/{id}", "418"))
	if got != 3 {
		t.Fatalf("expected 3 requests under the route pattern, got %v", got)
	}
}

func TestRoutePatternUnmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	if got := RoutePattern(req); got != "unmatched" {
		t.Fatalf("RoutePattern()=%q, want unmatched", got)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	InitMetrics()
	InitMetrics()
	ObserveGate("client", "authenticated")
	if got := testutil.ToFloat64(gateDecisions.WithLabelValues("client", "authenticated")); got < 1 {
		t.Fatalf("expected gate counter to move, got %v", got)
	}
}

func TestBuildInfoKeepsOneSeries(t *testing.T) {
	InitBuildInfo("1.0.0", "abc123")
	InitBuildInfo("1.0.1", "def456")
	if n := testutil.CollectAndCount(buildInfo); n != 1 {
		t.Fatalf("expected a single build_info series, got %d", n)
	}
	if got := testutil.ToFloat64(buildInfo.WithLabelValues("1.0.1", "def456", runtime.Version())); got != 1 {
		t.Fatalf("build_info=%v, want 1", got)
	}
}
