package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.Generated("INT", "CONCEPT", 3)
	m.Generated("INT", "CONCEPT", 2)
	m.Collisions("INT", "CONCEPT", 0)
	m.Collisions("INT", "CONCEPT", 4)
	m.Exhausted("1000129", "DESCRIPTION")

	if got := testutil.ToFloat64(m.generated.WithLabelValues("INT", "CONCEPT")); got != 5 {
		t.Fatalf("generated = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.collisions.WithLabelValues("INT", "CONCEPT")); got != 4 {
		t.Fatalf("collisions = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.exhausted.WithLabelValues("1000129", "DESCRIPTION")); got != 1 {
		t.Fatalf("exhausted = %v, want 1", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.Generated("INT", "CONCEPT", 1)
	m.Attempts("CONCEPT", 1)
	m.Transitioned("PUBLISHED", 1)
	m.BeginRequest()("GET", "/healthz", "200", time.Millisecond)
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	done := m.BeginRequest()
	done("POST", "/api/v1/ids/generate", "200", 20*time.Millisecond)
	m.Registered("INT", "CONCEPT", 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`sctid_http_requests_total{code="200",method="POST",route="/api/v1/ids/generate"} 1`,
		`sctid_registered_total{category="CONCEPT",namespace="INT"} 1`,
		"sctid_http_requests_in_flight 0",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
