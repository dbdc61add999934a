package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestEngineCollectorRegistersAndServes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	c.ObserveFix("accepted")
	c.ObserveGrade("danger")
	c.ObserveVerdict("none")
	c.SetActiveSessions(3)
	c.ObserveSnapshot(42, 120*time.Millisecond)
	c.ObserveHTTP("/v1/sessions", "POST", 201, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`territory_fixes_ingested_total{outcome="accepted"} 1`,
		`territory_grade_evaluations_total{grade="danger"} 1`,
		`territory_active_sessions 3`,
		`territory_indexed_territories 42`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestEngineCollectorDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewEngineCollector(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewEngineCollector(reg); err != nil {
		t.Fatalf("re-registration should reuse existing collectors: %v", err)
	}
}

func TestNilCollectorObserversAreSafe(t *testing.T) {
	var c *EngineCollector
	c.ObserveFix("accepted")
	c.ObserveGrade("safe")
	c.SetActiveSessions(0)
	c.ObserveSnapshot(0, 0)
}
