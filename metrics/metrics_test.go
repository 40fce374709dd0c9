package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from metrics handler, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestRecordPayment(t *testing.T) {
	m := New()
	m.RecordPayment("idempotent", "processed")
	m.RecordPayment("idempotent", "processed")
	m.RecordPayment("idempotent", "already_processed")
	m.RecordPayment("non-idempotent", "insufficient_funds")

	body := scrape(t, m)

	want := []string{
		`payonce_payments_total{outcome="processed",variant="idempotent"} 2`,
		`payonce_payments_total{outcome="already_processed",variant="idempotent"} 1`,
		`payonce_payments_total{outcome="insufficient_funds",variant="non-idempotent"} 1`,
	}
	for _, line := range want {
		if !strings.Contains(body, line) {
			t.Errorf("Expected exposition to contain %q\ngot:\n%s", line, body)
		}
	}
}

func TestObserveToolCall(t *testing.T) {
	m := New()
	m.ObserveToolCall("make_payment", 150*time.Millisecond)

	body := scrape(t, m)

	if !strings.Contains(body, `payonce_tool_call_duration_seconds_count{tool="make_payment"} 1`) {
		t.Errorf("Expected one observation for make_payment, got:\n%s", body)
	}
	if !strings.Contains(body, `payonce_tool_call_duration_seconds_sum{tool="make_payment"} 0.15`) {
		t.Errorf("Expected the observed duration in the sum, got:\n%s", body)
	}
}

func TestSeparateRegistries(t *testing.T) {
	a := New()
	b := New()
	a.RecordPayment("idempotent", "processed")

	if strings.Contains(scrape(t, b), `payonce_payments_total{`) {
		t.Error("Expected bundles to keep separate registries")
	}
}

func TestNilMetricsAreInert(t *testing.T) {
	var m *Metrics

	m.RecordPayment("idempotent", "processed")
	m.ObserveToolCall("get_balance", time.Second)
	if m.Registry() != nil {
		t.Error("Expected nil registry from nil bundle")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 from nil bundle handler, got %d", rec.Code)
	}
}
