package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	m.ObservePrediction(OutcomeOK, 2*time.Millisecond)
	m.ObservePrediction(OutcomeOK, time.Millisecond)
	m.ObservePrediction(OutcomeSchemaMismatch, time.Millisecond)
	m.ObserveReload(nil)
	m.ObserveReload(errors.New("corrupt artifact"))
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()

	if got := testutil.ToFloat64(m.predictions.WithLabelValues(OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 ok predictions, got %v", got)
	}
	if got := testutil.ToFloat64(m.predictions.WithLabelValues(OutcomeSchemaMismatch)); got != 1 {
		t.Fatalf("expected 1 schema mismatch, got %v", got)
	}
	if got := testutil.ToFloat64(m.reloads.WithLabelValues(OutcomeError)); got != 1 {
		t.Fatalf("expected 1 failed reload, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses); got != 2 {
		t.Fatalf("expected 2 cache misses, got %v", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ObservePrediction(OutcomeOK, time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), `penguins_predictions_total{outcome="ok"} 1`) {
		t.Fatalf("expected prediction counter in output:\n%s", body)
	}
	if !strings.Contains(string(body), "penguins_prediction_duration_seconds_bucket") {
		t.Fatal("expected latency histogram in output")
	}
}
