package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"digitflow/internal/metrics"
	"digitflow/internal/retrain"
)

func TestObserveCycleUpdatesCollectors(t *testing.T) {
	reg := metrics.New()
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	reg.ObserveCycle(retrain.Outcome{Result: retrain.ResultSkipped, Unprocessed: 3, StartedAt: start, FinishedAt: start})
	reg.ObserveCycle(retrain.Outcome{Result: retrain.ResultCompleted, Unprocessed: 0, StartedAt: start, FinishedAt: start.Add(90 * time.Second)})

	expected := `
# HELP digitflow_retrain_cycles_total Retraining cycles, by outcome.
# TYPE digitflow_retrain_cycles_total counter
digitflow_retrain_cycles_total{outcome="completed"} 1
digitflow_retrain_cycles_total{outcome="skipped"} 1
# HELP digitflow_unprocessed_corrections Unprocessed corrections seen by the last retraining check.
# TYPE digitflow_unprocessed_corrections gauge
digitflow_unprocessed_corrections 0
`
	if err := testutil.GatherAndCompare(reg.Gatherer(), strings.NewReader(expected),
		"digitflow_retrain_cycles_total", "digitflow_unprocessed_corrections"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if n, err := testutil.GatherAndCount(reg.Gatherer(), "digitflow_retrain_duration_seconds"); err != nil || n != 1 {
		t.Fatalf("expected one duration series, got %d (%v)", n, err)
	}
}

func TestPredictionAndReloadCounters(t *testing.T) {
	reg := metrics.New()
	reg.ObservePrediction(7)
	reg.ObservePrediction(7)
	reg.ObservePredictionError()
	reg.ObserveReload(true)
	reg.ObserveReload(false)
	reg.ObserveCorrection()

	expected := `
# HELP digitflow_predictions_total Predictions served, by predicted label.
# TYPE digitflow_predictions_total counter
digitflow_predictions_total{label="7"} 2
# HELP digitflow_reloads_total Model reload attempts, by result.
# TYPE digitflow_reloads_total counter
digitflow_reloads_total{result="failure"} 1
digitflow_reloads_total{result="success"} 1
# HELP digitflow_prediction_errors_total Prediction requests that failed.
# TYPE digitflow_prediction_errors_total counter
digitflow_prediction_errors_total 1
# HELP digitflow_corrections_total Corrections recorded.
# TYPE digitflow_corrections_total counter
digitflow_corrections_total 1
`
	if err := testutil.GatherAndCompare(reg.Gatherer(), strings.NewReader(expected),
		"digitflow_predictions_total", "digitflow_reloads_total",
		"digitflow_prediction_errors_total", "digitflow_corrections_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	reg := metrics.New()
	reg.ObserveCorrection()

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 || !strings.Contains(string(body), "digitflow_corrections_total 1") {
		t.Fatalf("unexpected response %d: %s", rec.Code, body)
	}
}
