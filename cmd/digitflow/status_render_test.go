package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"digitflow/internal/retrain"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Inference service", statusError, "unreachable", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Inference service:", "[ERROR] unreachable")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Drift", statusOK, "2 unprocessed", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDisplayLabel(t *testing.T) {
	cases := map[string]string{
		"RETRAINING":        "Retraining",
		"store_unavailable": "Store Unavailable",
		"skipped":           "Skipped",
		"":                  "",
	}
	for in, want := range cases {
		if got := displayLabel(in); got != want {
			t.Errorf("displayLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestRenderOutcomeSkipped(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	out := retrain.Outcome{
		RunID:       "run-1",
		Result:      retrain.ResultSkipped,
		Stage:       retrain.StageSkip,
		Reason:      "2 unprocessed corrections do not exceed threshold 5",
		Threshold:   5,
		Unprocessed: 2,
		StartedAt:   start,
		FinishedAt:  start.Add(40 * time.Millisecond),
	}
	got := renderOutcome(out, false)
	for _, want := range []string{"[INFO] Skipped", "2 (threshold 5)", "do not exceed", "40ms"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected outcome to contain %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Marked processed") {
		t.Fatalf("skipped outcome should not report marking:\n%s", got)
	}
}

func TestRenderOutcomeFailed(t *testing.T) {
	out := retrain.Outcome{
		Result:         retrain.ResultFailed,
		Stage:          retrain.StageReloading,
		Threshold:      5,
		Unprocessed:    7,
		Decoded:        6,
		DecodeFailures: []int64{3},
		ModelVersion:   "abc123",
		Error:          "reload: connection refused",
		ErrorKind:      "reload_failure",
	}
	got := renderOutcome(out, false)
	for _, want := range []string{"[ERROR] Failed", "Reloading", "abc123", "Reload Failure", "3"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected outcome to contain %q:\n%s", want, got)
		}
	}
}

func TestFormatIDs(t *testing.T) {
	if got := formatIDs(nil); got != "none" {
		t.Fatalf("formatIDs(nil) = %q", got)
	}
	if got := formatIDs([]int64{4, 9}); got != "4, 9" {
		t.Fatalf("formatIDs = %q", got)
	}
}
