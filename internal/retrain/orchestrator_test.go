package retrain_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"digitflow/internal/corrections"
	"digitflow/internal/notifications"
	"digitflow/internal/retrain"
	"digitflow/internal/services"
	"digitflow/internal/testsupport"
)

func TestCycleAtOrBelowThresholdHasNoSideEffects(t *testing.T) {
	for n := 0; n <= 5; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			h := newHarness(t, 5)
			h.addValidN(t, n)
			before := h.all(t)

			out := h.orch.RunCycle(context.Background())

			if out.Result != retrain.ResultSkipped || out.Stage != retrain.StageSkip {
				t.Fatalf("expected skip, got result=%s stage=%s err=%v", out.Result, out.Stage, out.Err)
			}
			if out.Unprocessed != n {
				t.Fatalf("expected %d unprocessed, got %d", n, out.Unprocessed)
			}
			if h.trainer.callCount() != 0 || h.artifacts.saveCount() != 0 || h.reloader.calls != 0 {
				t.Fatalf("skip path touched collaborators: train=%d save=%d reload=%d",
					h.trainer.callCount(), h.artifacts.saveCount(), h.reloader.calls)
			}
			if diff := cmp.Diff(before, h.all(t)); diff != "" {
				t.Fatalf("store changed on skip (-before +after):\n%s", diff)
			}
		})
	}
}

func TestCycleAboveThresholdMarksExactlyConsideredIDs(t *testing.T) {
	for _, n := range []int{6, 9, 14} {
		h := newHarness(t, 5)
		ids := h.addValidN(t, n)

		out := h.orch.RunCycle(context.Background())

		if out.Result != retrain.ResultCompleted {
			t.Fatalf("n=%d: expected completed, got %s (%v)", n, out.Result, out.Err)
		}
		if out.Marked != int64(n) {
			t.Fatalf("n=%d: expected %d marked, got %d", n, n, out.Marked)
		}
		if h.artifacts.saveCount() != 1 || h.reloader.calls != 1 {
			t.Fatalf("n=%d: expected one save and one reload, got save=%d reload=%d", n, h.artifacts.saveCount(), h.reloader.calls)
		}
		if got := len(h.trainer.extras[0]); got != n {
			t.Fatalf("n=%d: trainer received %d correction samples", n, got)
		}
		if left := h.unprocessedIDs(t); len(left) != 0 {
			t.Fatalf("n=%d: expected no unprocessed corrections, got %v", n, left)
		}
		for _, c := range h.all(t) {
			if !c.Processed || !slices.Contains(ids, c.ID) {
				t.Fatalf("n=%d: unexpected row state %+v", n, c)
			}
		}
	}
}

func TestSixCorrectionsWithThresholdFiveRetrains(t *testing.T) {
	h := newHarness(t, 5)
	h.addValidN(t, 6)

	out := h.orch.RunCycle(context.Background())
	if out.Result != retrain.ResultCompleted || out.Stage != retrain.StageMarking {
		t.Fatalf("expected completed in MARKING, got %s/%s (%v)", out.Result, out.Stage, out.Err)
	}
	if out.Marked != 6 || out.ModelVersion != "v1" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if left := h.unprocessedIDs(t); len(left) != 0 {
		t.Fatalf("expected empty unprocessed list, got %v", left)
	}
	if diff := cmp.Diff([]notifications.Event{notifications.EventRetrainCompleted}, h.notifier.events); diff != "" {
		t.Fatalf("unexpected notifications (-want +got):\n%s", diff)
	}
}

func TestThreeCorrectionsWithThresholdFiveSkips(t *testing.T) {
	h := newHarness(t, 5)
	ids := h.addValidN(t, 3)
	slices.Sort(ids)

	out := h.orch.RunCycle(context.Background())
	if out.Result != retrain.ResultSkipped {
		t.Fatalf("expected skip, got %s", out.Result)
	}
	if diff := cmp.Diff(ids, h.unprocessedIDs(t)); diff != "" {
		t.Fatalf("unprocessed set changed (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(h.cfg.Paths.ModelPath); !os.IsNotExist(err) {
		t.Fatalf("skip must not write an artifact, stat err=%v", err)
	}
}

func TestSecondCycleWithoutNewCorrectionsIsIdempotent(t *testing.T) {
	h := newHarness(t, 5)
	h.addValidN(t, 7)

	first := h.orch.RunCycle(context.Background())
	if first.Result != retrain.ResultCompleted {
		t.Fatalf("first cycle: expected completed, got %s (%v)", first.Result, first.Err)
	}
	afterFirst := h.all(t)
	savesAfterFirst := h.artifacts.saveCount()

	second := h.orch.RunCycle(context.Background())
	if second.Result != retrain.ResultSkipped || second.Unprocessed != 0 {
		t.Fatalf("second cycle: expected skip with zero unprocessed, got %s/%d", second.Result, second.Unprocessed)
	}
	if diff := cmp.Diff(afterFirst, h.all(t)); diff != "" {
		t.Fatalf("store changed by second cycle (-first +second):\n%s", diff)
	}
	if h.artifacts.saveCount() != savesAfterFirst || h.trainer.callCount() != 1 {
		t.Fatalf("second cycle retrained: saves=%d trains=%d", h.artifacts.saveCount(), h.trainer.callCount())
	}
	if first.RunID == second.RunID {
		t.Fatal("each cycle needs its own run id")
	}
}

func TestDecodeFailuresAreSkippedButMarked(t *testing.T) {
	h := newHarness(t, 5)
	valid := h.addValidN(t, 5)

	garbage := filepath.Join(h.cfg.Paths.CorrectionsDir, "garbage.png")
	testsupport.WriteBytes(t, garbage, []byte("not a png"))
	badID := testsupport.RecordCorrection(t, h.store, garbage, 3, 8)
	missingID := testsupport.RecordCorrection(t, h.store, filepath.Join(h.cfg.Paths.CorrectionsDir, "gone.png"), 4, 9)

	out := h.orch.RunCycle(context.Background())

	if out.Result != retrain.ResultCompleted {
		t.Fatalf("expected completed, got %s (%v)", out.Result, out.Err)
	}
	if out.Unprocessed != 7 || out.Decoded != 5 {
		t.Fatalf("expected 7 considered and 5 decoded, got %d/%d", out.Unprocessed, out.Decoded)
	}
	failures := slices.Clone(out.DecodeFailures)
	slices.Sort(failures)
	if diff := cmp.Diff([]int64{badID, missingID}, failures); diff != "" {
		t.Fatalf("unexpected decode failures (-want +got):\n%s", diff)
	}
	if got := len(h.trainer.extras[0]); got != len(valid) {
		t.Fatalf("trainer received %d samples, want %d", got, len(valid))
	}
	if out.Marked != 7 {
		t.Fatalf("expected all 7 marked including undecodable, got %d", out.Marked)
	}
	if left := h.unprocessedIDs(t); len(left) != 0 {
		t.Fatalf("expected nothing unprocessed, got %v", left)
	}

	var sawSkipLog bool
	for _, line := range strings.Split(strings.TrimSpace(h.logs.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if entry["event_type"] != "correction_decode_failed" {
			continue
		}
		sawSkipLog = true
		if entry["stage"] != "RETRAINING" || entry["correlation_id"] != out.RunID {
			t.Fatalf("decode failure log lacks stage/run context: %v", entry)
		}
		if entry["correction_id"] == nil || entry["image_ref"] == nil {
			t.Fatalf("decode failure log lacks correction context: %v", entry)
		}
	}
	if !sawSkipLog {
		t.Fatal("expected a decode failure log entry")
	}
}

func TestReloadFailureWithholdsMarking(t *testing.T) {
	h := newHarness(t, 5)
	ids := h.addValidN(t, 6)
	slices.Sort(ids)
	h.reloader.err = errors.New("connection refused")

	out := h.orch.RunCycle(context.Background())

	if out.Result != retrain.ResultFailed || out.Stage != retrain.StageReloading {
		t.Fatalf("expected failure in RELOADING, got %s/%s", out.Result, out.Stage)
	}
	if !errors.Is(out.Err, retrain.ErrReloadFailure) || out.ErrorKind != "reload_failure" {
		t.Fatalf("expected reload failure, got %v (%s)", out.Err, out.ErrorKind)
	}
	if h.artifacts.saveCount() != 1 || out.ModelVersion != "v1" {
		t.Fatalf("artifact should already be saved: saves=%d version=%q", h.artifacts.saveCount(), out.ModelVersion)
	}
	if out.Marked != 0 {
		t.Fatalf("expected nothing marked, got %d", out.Marked)
	}
	if diff := cmp.Diff(ids, h.unprocessedIDs(t)); diff != "" {
		t.Fatalf("reload failure marked corrections (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]notifications.Event{notifications.EventReloadFailed}, h.notifier.events); diff != "" {
		t.Fatalf("unexpected notifications (-want +got):\n%s", diff)
	}

	h.reloader.err = nil
	retry := h.orch.RunCycle(context.Background())
	if retry.Result != retrain.ResultCompleted || retry.Marked != 6 {
		t.Fatalf("next cycle should recover, got %s marked=%d (%v)", retry.Result, retry.Marked, retry.Err)
	}
}

func TestTrainingFailureIsFailClosed(t *testing.T) {
	h := newHarness(t, 5)
	ids := h.addValidN(t, 8)
	slices.Sort(ids)
	h.trainer.err = errors.New("out of memory")

	out := h.orch.RunCycle(context.Background())

	if out.Result != retrain.ResultFailed || out.Stage != retrain.StageRetraining {
		t.Fatalf("expected failure in RETRAINING, got %s/%s", out.Result, out.Stage)
	}
	if !errors.Is(out.Err, retrain.ErrTrainingFailure) {
		t.Fatalf("expected training failure, got %v", out.Err)
	}
	if h.artifacts.saveCount() != 0 || h.reloader.calls != 0 {
		t.Fatalf("training failure must stop the cycle: saves=%d reloads=%d", h.artifacts.saveCount(), h.reloader.calls)
	}
	if diff := cmp.Diff(ids, h.unprocessedIDs(t)); diff != "" {
		t.Fatalf("training failure changed flags (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]notifications.Event{notifications.EventRetrainFailed}, h.notifier.events); diff != "" {
		t.Fatalf("unexpected notifications (-want +got):\n%s", diff)
	}
}

func TestArtifactWriteFailureStopsBeforeReload(t *testing.T) {
	h := newHarness(t, 5)
	ids := h.addValidN(t, 6)
	slices.Sort(ids)
	h.artifacts.err = errors.New("disk full")

	out := h.orch.RunCycle(context.Background())

	if out.Result != retrain.ResultFailed || !errors.Is(out.Err, retrain.ErrArtifactWrite) {
		t.Fatalf("expected artifact write failure, got %s (%v)", out.Result, out.Err)
	}
	if h.reloader.calls != 0 {
		t.Fatalf("reload must not run after a failed save, got %d calls", h.reloader.calls)
	}
	if diff := cmp.Diff(ids, h.unprocessedIDs(t)); diff != "" {
		t.Fatalf("save failure changed flags (-want +got):\n%s", diff)
	}
}

func TestMissingStoreCountsAsZeroCorrections(t *testing.T) {
	h := newHarness(t, 5)
	missing := filepath.Join(t.TempDir(), "absent.db")
	h.orch.Open = retrain.StoreOpener(missing)

	out := h.orch.RunCycle(context.Background())

	if out.Result != retrain.ResultSkipped || !out.StoreUnavailable {
		t.Fatalf("expected skip on missing store, got %s store_unavailable=%v", out.Result, out.StoreUnavailable)
	}
	if out.Err != nil {
		t.Fatalf("missing store is not an error, got %v", out.Err)
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Fatalf("cycle must not create the database, stat err=%v", err)
	}
	if h.trainer.callCount() != 0 {
		t.Fatal("missing store must not train")
	}
}

func TestCorrectionsRecordedDuringCycleStayUnprocessed(t *testing.T) {
	h := newHarness(t, 5)
	h.addValidN(t, 6)
	var lateID int64
	h.trainer.during = func() {
		lateID = h.addValid(t, 2)
	}

	out := h.orch.RunCycle(context.Background())

	if out.Result != retrain.ResultCompleted || out.Marked != 6 {
		t.Fatalf("expected 6 marked, got %s marked=%d (%v)", out.Result, out.Marked, out.Err)
	}
	if diff := cmp.Diff([]int64{lateID}, h.unprocessedIDs(t)); diff != "" {
		t.Fatalf("late correction should remain unprocessed (-want +got):\n%s", diff)
	}
}

type failingMarkSource struct {
	items []corrections.Correction
}

func (f *failingMarkSource) List(context.Context, corrections.Filter) ([]corrections.Correction, error) {
	return f.items, nil
}

func (f *failingMarkSource) MarkProcessed(context.Context, []int64) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestMarkingFailureIsReported(t *testing.T) {
	h := newHarness(t, 1)
	path := testsupport.WriteDigitPNG(t, filepath.Join(t.TempDir(), "a.png"), 1)
	source := &failingMarkSource{items: []corrections.Correction{
		{ID: 1, ImageRef: path, TrueLabel: 1},
		{ID: 2, ImageRef: path, TrueLabel: 1},
	}}
	h.orch.Open = func(context.Context) (retrain.CorrectionSource, func() error, error) {
		return source, nil, nil
	}

	out := h.orch.RunCycle(context.Background())
	if out.Result != retrain.ResultFailed || out.Stage != retrain.StageMarking {
		t.Fatalf("expected failure in MARKING, got %s/%s", out.Result, out.Stage)
	}
	if h.reloader.calls != 1 {
		t.Fatalf("reload should have happened before marking, got %d", h.reloader.calls)
	}
	if !errors.Is(out.Err, retrain.ErrStoreUnavailable) || out.ErrorKind != "store_unavailable" {
		t.Fatalf("expected store_unavailable marking error, got %q: %v", out.ErrorKind, out.Err)
	}
	if !strings.Contains(out.Error, "database is locked") {
		t.Fatalf("expected cause in error, got %q", out.Error)
	}
}

func TestCycleLogsStagesWithRunID(t *testing.T) {
	h := newHarness(t, 5)
	h.addValidN(t, 6)

	out := h.orch.RunCycle(context.Background())

	seen := map[string]bool{}
	for _, line := range strings.Split(strings.TrimSpace(h.logs.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		stage, _ := entry["stage"].(string)
		if stage == "" {
			continue
		}
		if entry["correlation_id"] != out.RunID {
			t.Fatalf("stage log without run correlation id: %v", entry)
		}
		if entry["event_type"] != "retrain_stage" {
			continue
		}
		if entry["level"] != "INFO" {
			t.Fatalf("stage transition logged at %v, want INFO", entry["level"])
		}
		seen[stage] = true
	}
	for _, stage := range []string{"CHECKING", "RETRAINING", "RELOADING", "MARKING", "IDLE"} {
		if !seen[stage] {
			t.Fatalf("missing log for stage %s; saw %v", stage, seen)
		}
	}
}

func TestObserverReceivesOutcome(t *testing.T) {
	h := newHarness(t, 5)
	h.addValidN(t, 2)

	out := h.orch.RunCycle(context.Background())
	if len(h.observer.outcomes) != 1 {
		t.Fatalf("expected one observed outcome, got %d", len(h.observer.outcomes))
	}
	got := h.observer.outcomes[0]
	if got.RunID != out.RunID || got.FinishedAt.IsZero() || out.FinishedAt.IsZero() {
		t.Fatalf("observer saw %+v, cycle returned %+v", got, out)
	}
	if services.Kind(got.Err) != "" {
		t.Fatalf("skip should carry no error, got %v", got.Err)
	}
}
