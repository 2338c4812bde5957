package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"digitflow/internal/api"
	"digitflow/internal/corrections"
	"digitflow/internal/inference"
	"digitflow/internal/retrain"
	"digitflow/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "cfg", "config.toml")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, stdout, "Wrote sample configuration to "+target)

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	} else {
		requireContains(t, err.Error(), "already exists")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	stdout, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, stdout, "Config path: "+target)
	requireContains(t, stdout, "Configuration valid")
}

func TestConfigValidateReportsInvalidFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	testsupport.WriteBytes(t, path, []byte("[retrain]\ndrift_threshold = -3\n"))

	_, _, err := runCLI(t, []string{"config", "validate"}, path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireContains(t, err.Error(), "retrain.drift_threshold")
}

func TestConfigShowMasksToken(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAPIToken("s3cret"))

	stdout, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(stdout, "s3cret") {
		t.Fatalf("token leaked in output:\n%s", stdout)
	}
	requireContains(t, stdout, "drift_threshold = 5")
}

func TestCorrectionsAddListAndStats(t *testing.T) {
	env := setupCLITestEnv(t)
	image := testsupport.WriteDigitPNG(t, filepath.Join(env.baseDir, "seven.png"), 7)

	stdout, _, err := runCLI(t, []string{"corrections", "add", image, "--true", "7", "--pred", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("corrections add: %v", err)
	}
	requireContains(t, stdout, "Recorded correction 1")

	stdout, _, err = runCLI(t, []string{"corrections", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("corrections list: %v", err)
	}
	list := decodeJSON[api.CorrectionListResponse](t, stdout)
	if list.Filter != "unprocessed" || len(list.Items) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}
	item := list.Items[0]
	if item.TrueLabel != 7 || item.PredictedLabel != 1 || item.Processed {
		t.Fatalf("unexpected correction: %+v", item)
	}
	if filepath.Dir(item.ImageRef) != env.cfg.Paths.CorrectionsDir {
		t.Fatalf("image stored outside corrections dir: %s", item.ImageRef)
	}

	stdout, _, err = runCLI(t, []string{"corrections", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("corrections list (table): %v", err)
	}
	requireContains(t, stdout, filepath.Base(item.ImageRef))

	stdout, _, err = runCLI(t, []string{"corrections", "stats", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("corrections stats: %v", err)
	}
	stats := decodeJSON[api.CorrectionStats](t, stdout)
	want := api.CorrectionStats{Total: 1, Unprocessed: 1, Available: true}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestCorrectionsAddRejectsInvalidLabel(t *testing.T) {
	env := setupCLITestEnv(t)
	image := testsupport.WriteDigitPNG(t, filepath.Join(env.baseDir, "three.png"), 3)

	_, _, err := runCLI(t, []string{"corrections", "add", image, "--true", "12", "--pred", "3"}, env.configPath)
	if !errors.Is(err, corrections.ErrInvalidLabel) {
		t.Fatalf("expected ErrInvalidLabel, got %v", err)
	}

	stdout, _, err := runCLI(t, []string{"corrections", "list", "--all"}, env.configPath)
	if err != nil {
		t.Fatalf("corrections list: %v", err)
	}
	requireContains(t, stdout, "No all corrections")
}

func TestRetrainSkipsBelowThreshold(t *testing.T) {
	env := setupCLITestEnv(t)
	image := testsupport.WriteDigitPNG(t, filepath.Join(env.baseDir, "two.png"), 2)
	for range 2 {
		if _, _, err := runCLI(t, []string{"corrections", "add", image, "--true", "2", "--pred", "5"}, env.configPath); err != nil {
			t.Fatalf("corrections add: %v", err)
		}
	}

	stdout, _, err := runCLI(t, []string{"retrain", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("retrain: %v", err)
	}
	out := decodeJSON[retrain.Outcome](t, stdout)
	if out.Result != retrain.ResultSkipped || out.Stage != retrain.StageSkip {
		t.Fatalf("expected skipped cycle, got %+v", out)
	}
	if out.Unprocessed != 2 || out.Threshold != 5 || out.Marked != 0 {
		t.Fatalf("unexpected counts: %+v", out)
	}

	saved, ok, err := retrain.LoadOutcome(env.cfg.RetrainStatusPath())
	if err != nil || !ok {
		t.Fatalf("expected saved outcome, ok=%v err=%v", ok, err)
	}
	if saved.RunID != out.RunID {
		t.Fatalf("saved run %q, printed run %q", saved.RunID, out.RunID)
	}
}

func TestRetrainRejectsNegativeThreshold(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"retrain", "--force-threshold", "-1"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for negative threshold")
	}
}

func TestRetrainCompletesAndNotifiesServer(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteMNISTFixture(t, env.cfg.Paths.DatasetDir, 20, 10, false)

	var reloads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/reload" {
			http.NotFound(w, r)
			return
		}
		reloads.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	env.cfg.Retrain.ReloadURL = srv.URL + "/reload"
	env.rewrite(t)

	image := testsupport.WriteDigitPNG(t, filepath.Join(env.baseDir, "four.png"), 4)
	for range 6 {
		if _, _, err := runCLI(t, []string{"corrections", "add", image, "--true", "4", "--pred", "9"}, env.configPath); err != nil {
			t.Fatalf("corrections add: %v", err)
		}
	}

	stdout, _, err := runCLI(t, []string{"retrain", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("retrain: %v", err)
	}
	out := decodeJSON[retrain.Outcome](t, stdout)
	if out.Result != retrain.ResultCompleted || out.Marked != 6 || out.ModelVersion == "" {
		t.Fatalf("expected completed cycle marking 6, got %+v", out)
	}
	if reloads.Load() != 1 {
		t.Fatalf("expected one reload request, got %d", reloads.Load())
	}

	stdout, _, err = runCLI(t, []string{"corrections", "stats", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("corrections stats: %v", err)
	}
	if stats := decodeJSON[api.CorrectionStats](t, stdout); stats.Processed != 6 || stats.Unprocessed != 0 {
		t.Fatalf("unexpected stats after retrain: %+v", stats)
	}
}

func TestRetrainReloadFailureKeepsCorrectionsUnprocessed(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteMNISTFixture(t, env.cfg.Paths.DatasetDir, 20, 0, false)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	env.cfg.Retrain.ReloadURL = srv.URL + "/reload"
	env.rewrite(t)

	image := testsupport.WriteDigitPNG(t, filepath.Join(env.baseDir, "one.png"), 1)
	for range 6 {
		if _, _, err := runCLI(t, []string{"corrections", "add", image, "--true", "1", "--pred", "7"}, env.configPath); err != nil {
			t.Fatalf("corrections add: %v", err)
		}
	}

	stdout, _, err := runCLI(t, []string{"retrain"}, env.configPath)
	if !errors.Is(err, retrain.ErrReloadFailure) {
		t.Fatalf("expected reload failure, got %v", err)
	}
	requireContains(t, stdout, "[ERROR] Failed")

	if _, err := os.Stat(env.cfg.Paths.ModelPath); err != nil {
		t.Fatalf("expected artifact to stay saved: %v", err)
	}
	stdout, _, err = runCLI(t, []string{"corrections", "stats", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("corrections stats: %v", err)
	}
	if stats := decodeJSON[api.CorrectionStats](t, stdout); stats.Unprocessed != 6 {
		t.Fatalf("corrections must stay unprocessed after a reload failure: %+v", stats)
	}
}

func TestBootstrapThenPredict(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"bootstrap"}, env.configPath); err == nil {
		t.Fatal("expected bootstrap to fail without a dataset")
	} else {
		requireContains(t, err.Error(), "dataset download")
	}

	testsupport.WriteMNISTFixture(t, env.cfg.Paths.DatasetDir, 20, 10, true)
	stdout, _, err := runCLI(t, []string{"bootstrap"}, env.configPath)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	requireContains(t, stdout, "Saved baseline model")

	if _, _, err := runCLI(t, []string{"bootstrap"}, env.configPath); err == nil {
		t.Fatal("expected bootstrap to refuse overwriting without --overwrite")
	}

	image := testsupport.WriteDigitPNG(t, filepath.Join(env.baseDir, "eight.png"), 8)
	stdout, _, err = runCLI(t, []string{"predict", image, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	pred := decodeJSON[inference.Prediction](t, stdout)
	if pred.Label < 0 || pred.Label > 9 || len(pred.Probabilities) != 10 || pred.ModelVersion == "" {
		t.Fatalf("unexpected prediction: %+v", pred)
	}

	garbage := filepath.Join(env.baseDir, "garbage.png")
	testsupport.WriteBytes(t, garbage, []byte("not an image"))
	if _, _, err := runCLI(t, []string{"predict", garbage}, env.configPath); !errors.Is(err, inference.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}

func TestDatasetDownload(t *testing.T) {
	env := setupCLITestEnv(t)
	source := t.TempDir()
	testsupport.WriteMNISTFixture(t, source, 10, 10, true)
	srv := httptest.NewServer(http.FileServer(http.Dir(source)))
	t.Cleanup(srv.Close)

	stdout, _, err := runCLI(t, []string{"dataset", "download", "--url", srv.URL}, env.configPath)
	if err != nil {
		t.Fatalf("dataset download: %v", err)
	}
	if got := strings.Count(stdout, "Downloaded "); got != 4 {
		t.Fatalf("expected 4 downloaded files, got %d:\n%s", got, stdout)
	}

	stdout, _, err = runCLI(t, []string{"dataset", "download", "--url", srv.URL}, env.configPath)
	if err != nil {
		t.Fatalf("second dataset download: %v", err)
	}
	requireContains(t, stdout, "already present")
}

func TestStatusReportsChecksAndLastCycle(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Retrain.ReloadURL = "http://127.0.0.1:1/reload"
	env.rewrite(t)

	stdout, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "== System Status ==")
	requireContains(t, stdout, "Data directory:")
	requireContains(t, stdout, "[WARN] unreachable")
	requireContains(t, stdout, "0 (no corrections recorded)")
	requireContains(t, stdout, "No retraining cycle has run yet")

	if _, _, err := runCLI(t, []string{"retrain"}, env.configPath); err != nil {
		t.Fatalf("retrain: %v", err)
	}
	stdout, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "[INFO] Skipped")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	stdout, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, stdout, "ntfy topic not configured")
}

func TestTestNotifyPublishesToTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	env.cfg.Notifications.NtfyTopic = srv.URL + "/digitflow"
	env.rewrite(t)

	stdout, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, stdout, "Test notification sent")
	if hits.Load() != 1 {
		t.Fatalf("expected one ntfy request, got %d", hits.Load())
	}
}

func TestLogsShowsCommandLog(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"logs", "scheduler"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, stdout, "No log entries")

	if _, _, err := runCLI(t, []string{"retrain"}, env.configPath); err != nil {
		t.Fatalf("retrain: %v", err)
	}
	stdout, _, err = runCLI(t, []string{"logs", "retrain", "-n", "0"}, env.configPath)
	if err != nil {
		t.Fatalf("logs retrain: %v", err)
	}
	requireContains(t, stdout, "correction store unavailable")

	if _, _, err := runCLI(t, []string{"logs", "nonsense"}, env.configPath); err == nil {
		t.Fatal("expected unknown log source to be rejected")
	}
}
