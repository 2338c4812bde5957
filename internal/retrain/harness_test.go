package retrain_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"digitflow/internal/config"
	"digitflow/internal/corrections"
	"digitflow/internal/model"
	"digitflow/internal/notifications"
	"digitflow/internal/retrain"
	"digitflow/internal/testsupport"
)

type fakeTrainer struct {
	mu     sync.Mutex
	calls  int
	extras [][]model.Sample
	err    error
	during func()
}

func (f *fakeTrainer) Retrain(_ context.Context, extra []model.Sample) (*model.Network, model.Metadata, error) {
	f.mu.Lock()
	f.calls++
	f.extras = append(f.extras, extra)
	during, err := f.during, f.err
	f.mu.Unlock()
	if during != nil {
		during()
	}
	if err != nil {
		return nil, model.Metadata{}, err
	}
	return model.NewNetwork(1), model.Metadata{Samples: 100 + len(extra), Corrections: len(extra)}, nil
}

func (f *fakeTrainer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeArtifacts struct {
	mu    sync.Mutex
	saves int
	err   error
}

func (f *fakeArtifacts) Save(_ context.Context, _ *model.Network, _ model.Metadata) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.saves++
	return fmt.Sprintf("v%d", f.saves), nil
}

func (f *fakeArtifacts) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type fakeReloader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeReloader) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []retrain.Outcome
}

func (r *recordingObserver) ObserveCycle(o retrain.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

type harness struct {
	cfg       *config.Config
	store     *corrections.Store
	trainer   *fakeTrainer
	artifacts *fakeArtifacts
	reloader  *fakeReloader
	notifier  *recordingNotifier
	observer  *recordingObserver
	logs      *bytes.Buffer
	orch      *retrain.Orchestrator
}

func newHarness(t *testing.T, threshold int) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithDriftThreshold(threshold))
	h := &harness{
		cfg:       cfg,
		store:     testsupport.MustOpenStore(t, cfg),
		trainer:   &fakeTrainer{},
		artifacts: &fakeArtifacts{},
		reloader:  &fakeReloader{},
		notifier:  &recordingNotifier{},
		observer:  &recordingObserver{},
		logs:      &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(&lockedWriter{buf: h.logs}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h.orch = &retrain.Orchestrator{
		Open:      retrain.StoreOpener(cfg.Paths.DatabasePath),
		Trainer:   h.trainer,
		Artifacts: h.artifacts,
		Reloader:  h.reloader,
		Notifier:  h.notifier,
		Observer:  h.observer,
		Logger:    logger,
		Threshold: cfg.Retrain.DriftThreshold,
	}
	return h
}

// addValid records a correction backed by a decodable image.
func (h *harness) addValid(t *testing.T, digit int) int64 {
	t.Helper()
	path := filepath.Join(h.cfg.Paths.CorrectionsDir, fmt.Sprintf("c%d_%d.png", digit, len(h.all(t))))
	testsupport.WriteDigitPNG(t, path, digit)
	return testsupport.RecordCorrection(t, h.store, path, digit, (digit+1)%10)
}

func (h *harness) addValidN(t *testing.T, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, h.addValid(t, i%10))
	}
	return ids
}

func (h *harness) unprocessedIDs(t *testing.T) []int64 {
	t.Helper()
	items, err := h.store.List(context.Background(), corrections.FilterUnprocessed)
	if err != nil {
		t.Fatalf("List unprocessed: %v", err)
	}
	ids := corrections.IDs(items)
	slices.Sort(ids)
	return ids
}

func (h *harness) all(t *testing.T) []corrections.Correction {
	t.Helper()
	items, err := h.store.List(context.Background(), corrections.FilterAll)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	slices.SortFunc(items, func(a, b corrections.Correction) int { return int(a.ID - b.ID) })
	return items
}

type lockedWriter struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
