package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"digitflow/internal/config"
	"digitflow/internal/logging"
	"digitflow/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, "scheduler")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("cycle finished", logging.String(logging.FieldStage, "IDLE"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "scheduler.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "[IDLE] cycle finished") {
		t.Fatalf("expected stage prefix in console output, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "debug",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.Int64(logging.FieldCorrectionID, 7))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &decoded); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if decoded["msg"] != "json message" || decoded["level"] != "info" {
		t.Fatalf("unexpected json record: %v", decoded)
	}
	if decoded[logging.FieldCorrectionID] != float64(7) {
		t.Fatalf("expected correction_id=7, got %v", decoded[logging.FieldCorrectionID])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-abc")
	ctx = services.WithStage(ctx, "RELOADING")
	ctx = services.WithRequestID(ctx, "req-xyz")

	decoded := logContextual(t, ctx)
	for key, want := range map[string]string{
		logging.FieldCorrelationID: "run-abc",
		logging.FieldStage:         "RELOADING",
		logging.FieldRequestID:     "req-xyz",
	} {
		if decoded[key] != want {
			t.Fatalf("field %s = %v, want %q", key, decoded[key], want)
		}
	}
}

func TestWithContextRequestIDCorrelatesWithoutRun(t *testing.T) {
	decoded := logContextual(t, services.WithRequestID(context.Background(), "req-xyz"))
	if decoded[logging.FieldCorrelationID] != "req-xyz" {
		t.Fatalf("correlation_id = %v, want req-xyz", decoded[logging.FieldCorrelationID])
	}
	if _, ok := decoded[logging.FieldRequestID]; ok {
		t.Fatalf("request_id should be absent without a run: %v", decoded)
	}
}

func logContextual(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, base).Info("contextual log")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return decoded
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "decode failed", "correction_decode_failed")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded[logging.FieldEventType] != "correction_decode_failed" {
		t.Fatalf("unexpected event type: %v", decoded[logging.FieldEventType])
	}
	if decoded[logging.FieldErrorHint] == nil || decoded[logging.FieldImpact] == nil {
		t.Fatalf("expected error_hint and impact defaults, got %v", decoded)
	}
}

func TestCleanupOldLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.log")
	freshPath := filepath.Join(dir, "fresh.log")
	keepPath := filepath.Join(dir, "current.log")
	for _, path := range []string{oldPath, freshPath, keepPath} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -30)
	for _, path := range []string{oldPath, keepPath} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "*.log",
		Exclude: []string{keepPath},
	})
	if removed != 1 {
		t.Fatalf("expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, path := range []string{freshPath, keepPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to remain: %v", path, err)
		}
	}
}
