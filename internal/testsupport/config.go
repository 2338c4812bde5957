package testsupport

import (
	"path/filepath"
	"testing"

	"digitflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Training defaults are shrunk so tests that exercise the real trainer stay
// fast. Options are applied last.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "data", "logs")
	cfgVal.Paths.CorrectionsDir = filepath.Join(base, "data", "corrections")
	cfgVal.Paths.DatasetDir = filepath.Join(base, "data", "mnist")
	cfgVal.Paths.ModelPath = filepath.Join(base, "data", "mnist_model.cbor")
	cfgVal.Paths.DatabasePath = filepath.Join(base, "data", "corrections.db")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Training.Epochs = 1
	cfgVal.Training.BatchSize = 8
	cfgVal.Training.BootstrapBatchSize = 8
	cfgVal.Training.Seed = 7

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return builder.cfg
}

// WithDriftThreshold overrides the retrain trigger count.
func WithDriftThreshold(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retrain.DriftThreshold = n
	}
}

// WithAPIToken enables bearer-token auth on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
