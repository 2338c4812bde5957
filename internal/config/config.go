package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, file, and bind address configuration.
type Paths struct {
	DataDir        string `toml:"data_dir"`
	LogDir         string `toml:"log_dir"`
	CorrectionsDir string `toml:"corrections_dir"`
	DatasetDir     string `toml:"dataset_dir"`
	ModelPath      string `toml:"model_path"`
	DatabasePath   string `toml:"database_path"`
	APIBind        string `toml:"api_bind"`
	APIToken       string `toml:"api_token"`
}

// Retrain contains configuration for the drift-triggered retraining job.
type Retrain struct {
	// DriftThreshold is the number of unprocessed corrections that must be
	// exceeded before a cycle retrains. Zero means "unset" until normalize.
	DriftThreshold       int    `toml:"drift_threshold"`
	IntervalMinutes      int    `toml:"interval_minutes"`
	AlignToInterval      bool   `toml:"align_to_interval"`
	RunOnStart           bool   `toml:"run_on_start"`
	ReloadURL            string `toml:"reload_url"`
	ReloadTimeoutSeconds int    `toml:"reload_timeout_seconds"`
}

// Training contains hyperparameters shared by bootstrap and retraining.
type Training struct {
	Epochs              int     `toml:"epochs"`
	BatchSize           int     `toml:"batch_size"`
	BootstrapBatchSize  int     `toml:"bootstrap_batch_size"`
	LearningRate        float64 `toml:"learning_rate"`
	MaxReferenceSamples int     `toml:"max_reference_samples"`
	Seed                int64   `toml:"seed"`
	RotationDegrees     float64 `toml:"rotation_degrees"`
	ZoomRange           float64 `toml:"zoom_range"`
	ShiftRange          float64 `toml:"shift_range"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Retrain        bool   `toml:"retrain"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for digitflow.
//
// Configuration sections by subsystem:
//   - Paths: data directories, model artifact, database, API bind address
//   - Retrain: drift threshold, schedule cadence, reload endpoint
//   - Training: epochs, batch sizes, optimizer and augmentation settings
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Retrain       Retrain       `toml:"retrain"`
	Training      Training      `toml:"training"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/digitflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()
	// Distinguish "absent from file" from an explicit value for the env fallback.
	cfg.Retrain.DriftThreshold = 0

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("digitflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for service operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		c.Paths.CorrectionsDir,
		filepath.Dir(c.Paths.ModelPath),
		filepath.Dir(c.Paths.DatabasePath),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RetrainInterval returns the scheduler cadence.
func (c *Config) RetrainInterval() time.Duration {
	return time.Duration(c.Retrain.IntervalMinutes) * time.Minute
}

// ReloadTimeout returns the timeout applied to reload notifications.
func (c *Config) ReloadTimeout() time.Duration {
	return time.Duration(c.Retrain.ReloadTimeoutSeconds) * time.Second
}

// RetrainLockPath is the flock file guarding retraining cycles across processes.
func (c *Config) RetrainLockPath() string {
	return filepath.Join(c.Paths.DataDir, "retrain.lock")
}

// RetrainStatusPath holds the JSON outcome of the most recent cycle.
func (c *Config) RetrainStatusPath() string {
	return filepath.Join(c.Paths.DataDir, "last_retrain.json")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Marshal encodes the config as TOML using the same keys Load reads.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
