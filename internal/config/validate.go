package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRetrain(); err != nil {
		return err
	}
	if err := c.validateTraining(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRetrain() error {
	if c.Retrain.DriftThreshold <= 0 {
		return errors.New("retrain.drift_threshold must be positive")
	}
	if err := ensurePositiveMap(map[string]int{
		"retrain.interval_minutes":       c.Retrain.IntervalMinutes,
		"retrain.reload_timeout_seconds": c.Retrain.ReloadTimeoutSeconds,
	}); err != nil {
		return err
	}
	parsed, err := url.Parse(c.Retrain.ReloadURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("retrain.reload_url %q must be an absolute http(s) URL", c.Retrain.ReloadURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("retrain.reload_url %q must use http or https", c.Retrain.ReloadURL)
	}
	return nil
}

func (c *Config) validateTraining() error {
	t := c.Training
	if err := ensurePositiveMap(map[string]int{
		"training.epochs":               t.Epochs,
		"training.batch_size":           t.BatchSize,
		"training.bootstrap_batch_size": t.BootstrapBatchSize,
	}); err != nil {
		return err
	}
	if t.LearningRate <= 0 || t.LearningRate >= 1 {
		return errors.New("training.learning_rate must be between 0 and 1")
	}
	if t.MaxReferenceSamples < 0 {
		return errors.New("training.max_reference_samples must not be negative")
	}
	if t.RotationDegrees < 0 || t.RotationDegrees > 180 {
		return errors.New("training.rotation_degrees must be between 0 and 180")
	}
	if t.ZoomRange < 0 || t.ZoomRange >= 1 {
		return errors.New("training.zoom_range must be between 0 and 1")
	}
	if t.ShiftRange < 0 || t.ShiftRange >= 1 {
		return errors.New("training.shift_range must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
