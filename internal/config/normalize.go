package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRetrain(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	derived := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.log_dir", &c.Paths.LogDir, filepath.Join(c.Paths.DataDir, "logs")},
		{"paths.corrections_dir", &c.Paths.CorrectionsDir, filepath.Join(c.Paths.DataDir, "corrections")},
		{"paths.dataset_dir", &c.Paths.DatasetDir, filepath.Join(c.Paths.DataDir, "mnist")},
		{"paths.model_path", &c.Paths.ModelPath, filepath.Join(c.Paths.DataDir, modelFileName)},
		{"paths.database_path", &c.Paths.DatabasePath, filepath.Join(c.Paths.DataDir, databaseFileName)},
	}
	for _, entry := range derived {
		if strings.TrimSpace(*entry.value) == "" {
			*entry.value = entry.fallback
		}
		if *entry.value, err = expandPath(strings.TrimSpace(*entry.value)); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("DIGITFLOW_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeRetrain() error {
	if c.Retrain.DriftThreshold == 0 {
		c.Retrain.DriftThreshold = defaultDriftThreshold
		if value, ok := os.LookupEnv("DRIFT_THRESHOLD"); ok && strings.TrimSpace(value) != "" {
			parsed, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("DRIFT_THRESHOLD: %q is not an integer", value)
			}
			c.Retrain.DriftThreshold = parsed
		}
	}
	c.Retrain.ReloadURL = strings.TrimSpace(c.Retrain.ReloadURL)
	if c.Retrain.ReloadURL == "" {
		c.Retrain.ReloadURL = defaultReloadURL
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
