package config

const (
	defaultDataDir              = "~/.local/share/digitflow"
	defaultAPIBind              = "127.0.0.1:8000"
	defaultDriftThreshold       = 5
	defaultIntervalMinutes      = 60
	defaultReloadURL            = "http://127.0.0.1:8000/reload"
	defaultReloadTimeoutSeconds = 30
	defaultEpochs               = 5
	defaultBatchSize            = 64
	defaultBootstrapBatchSize   = 200
	defaultLearningRate         = 0.001
	defaultRotationDegrees      = 10
	defaultZoomRange            = 0.1
	defaultShiftRange           = 0.1
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 60

	modelFileName    = "mnist_model.cbor"
	databaseFileName = "corrections.db"
)

// Default returns a Config populated with repository defaults. Derived paths
// (log, corrections, dataset, model, database) stay empty and are filled from
// data_dir during normalization.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Retrain: Retrain{
			DriftThreshold:       defaultDriftThreshold,
			IntervalMinutes:      defaultIntervalMinutes,
			AlignToInterval:      true,
			ReloadURL:            defaultReloadURL,
			ReloadTimeoutSeconds: defaultReloadTimeoutSeconds,
		},
		Training: Training{
			Epochs:             defaultEpochs,
			BatchSize:          defaultBatchSize,
			BootstrapBatchSize: defaultBootstrapBatchSize,
			LearningRate:       defaultLearningRate,
			RotationDegrees:    defaultRotationDegrees,
			ZoomRange:          defaultZoomRange,
			ShiftRange:         defaultShiftRange,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Retrain:        true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
