package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"digitflow/internal/config"
	"digitflow/internal/corrections"
	"digitflow/internal/daemon"
	"digitflow/internal/logging"
	"digitflow/internal/metrics"
	"digitflow/internal/notifications"
	"digitflow/internal/preflight"
)

// Options configures server process runtime behavior.
type Options struct {
	LogLevel      string
	WithScheduler bool
}

// Run starts the digitflow server and blocks until SIGINT/SIGTERM or ctx
// cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(cfg, "serve")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log", Exclude: []string{logging.LogFilePath(cfg, "serve")}},
	)
	logPreflight(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "digitflow.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := corrections.Open(cfg.Paths.DatabasePath)
	if err != nil {
		logger.Error("open correction store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger, daemon.Options{
		WithScheduler: opts.WithScheduler,
		Notifier:      notifications.NewService(cfg),
		Metrics:       metrics.New(),
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("digitflow server shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run 'digitflow status' for details"),
			logging.String(logging.FieldImpact, "the server may start without a model"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
