package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"digitflow/internal/config"
	"digitflow/internal/model"
	"digitflow/internal/notifications"
	"digitflow/internal/retrain"
)

// newOrchestrator wires the retraining cycle for a process that does not
// host the inference service: the reload goes over HTTP to reload_url.
func newOrchestrator(cfg *config.Config, logger *slog.Logger, threshold int) *retrain.Orchestrator {
	trainer := model.NewTrainer(cfg, logger)
	return &retrain.Orchestrator{
		Open:      retrain.StoreOpener(cfg.Paths.DatabasePath),
		Trainer:   trainer,
		Artifacts: model.NewArtifactStore(cfg.Paths.ModelPath, trainer.Bootstrap, logger),
		Reloader:  retrain.NewHTTPReloader(cfg.Retrain.ReloadURL, cfg.Paths.APIToken, cfg.ReloadTimeout()),
		Notifier:  notifications.NewService(cfg),
		Logger:    logger,
		Threshold: threshold,
	}
}

func newSchedulerFor(cfg *config.Config, orch *retrain.Orchestrator, logger *slog.Logger) *retrain.Scheduler {
	return retrain.NewScheduler(orch, retrain.SchedulerOptions{
		Interval:   cfg.RetrainInterval(),
		Align:      cfg.Retrain.AlignToInterval,
		RunOnStart: cfg.Retrain.RunOnStart,
		LockPath:   cfg.RetrainLockPath(),
		StatusPath: cfg.RetrainStatusPath(),
		Logger:     logger,
	})
}

func newSchedulerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run drift-triggered retraining on the configured cadence",
		Long: `Run retraining cycles every retrain.interval_minutes. Each cycle retrains
only when the number of unprocessed corrections exceeds
retrain.drift_threshold, then asks the server at retrain.reload_url to reload.
A trigger that arrives while a cycle is still running is skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.serviceLogger("scheduler")
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			orch := newOrchestrator(cfg, logger, cfg.Retrain.DriftThreshold)
			return newSchedulerFor(cfg, orch, logger).Run(signalCtx)
		},
	}
}

func newRetrainCommand(ctx *commandContext) *cobra.Command {
	var forceThreshold int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Run one retraining cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger("retrain")
			if err != nil {
				return err
			}
			threshold := cfg.Retrain.DriftThreshold
			if cmd.Flags().Changed("force-threshold") {
				if forceThreshold < 0 {
					return fmt.Errorf("--force-threshold must not be negative")
				}
				threshold = forceThreshold
			}

			orch := newOrchestrator(cfg, logger, threshold)
			out, err := newSchedulerFor(cfg, orch, logger).TriggerNow(cmd.Context())
			if errors.Is(err, retrain.ErrCycleInProgress) {
				return fmt.Errorf("a retraining cycle is already running (lock %s)", cfg.RetrainLockPath())
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), renderOutcome(out, shouldColorize(os.Stdout) && cmd.OutOrStdout() == os.Stdout))
			}
			if out.Result == retrain.ResultFailed {
				return fmt.Errorf("retraining failed at %s: %w", out.Stage, out.Err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&forceThreshold, "force-threshold", 0, "Override retrain.drift_threshold for this run")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the cycle outcome as JSON")
	return cmd
}
