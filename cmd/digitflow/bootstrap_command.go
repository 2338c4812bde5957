package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"digitflow/internal/logging"
	"digitflow/internal/model"
	"digitflow/internal/notifications"
)

func newBootstrapCommand(ctx *commandContext) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Train and save the baseline model from the MNIST dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger("bootstrap")
			if err != nil {
				return err
			}

			trainer := model.NewTrainer(cfg, logger)
			artifacts := model.NewArtifactStore(cfg.Paths.ModelPath, trainer.Bootstrap, logger)
			info, err := artifacts.Info()
			if err != nil {
				return err
			}
			if info.Exists && !overwrite {
				return fmt.Errorf("model artifact already exists at %s (version %s); use --overwrite to replace it", info.Path, info.Version)
			}
			if !model.DatasetPresent(cfg.Paths.DatasetDir) {
				return fmt.Errorf("%w in %s; run 'digitflow dataset download' first", model.ErrDatasetMissing, cfg.Paths.DatasetDir)
			}

			net, meta, err := trainer.Bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			version, err := artifacts.Save(cmd.Context(), net, meta)
			if err != nil {
				return err
			}
			payload := notifications.Payload{"model_version": version, "samples": meta.Samples}
			if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventBootstrapCompleted, payload); err != nil {
				logger.Warn("bootstrap notification failed", logging.Error(err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Saved baseline model %s to %s (%d samples)\n", version, cfg.Paths.ModelPath, meta.Samples)
			fmt.Fprintln(out, "A running server picks it up on POST /reload.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing model artifact")
	return cmd
}

