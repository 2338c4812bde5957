package main

import (
	"github.com/spf13/cobra"

	"digitflow/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the prediction API (and optionally the retraining scheduler)",
		Long: `Run the HTTP API that serves predictions, accepts corrections, and reloads
the model. The model artifact is loaded at startup; when it does not exist a
baseline is trained from the MNIST dataset first.

With --with-scheduler the retraining scheduler runs in the same process and
reloads the served model directly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:      ctx.logLevel(),
				WithScheduler: withScheduler,
			})
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "Also run the retraining scheduler in-process")
	return cmd
}
