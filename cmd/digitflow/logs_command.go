package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"digitflow/internal/logging"
	"digitflow/internal/logs"
)

var logSources = []string{"serve", "scheduler", "retrain", "bootstrap", "predict"}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:       "logs [serve|scheduler|retrain|bootstrap|predict]",
		Short:     "Display process logs",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: logSources,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source := "serve"
			if len(args) == 1 {
				source = args[0]
			}
			path := logging.LogFilePath(cfg, source)
			if path == "" {
				return fmt.Errorf("logging.log_dir is not configured")
			}

			out := cmd.OutOrStdout()
			tail, pos, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(tail) == 0 {
					fmt.Fprintf(out, "No log entries in %s\n", path)
				}
				return nil
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return logs.Follow(signalCtx, path, pos, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	return cmd
}
