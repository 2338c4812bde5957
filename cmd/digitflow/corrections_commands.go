package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"digitflow/internal/api"
	"digitflow/internal/corrections"
)

func newCorrectionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corrections",
		Short: "Inspect and add user corrections",
	}
	cmd.AddCommand(newCorrectionsListCommand(ctx))
	cmd.AddCommand(newCorrectionsAddCommand(ctx))
	cmd.AddCommand(newCorrectionsStatsCommand(ctx))
	return cmd
}

func newCorrectionsListCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List corrections (unprocessed by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			filter := corrections.FilterUnprocessed
			if all {
				filter = corrections.FilterAll
			}
			items, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.CorrectionListResponse{Filter: filter.String(), Items: api.FromCorrections(items)})
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintf(out, "No %s corrections\n", filter)
				return nil
			}
			fmt.Fprintln(out, renderCorrections(items))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include processed corrections")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print corrections as JSON")
	return cmd
}

func renderCorrections(items []corrections.Correction) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			strconv.Itoa(item.TrueLabel),
			strconv.Itoa(item.PredictedLabel),
			yesNo(item.Processed),
			item.CreatedAt.Local().Format(time.DateTime),
			filepath.Base(item.ImageRef),
		})
	}
	return renderTable(
		[]string{"ID", "True", "Predicted", "Processed", "Created", "Image"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight},
	)
}

func newCorrectionsAddCommand(ctx *commandContext) *cobra.Command {
	var trueLabel int
	var predictedLabel int

	cmd := &cobra.Command{
		Use:   "add <image>",
		Short: "Record a correction for an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			images := &corrections.ImageStore{Dir: cfg.Paths.CorrectionsDir, Recorder: store}
			sub, err := images.Submit(cmd.Context(), data, trueLabel, predictedLabel)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded correction %d (%s)\n", sub.ID, sub.ImageRef)
			return nil
		},
	}
	cmd.Flags().IntVar(&trueLabel, "true", -1, "Correct digit (0-9)")
	cmd.Flags().IntVar(&predictedLabel, "pred", -1, "Digit the model predicted (0-9)")
	_ = cmd.MarkFlagRequired("true")
	_ = cmd.MarkFlagRequired("pred")
	return cmd
}

func newCorrectionsStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show correction counts and the drift threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, api.FromStats(stats))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total:       %d\n", stats.Total)
			fmt.Fprintf(out, "Unprocessed: %d\n", stats.Unprocessed)
			fmt.Fprintf(out, "Processed:   %d\n", stats.Processed)
			if stats.Unprocessed > cfg.Retrain.DriftThreshold {
				fmt.Fprintf(out, "Drift threshold %d exceeded; the next cycle retrains\n", cfg.Retrain.DriftThreshold)
			} else {
				fmt.Fprintf(out, "Drift threshold %d not exceeded\n", cfg.Retrain.DriftThreshold)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print counts as JSON")
	return cmd
}
