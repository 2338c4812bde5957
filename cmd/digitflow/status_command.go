package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"digitflow/internal/config"
	"digitflow/internal/corrections"
	"digitflow/internal/preflight"
	"digitflow/internal/retrain"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show readiness checks, correction counts, and the last retraining cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			writeSection(stdout, "System Status", colorize)
			for _, line := range systemStatusLines(cmd.Context(), cfg, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			writeSection(stdout, "Corrections", colorize)
			for _, line := range correctionStatusLines(cmd.Context(), cfg, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			writeSection(stdout, "Last Retraining Cycle", colorize)
			out, ok, err := retrain.LoadOutcome(cfg.RetrainStatusPath())
			switch {
			case err != nil:
				fmt.Fprintln(stdout, renderStatusLine("Outcome", statusWarn, err.Error(), colorize))
			case !ok:
				fmt.Fprintln(stdout, "No retraining cycle has run yet")
			default:
				fmt.Fprintln(stdout, renderStatusLine("Result", outcomeKind(out), displayLabel(string(out.Result)), colorize))
				fmt.Fprintln(stdout, renderTable([]string{"Field", "Value"}, outcomeRows(out), nil))
			}
			return nil
		},
	}
}

func writeSection(w io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(w, line)
	}
}

func systemStatusLines(ctx context.Context, cfg *config.Config, colorize bool) []string {
	results := preflight.RunAll(ctx, cfg)
	results = append(results, preflight.CheckInferenceService(ctx, cfg.Retrain.ReloadURL))

	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
			if r.Name == preflight.InferenceServiceCheck {
				kind = statusWarn
			}
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

func correctionStatusLines(ctx context.Context, cfg *config.Config, colorize bool) []string {
	threshold := strconv.Itoa(cfg.Retrain.DriftThreshold)
	store, err := corrections.OpenExisting(cfg.Paths.DatabasePath)
	if errors.Is(err, corrections.ErrStoreUnavailable) {
		return []string{
			renderStatusLine("Unprocessed", statusInfo, "0 (no corrections recorded)", colorize),
			renderStatusLine("Drift threshold", statusInfo, threshold, colorize),
		}
	}
	if err != nil {
		return []string{renderStatusLine("Database", statusError, err.Error(), colorize)}
	}
	defer store.Close()

	statsCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	stats, err := store.Stats(statsCtx)
	if err != nil {
		return []string{renderStatusLine("Database", statusError, err.Error(), colorize)}
	}

	driftKind := statusOK
	driftDetail := fmt.Sprintf("%d unprocessed, threshold %d", stats.Unprocessed, cfg.Retrain.DriftThreshold)
	if stats.Unprocessed > cfg.Retrain.DriftThreshold {
		driftKind = statusWarn
		driftDetail += " (next cycle retrains)"
	}
	return []string{
		renderStatusLine("Total", statusInfo, strconv.Itoa(stats.Total), colorize),
		renderStatusLine("Processed", statusInfo, strconv.Itoa(stats.Processed), colorize),
		renderStatusLine("Drift", driftKind, driftDetail, colorize),
	}
}
