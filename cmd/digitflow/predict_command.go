package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"digitflow/internal/inference"
	"digitflow/internal/model"
)

func newPredictCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify a digit image with the current model artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger("predict")
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}

			trainer := model.NewTrainer(cfg, logger)
			svc := inference.NewService(model.NewArtifactStore(cfg.Paths.ModelPath, trainer.Bootstrap, logger), logger)
			if _, err := svc.Reload(cmd.Context()); err != nil {
				return err
			}
			pred, err := svc.Predict(cmd.Context(), data)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, pred)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Prediction: %d (model %s)\n", pred.Label, pred.ModelVersion)
			fmt.Fprintln(out, renderProbabilities(pred.Probabilities, pred.Label))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the prediction as JSON")
	return cmd
}

func renderProbabilities(probs []float64, label int) string {
	rows := make([][]string, 0, len(probs))
	for digit, p := range probs {
		marker := ""
		if digit == label {
			marker = "*"
		}
		rows = append(rows, []string{strconv.Itoa(digit), fmt.Sprintf("%.4f", p), marker})
	}
	return renderTable([]string{"Digit", "Probability", ""}, rows, []columnAlignment{alignRight, alignRight, alignLeft})
}
