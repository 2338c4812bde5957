package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"digitflow/internal/retrain"
)

func outcomeKind(out retrain.Outcome) statusKind {
	switch out.Result {
	case retrain.ResultCompleted:
		return statusOK
	case retrain.ResultFailed:
		return statusError
	default:
		return statusInfo
	}
}

// outcomeRows renders the fields worth showing for a cycle, in display order.
func outcomeRows(out retrain.Outcome) [][]string {
	rows := [][]string{
		{"Run", out.RunID},
		{"Result", displayLabel(string(out.Result))},
		{"Stage", displayLabel(string(out.Stage))},
		{"Unprocessed", fmt.Sprintf("%d (threshold %d)", out.Unprocessed, out.Threshold)},
	}
	if out.Reason != "" {
		rows = append(rows, []string{"Reason", out.Reason})
	}
	if out.Result != retrain.ResultSkipped {
		rows = append(rows,
			[]string{"Decoded", strconv.Itoa(out.Decoded)},
			[]string{"Decode failures", formatIDs(out.DecodeFailures)},
			[]string{"Marked processed", strconv.FormatInt(out.Marked, 10)},
		)
	}
	if out.ModelVersion != "" {
		rows = append(rows, []string{"Model version", out.ModelVersion})
	}
	if out.Error != "" {
		rows = append(rows, []string{"Error", fmt.Sprintf("%s (%s)", out.Error, displayLabel(out.ErrorKind))})
	}
	if !out.FinishedAt.IsZero() {
		rows = append(rows,
			[]string{"Finished", out.FinishedAt.Local().Format(time.DateTime)},
			[]string{"Duration", out.Duration().Round(time.Millisecond).String()},
		)
	}
	return rows
}

func renderOutcome(out retrain.Outcome, colorize bool) string {
	var b strings.Builder
	b.WriteString(renderStatusLine("Retraining cycle", outcomeKind(out), displayLabel(string(out.Result)), colorize))
	b.WriteString("\n")
	b.WriteString(renderTable([]string{"Field", "Value"}, outcomeRows(out), nil))
	b.WriteString("\n")
	return b.String()
}

func formatIDs(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ", ")
}
