package api

import (
	"time"

	"digitflow/internal/corrections"
	"digitflow/internal/inference"
	"digitflow/internal/retrain"
)

// FromCorrection converts a correction row to its API representation.
func FromCorrection(item corrections.Correction) Correction {
	dto := Correction{
		ID:             item.ID,
		ImageRef:       item.ImageRef,
		TrueLabel:      item.TrueLabel,
		PredictedLabel: item.PredictedLabel,
		Processed:      item.Processed,
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromCorrections converts correction rows into API DTOs. The result is
// never nil so the JSON body always carries an array.
func FromCorrections(items []corrections.Correction) []Correction {
	out := make([]Correction, 0, len(items))
	for _, item := range items {
		out = append(out, FromCorrection(item))
	}
	return out
}

// FromStats converts store counts.
func FromStats(stats corrections.Stats) CorrectionStats {
	return CorrectionStats{
		Total:       stats.Total,
		Unprocessed: stats.Unprocessed,
		Processed:   stats.Processed,
		Available:   true,
	}
}

// FromModelStatus converts the inference service view.
func FromModelStatus(st inference.Status) ModelStatus {
	dto := ModelStatus{
		Loaded:      st.Loaded,
		Version:     st.ModelVersion,
		Samples:     st.Metadata.Samples,
		Corrections: st.Metadata.Corrections,
		Bootstrap:   st.Metadata.Bootstrap,
		Reloads:     st.Reloads,
	}
	dto.LoadedAt = formatTime(st.LoadedAt)
	dto.TrainedAt = formatTime(st.Metadata.CreatedAt)
	return dto
}

// FromSchedulerStatus converts the scheduler view.
func FromSchedulerStatus(st retrain.SchedulerStatus) *RetrainStatus {
	return &RetrainStatus{
		Running: st.Running,
		NextRun: formatTime(st.NextRun),
		Skipped: st.Skipped,
		Last:    st.Last,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
