package logging

import (
	"context"
	"log/slog"

	"digitflow/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering ("retrain_completed").
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldStage is the standardized structured logging key for orchestrator stage names.
	FieldStage = "stage"
	// FieldRequestID carries the HTTP request id when a retraining run id
	// already occupies correlation_id.
	FieldRequestID = "request_id"
	// FieldCorrectionID is the standardized key for correction row identifiers.
	FieldCorrectionID = "correction_id"
	// FieldImageRef is the stored image path of a correction.
	FieldImageRef = "image_ref"
	// FieldModelVersion identifies the loaded model artifact.
	FieldModelVersion = "model_version"
	// FieldCorrelationID ties together the log lines of one retraining run,
	// or of one HTTP request outside a run.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
// A run id takes correlation_id; a request id then moves to request_id.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	runID, hasRun := services.RunIDFromContext(ctx)
	if hasRun {
		fields = append(fields, slog.String(FieldCorrelationID, runID))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if id, ok := services.CorrectionIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldCorrectionID, id))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		key := FieldCorrelationID
		if hasRun {
			key = FieldRequestID
		}
		fields = append(fields, slog.String(key, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
