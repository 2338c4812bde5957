package services

import "context"

type contextKey string

const (
	runIDKey        contextKey = "run_id"
	stageKey        contextKey = "stage"
	requestIDKey    contextKey = "request_id"
	correctionIDKey contextKey = "correction_id"
)

// WithRunID annotates context with the retraining cycle identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the retraining cycle identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the orchestrator stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with an HTTP request correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCorrectionID annotates context with a correction row identifier.
func WithCorrectionID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, correctionIDKey, id)
}

// CorrectionIDFromContext extracts the correction identifier if present.
func CorrectionIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(correctionIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}
