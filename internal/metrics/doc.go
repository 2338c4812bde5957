// Package metrics exposes Prometheus collectors for predictions, corrections,
// reloads, and retraining cycles. A Registry implements the observer hooks of
// the inference and retrain packages so those packages stay free of
// Prometheus imports.
package metrics
