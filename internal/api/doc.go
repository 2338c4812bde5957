// Package api serves the digitflow HTTP surface and defines its wire-format
// types.
//
// # Routes
//
//	GET  /                  drawing page (embedded canvas UI)
//	GET  /health            liveness probe
//	POST /predict           multipart "file" -> prediction and probabilities
//	POST /correct           multipart "file", "true_label", "predicted_label"
//	POST /reload            reload the model artifact (bearer auth when configured)
//	GET  /api/corrections   ?filter=unprocessed|all (bearer auth when configured)
//	GET  /api/status        model version, correction counts, scheduler state
//	GET  /metrics           Prometheus exposition, when a registry is wired
//
// /predict and /correct stay open so the drawing page works without a token.
//
// # Design Notes
//
// DTOs use snake_case JSON tags so the /predict and /correct bodies match what
// existing clients of the service send and expect. Timestamps use RFC3339
// with milliseconds. Every request carries an X-Request-ID, generated when
// absent, which is attached to log lines as correlation_id.
//
// A /correct response of 200 means the image and row were both persisted; any
// 5xx means nothing was saved.
package api
