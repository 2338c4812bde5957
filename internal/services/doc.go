// Package services defines shared utilities consumed by the correction store,
// model, inference, and retraining packages.
//
// Key responsibilities:
//   - Context helpers that stamp retraining run IDs, stage names, correction
//     IDs, and request correlation identifiers for logging.
//   - Failure markers plus the Wrap helper that keep the error taxonomy
//     (store unavailable, image decode, training, artifact write, reload)
//     classifiable with errors.Is across package boundaries.
//
// Use these helpers when wiring new components so failure classification and
// log shape stay uniform.
package services
