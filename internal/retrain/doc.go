// Package retrain implements the drift-triggered retraining cycle.
//
// Each cycle walks IDLE → CHECKING → (SKIP | RETRAINING → RELOADING →
// MARKING) → IDLE. Corrections are counted, and only when the unprocessed
// count exceeds the drift threshold is a fresh model trained on the reference
// set plus decoded corrections. The artifact is saved, the inference service
// is asked to reload, and only after a successful reload are the considered
// corrections marked processed. A failure in any step short-circuits the rest
// of the cycle; the next scheduled cycle is the retry mechanism.
//
// Scheduler runs cycles on a fixed cadence and never lets two overlap: a
// trigger that arrives while a cycle is running is skipped, both within the
// process and across processes sharing the same lock file.
package retrain
