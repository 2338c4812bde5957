// Package daemon coordinates the long-running digitflow server process.
//
// It wires configuration, the correction store, the model artifact, the
// inference service, and the HTTP API into a single lifecycle with
// flock-based locking to prevent two servers sharing a data directory. With
// Options.WithScheduler the retraining scheduler runs in the same process and
// reloads the served model directly; otherwise retraining is expected to run
// as a separate "digitflow scheduler" process that reloads over HTTP.
//
// Keep orchestration logic here: the retraining cycle lives in retrain and
// request handling lives in api, while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
