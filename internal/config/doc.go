// Package config loads, normalizes, and validates digitflow configuration data.
//
// It supplies repository defaults, derives the log, corrections, dataset,
// model, and database locations from a single data directory, expands user
// paths (including tilde shortcuts), reads TOML files, and honours environment
// fallbacks such as DRIFT_THRESHOLD and DIGITFLOW_API_TOKEN.
//
// Always obtain settings through this package so the API server, the
// retraining scheduler, and the CLI agree on where the artifact and the
// correction store live.
package config
