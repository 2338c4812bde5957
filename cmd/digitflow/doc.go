// Package main hosts the digitflow CLI entrypoint and command graph.
//
// The Cobra command tree covers the long-running processes (serve, scheduler),
// one-shot model operations (bootstrap, retrain, predict, dataset download),
// correction maintenance, and configuration scaffolding. It centralizes
// configuration resolution and structured logging setup so subcommands only
// wire internal packages together.
//
// Commands that print machine-readable output write it to stdout and log to
// stderr plus the per-command file under logging.log_dir.
package main
