// Package notifications delivers retraining events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when no topic is set. Events are
// enumerated so the orchestrator and CLI emit consistent messages without
// duplicating HTTP glue. Per-category toggles in the [notifications] section
// suppress routine or error events.
package notifications
