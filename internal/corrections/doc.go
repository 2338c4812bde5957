// Package corrections persists user-submitted digit corrections in SQLite and
// stores their images on disk.
//
// The Store owns the single corrections table: Record appends unprocessed
// rows, List returns all or only unprocessed rows, and MarkProcessed flips the
// processed flag for an explicit id set using a parameterized IN clause. The
// processed flag only ever moves from false to true. ImageStore writes the
// submitted image bytes next to the database and records the row that points
// at them.
//
// OpenExisting never creates the database; a missing file reports
// ErrStoreUnavailable so the retraining cycle can treat it as "no corrections
// yet".
package corrections
