// Package snapshot provides the durable state snapshots for the decision
// core's components.
//
// Each component (scoring engine, bot policy, work queue) serializes its
// whole mutable state into one named JSON document. Snapshots are loaded
// once at startup and written after each mutating call. Writes are
// best-effort: a failed write is logged and the in-memory state stays
// authoritative for the running process.
//
// Two backends exist: local disk (default) and S3.
package snapshot
