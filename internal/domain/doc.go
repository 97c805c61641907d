// Package domain defines the core business types for the lead-nurturing
// decision core.
//
// Types in this package are pure value objects with no behavior, no database
// dependencies, and no HTTP concerns. They are the shared language between
// the scoring engine, the bot policy, the work queue, and the orchestrator.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Pure derivation functions are allowed (segment thresholds live here)
//   - Constants and enums belong here
package domain
