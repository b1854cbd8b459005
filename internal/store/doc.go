// Package store provides SQLite-backed durable storage for simulation runs.
//
// A run is written once, after Simulate returns, with:
//   - Runs: the plan identity, model, horizon and the full results in
//     canonical JSON
//   - Directives: the schedule that produced the run
//   - Samples: one row per resource per sampling instant
//   - Tasks: final lifecycle record of every task
//   - Failures: structured failures in the order they were reported
//
// # Critical Patterns
//
// CP-1: Write-Once Runs
//   - runs.id is the run id; ON CONFLICT(id) DO NOTHING makes rewrites no-ops
//   - all rows of a run are inserted in one transaction
//
// CP-2: Logical Ordering
//   - runs are listed by the store's seq column, NEVER by wall time
//   - child rows are ordered by position (or idx for samples)
//
// CP-3: Canonical Values
//   - every stored value is RFC 8785 canonical JSON (ir.MarshalCanonical)
//   - reading a run back yields results equal to the ones written
//
// # Database Configuration
//
// Set through DSN parameters on every pooled connection:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The schema version lives in PRAGMA user_version. Open refuses a database
// stamped with a newer version (ErrNewerSchema).
package store
