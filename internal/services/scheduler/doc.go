// Package scheduler runs the deadline-notification loop.
//
// A background worker wakes on an interval (or a cron spec), checks the
// configured notification hour and weekend policy, and runs a cycle:
// collect due items from a fresh snapshot, gate on recipient notification
// windows, compose per-timezone digests and fan them out through the
// dispatcher. A per-scope, per-calendar-day dedup guard keeps automatic
// sends to one digest a day.
//
// # Boundary
//
// The worker never shares mutable state with the host application. The only
// things that cross the boundary are schedule settings (pushed via Apply)
// and serializable trigger messages (TriggerNow); the entity snapshot is
// fetched fresh by the cycle executor through the injected SnapshotFunc.
//
// # Cancellation
//
// Once a cycle starts dispatching it runs to completion; settings changes
// take effect on the next tick.
package scheduler
