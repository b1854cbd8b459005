// Package engine drives a simulation: it runs activity tasks as
// cooperative coroutines over simulated time and commits their effects to
// a history.Timeline.
//
// ARCHITECTURE:
//
// Single-Threaded Driver:
// Tasks are plain functions executed as coroutines (iter.Pull). Only one
// task body runs at any moment, and control returns to the driver exactly
// at the suspension points:
//   - Delay: resume after an amount of simulated time
//   - WaitFor / Call: resume once another branch completes or fails
//   - a cell read that depends on an unresolved concurrent write
//
// Spawn is also a yield, but the driver immediately runs the child until
// its first suspension and then continues the parent, so a child always
// runs before its parent's continuation.
//
// Batch Processing Flow:
//  1. The agenda (a heap keyed by time, then sequence) yields every task
//     due at the earliest pending instant
//  2. The timeline head is stepped to that instant
//  3. Each task runs in a fresh copy-on-write View with its own Frame
//  4. The frames are joined concurrently into one event graph
//  5. Timeline.Commit reconciles the graph cell by cell; a conflict halts
//     the simulation
//
// Work scheduled for the same instant during a batch (zero delays, woken
// waiters, suspended reads) runs in the next batch at that instant, which
// commits as a new point with a higher Step.
//
// CRITICAL PATTERNS:
//
// Deterministic Ordering:
// Directives start in offset order, ties broken by schedule order. The
// agenda breaks time ties with a monotonic sequence from Clock. No map
// iteration, wall clock or goroutine scheduling influences results.
//
// Graceful Truncation:
// The duration bound stops stepping and returns partial results without
// error. Tasks still suspended are reported as waiting.
//
// Livelock Guard:
// StepQuota bounds how many batches may run at a single instant, so tasks
// that keep rescheduling themselves at zero delay terminate with a
// StepsExceededError instead of spinning.
package engine
