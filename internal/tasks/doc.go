// Package tasks tracks download jobs from submission to a terminal state with real-time progress reporting.
//
// # Feeds
//
// Progress for a job arrives on two independent feeds:
//
//  1. Status polls: [Poller] issues GET /download/jobs/{id} at a fixed interval
//     - The first poll is immediate; transient failures skip a tick
//     - Polling stops once the job is terminal
//
//  2. Push stream: a [services.FrameSource] subscription scoped to one job or the whole account
//     - A failed stream is not retried; polling carries the job alone
//     - [Tracker.Resubscribe] opens fresh subscriptions on demand
//
// # Reconciliation
//
// [Reconciler] merges both feeds through one mutex-guarded intake. Each frame updates the
// [models.OverallProgress] aggregate and the [QueueStore] of per-entry rows, then recomputes
// whether a download is active and tells the panel visibility machine when that changes.
//
// Terminal transitions are sticky: a finished entry never reappears, a finished job ignores
// further frames, and whichever terminal signal arrives first wins.
//
// # Progress Reporting
//
// Snapshots are fanned out to subscribers over single-slot channels; slow readers see the
// latest state only. Batch submissions report per-link [ProgressUpdate] values using select
// with default to prevent blocking.
//
// # Implementation
//
// [Tracker] owns the reconciler and runs one poller per job plus the push subscriptions,
// all on an errgroup that [Tracker.Close] waits for.
package tasks
