// Package history journals finished jobs to a SQLite database in the state
// directory so operators can review what the worker did after the fact.
//
// The journal is write-only from the pipeline's perspective: nothing in the
// watch/queue/worker path reads it back, and a write failure never changes a
// job's outcome.
package history
