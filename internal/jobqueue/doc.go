// Package jobqueue provides the in-memory hand-off between the poll loop and
// the worker.
package jobqueue
