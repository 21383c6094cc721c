// Package daemon coordinates the long-running ChromaScale watch loop.
//
// It wires the fsnotify subscription, the debouncer, the in-memory job queue,
// and the single worker into one lifecycle with flock-based locking to prevent
// multiple instances. The poll loop promotes stabilized files to jobs; the
// worker owns everything that happens to a file after that.
//
// Keep orchestration logic here: placement rules and transform invocation
// live in the worker and transform packages.
package daemon
