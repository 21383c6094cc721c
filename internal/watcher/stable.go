package watcher

import (
	"context"
	"os"
	"time"
)

// DefaultStableWait is the size sampling window used when none is configured.
const DefaultStableWait = 500 * time.Millisecond

// StabilityFunc decides whether a file has stopped growing.
type StabilityFunc func(ctx context.Context, path string, wait time.Duration) bool

// IsStable samples the size of path, waits for wait, and samples again. It
// reports true only when the file still exists as a regular file with an
// unchanged size. A vanished file or a cancelled context yields false.
func IsStable(ctx context.Context, path string, wait time.Duration) bool {
	if wait <= 0 {
		wait = DefaultStableWait
	}
	before, err := os.Stat(path)
	if err != nil || !before.Mode().IsRegular() {
		return false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	after, err := os.Stat(path)
	if err != nil || !after.Mode().IsRegular() {
		return false
	}
	return after.Size() == before.Size()
}
