package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chromascale/internal/logging"
)

// DefaultBatchInterval is the minimum age of a pending entry before it is
// considered for stabilization.
const DefaultBatchInterval = time.Second

// DefaultSuppressTTL bounds how long a suppressed path ignores creation events.
const DefaultSuppressTTL = 10 * time.Second

// Options configures a Debouncer. Zero values fall back to defaults.
type Options struct {
	BatchInterval     time.Duration
	StableWait        time.Duration
	MaxParallelChecks int
	SuppressTTL       time.Duration
	IsStable          StabilityFunc
	Now               func() time.Time
	Logger            *slog.Logger
}

// Debouncer tracks candidate image files until they are old enough and have
// stopped growing. All access to the pending table goes through its methods.
type Debouncer struct {
	batchInterval time.Duration
	stableWait    time.Duration
	parallel      int
	suppressTTL   time.Duration
	isStable      StabilityFunc
	now           func() time.Time
	logger        *slog.Logger

	mu         sync.Mutex
	pending    map[string]time.Time
	suppressed map[string]time.Time
}

// NewDebouncer constructs a Debouncer with an empty pending table.
func NewDebouncer(opts Options) *Debouncer {
	d := &Debouncer{
		batchInterval: opts.BatchInterval,
		stableWait:    opts.StableWait,
		parallel:      opts.MaxParallelChecks,
		suppressTTL:   opts.SuppressTTL,
		isStable:      opts.IsStable,
		now:           opts.Now,
		logger:        opts.Logger,
		pending:       make(map[string]time.Time),
		suppressed:    make(map[string]time.Time),
	}
	if d.batchInterval <= 0 {
		d.batchInterval = DefaultBatchInterval
	}
	if d.stableWait <= 0 {
		d.stableWait = DefaultStableWait
	}
	if d.parallel <= 0 {
		d.parallel = 1
	}
	if d.suppressTTL <= 0 {
		d.suppressTTL = DefaultSuppressTTL
	}
	if d.isStable == nil {
		d.isStable = IsStable
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.logger == nil {
		d.logger = logging.NewNop()
	}
	return d
}

// OnFileCreated records a creation event. Unrecognized extensions and hidden
// files are dropped. A repeated event for a pending path restarts its window.
func (d *Debouncer) OnFileCreated(path string) {
	if !IsImagePath(path) || isHidden(path) {
		return
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if expiry, ok := d.suppressed[path]; ok {
		delete(d.suppressed, path)
		if now.Before(expiry) {
			d.logger.Debug("ignoring self-generated event", logging.String(logging.FieldPath, path))
			return
		}
	}
	d.pending[path] = now
}

// Suppress ignores the next creation event for path. The worker calls it
// before renaming a finished file into the watched directory.
func (d *Debouncer) Suppress(path string) {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for p, expiry := range d.suppressed {
		if !now.Before(expiry) {
			delete(d.suppressed, p)
		}
	}
	d.suppressed[path] = now.Add(d.suppressTTL)
}

// Unsuppress withdraws a suppression registered by Suppress.
func (d *Debouncer) Unsuppress(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.suppressed, path)
}

// Len returns the number of pending entries.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Pending returns a sorted snapshot of the pending paths.
func (d *Debouncer) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

type candidate struct {
	path  string
	first time.Time
}

// PollReady returns the entries that passed the batch interval and the
// stabilization check, removing them from the pending table. Checks for
// separate candidates run concurrently; the lock is not held while waiting.
// The result is ordered by first event time, then path.
func (d *Debouncer) PollReady(ctx context.Context) []string {
	now := d.now()

	d.mu.Lock()
	var candidates []candidate
	for p, first := range d.pending {
		if now.Sub(first) >= d.batchInterval {
			candidates = append(candidates, candidate{path: p, first: first})
		}
	}
	d.mu.Unlock()
	if len(candidates) == 0 {
		return nil
	}

	stable := make([]bool, len(candidates))
	var g errgroup.Group
	g.SetLimit(d.parallel)
	for i, c := range candidates {
		g.Go(func() error {
			stable[i] = d.isStable(ctx, c.path, d.stableWait)
			return nil
		})
	}
	_ = g.Wait()

	ready := make([]candidate, 0, len(candidates))
	d.mu.Lock()
	for i, c := range candidates {
		if !stable[i] {
			if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
				delete(d.pending, c.path)
				d.logger.Debug("pending file vanished", logging.String(logging.FieldPath, c.path))
			}
			continue
		}
		// A newer event arrived during the check; its window starts over.
		if current, ok := d.pending[c.path]; !ok || !current.Equal(c.first) {
			continue
		}
		delete(d.pending, c.path)
		ready = append(ready, c)
	}
	d.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].first.Equal(ready[j].first) {
			return ready[i].first.Before(ready[j].first)
		}
		return ready[i].path < ready[j].path
	})
	paths := make([]string, len(ready))
	for i, c := range ready {
		paths[i] = c.path
	}
	return paths
}
