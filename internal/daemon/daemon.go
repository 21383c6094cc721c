package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"chromascale/internal/config"
	"chromascale/internal/jobqueue"
	"chromascale/internal/logging"
	"chromascale/internal/transform"
	"chromascale/internal/watcher"
	"chromascale/internal/worker"
)

// ErrAlreadyRunning reports that another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("another chromascale instance is already running")

// Option configures a Daemon.
type Option func(*Daemon)

// WithRecorder journals job outcomes through r.
func WithRecorder(r worker.Recorder) Option {
	return func(d *Daemon) {
		d.recorder = r
	}
}

// WithResultHook observes every finished job (primarily for tests).
func WithResultHook(fn func(worker.Result)) Option {
	return func(d *Daemon) {
		d.onResult = fn
	}
}

// WithStartHook runs fn once the instance lock is held and before watching
// begins. An error from fn aborts Run. The returned cleanup, if any, runs
// before the lock is released.
func WithStartHook(fn func() (cleanup func(), err error)) Option {
	return func(d *Daemon) {
		d.onStart = fn
	}
}

// WithStabilityCheck overrides the stabilization check (primarily for tests).
func WithStabilityCheck(fn watcher.StabilityFunc) Option {
	return func(d *Daemon) {
		d.isStable = fn
	}
}

// Daemon wires the directory watcher, the job queue, and the worker into one
// lifecycle guarded by a flock so only one instance watches a state directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   transform.Engine
	recorder worker.Recorder
	onResult func(worker.Result)
	onStart  func() (func(), error)
	isStable watcher.StabilityFunc

	lockPath string
	lock     *flock.Flock

	debouncer *watcher.Debouncer
	queue     *jobqueue.Queue
	accepted  atomic.Int64
	running   atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Pending      int
	Queued       int
	Accepted     int64
	LockFilePath string
}

// New constructs a daemon. Nothing touches the filesystem until Run.
func New(cfg *config.Config, logger *slog.Logger, engine transform.Engine, opts ...Option) (*Daemon, error) {
	if cfg == nil || engine == nil {
		return nil, errors.New("daemon requires config and transform engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		queue:    jobqueue.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.debouncer = watcher.NewDebouncer(watcher.Options{
		BatchInterval:     cfg.BatchInterval(),
		StableWait:        cfg.StableWait(),
		MaxParallelChecks: cfg.Watcher.MaxParallelChecks,
		IsStable:          d.isStable,
		Logger:            logging.NewComponentLogger(logger, "debouncer"),
	})
	return d, nil
}

// Status reports queue depth and pending candidates.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Pending:      d.debouncer.Len(),
		Queued:       d.queue.Len(),
		Accepted:     d.accepted.Load(),
		LockFilePath: d.lockPath,
	}
}

// Run validates the input directory, takes the lock, and watches until ctx is
// cancelled. On cancellation the subscription stops first, then Run waits for
// the in-flight job. Queued jobs that have not started are abandoned.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureInputDir(); err != nil {
		return err
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if d.onStart != nil {
		cleanup, err := d.onStart()
		if err != nil {
			return fmt.Errorf("start hook: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
	}

	w, err := worker.New(worker.Options{
		OutputDir:       d.cfg.Paths.OutputDir,
		ReplaceInPlace:  d.cfg.Processing.ReplaceInPlace,
		SkipThresholdPx: d.cfg.Processing.SkipThresholdPx,
		Engine:          d.engine,
		Recorder:        d.recorder,
		Suppressor:      d.debouncer,
		Logger:          d.logger,
		OnResult:        d.onResult,
	})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	sub, err := watcher.Subscribe(d.cfg.Paths.InputDir, d.debouncer.OnFileCreated, d.logger)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	stopSubscription := sync.OnceFunc(func() {
		if err := sub.Close(); err != nil {
			d.logger.Warn("failed to close watcher", logging.Error(err))
		}
	})
	defer stopSubscription()

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- w.Run(ctx, d.queue)
	}()

	d.running.Store(true)
	defer d.running.Store(false)
	d.logger.Info("chromascale daemon started",
		logging.String("input_dir", d.cfg.Paths.InputDir),
		logging.String("output_dir", d.cfg.Paths.OutputDir),
		logging.Bool("replace_in_place", d.cfg.Processing.ReplaceInPlace),
		logging.Int("skip_threshold_px", d.cfg.Processing.SkipThresholdPx),
		logging.String("lock", d.lockPath),
	)

	pollInterval := d.cfg.PollInterval()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			stopSubscription()
			status := d.Status()
			d.logger.Info("chromascale daemon shutting down",
				logging.Int("pending", status.Pending),
				logging.Int("queued", status.Queued),
			)
			if err := <-workerErr; err != nil {
				return err
			}
			d.logger.Info("chromascale daemon stopped")
			return nil
		case err := <-workerErr:
			stopSubscription()
			if err == nil && ctx.Err() != nil {
				d.logger.Info("chromascale daemon stopped")
				return nil
			}
			if err == nil {
				err = errors.New("worker exited unexpectedly")
			}
			return fmt.Errorf("worker stopped: %w", err)
		case <-timer.C:
			d.pollOnce(ctx)
			timer.Reset(pollInterval)
		}
	}
}

func (d *Daemon) pollOnce(ctx context.Context) {
	for _, path := range d.debouncer.PollReady(ctx) {
		job := jobqueue.NewJob(path)
		d.queue.Enqueue(job)
		d.accepted.Add(1)
		d.logger.Info("job accepted",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldPath, path),
			logging.Int("queued", d.queue.Len()),
		)
	}
}
