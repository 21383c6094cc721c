package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"chromascale/internal/fileutil"
	"chromascale/internal/history"
	"chromascale/internal/imaging"
	"chromascale/internal/jobqueue"
	"chromascale/internal/logging"
	"chromascale/internal/transform"
)

// ErrUnreadable marks jobs whose image header could not be read.
var ErrUnreadable = imaging.ErrUnreadable

// ErrPanic wraps a panic that escaped job processing.
var ErrPanic = errors.New("worker panic")

// Source yields jobs, blocking until one is available.
type Source interface {
	Dequeue(ctx context.Context) (jobqueue.Job, error)
}

// Recorder journals finished jobs.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Suppressor is told about paths the worker is about to rename into the
// watched directory. Unsuppress withdraws a suppression whose rename failed.
type Suppressor interface {
	Suppress(path string)
	Unsuppress(path string)
}

// Options configures a Worker.
type Options struct {
	OutputDir       string
	ReplaceInPlace  bool
	SkipThresholdPx int
	Engine          transform.Engine
	Recorder        Recorder
	Suppressor      Suppressor
	Logger          *slog.Logger
	// OnResult, when set, observes every finished job.
	OnResult func(Result)
}

// Worker processes jobs one at a time.
type Worker struct {
	outputDir      string
	replaceInPlace bool
	threshold      int
	engine         transform.Engine
	recorder       Recorder
	suppressor     Suppressor
	logger         *slog.Logger
	onResult       func(Result)
}

// New validates opts and constructs a Worker.
func New(opts Options) (*Worker, error) {
	if opts.Engine == nil {
		return nil, errors.New("worker: transform engine required")
	}
	if opts.SkipThresholdPx <= 0 {
		return nil, errors.New("worker: skip threshold must be positive")
	}
	if !opts.ReplaceInPlace && opts.OutputDir == "" {
		return nil, errors.New("worker: output directory required when not replacing in place")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		outputDir:      opts.OutputDir,
		replaceInPlace: opts.ReplaceInPlace,
		threshold:      opts.SkipThresholdPx,
		engine:         opts.Engine,
		recorder:       opts.Recorder,
		suppressor:     opts.Suppressor,
		logger:         logging.NewComponentLogger(logger, "worker"),
		onResult:       opts.OnResult,
	}, nil
}

// Run consumes jobs from src until ctx is cancelled. Per-job failures are
// logged and never end the loop. Once ctx is cancelled no further job is
// started, even if src still holds some. A panic is logged at CRITICAL and
// returned wrapped in ErrPanic so the caller can stop the pipeline.
func (w *Worker) Run(ctx context.Context, src Source) (err error) {
	var current jobqueue.Job
	defer func() {
		if r := recover(); r != nil {
			logging.Critical(w.logger, "worker crashed",
				logging.String(logging.FieldJobID, current.ID),
				logging.String(logging.FieldPath, current.Path),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		job, dqErr := src.Dequeue(ctx)
		if dqErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dequeue: %w", dqErr)
		}
		current = job
		w.Process(ctx, job)
		current = jobqueue.Job{}
	}
}

// Process runs one job to completion and returns its result. Cancelling ctx
// does not interrupt a transform that has already started.
func (w *Worker) Process(ctx context.Context, job jobqueue.Job) Result {
	res := Result{Job: job, StartedAt: time.Now()}
	logger := w.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldPath, job.Path),
	)

	width, height, err := imaging.Dimensions(job.Path)
	if err != nil {
		res.Outcome = OutcomeDroppedUnreadable
		res.Err = err
		logging.WarnWithContext(logger, "job dropped: unreadable image", "job_dropped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "file left where it is and will not be retried"),
			logging.String(logging.FieldErrorHint, "check the file is a valid PNG, JPEG, BMP or TIFF"),
		)
		return w.finish(ctx, logger, res)
	}
	res.Width, res.Height = width, height

	if ExceedsThreshold(width, height, w.threshold) {
		logger.Info("skipping upscale: resolution exceeds threshold",
			logging.Int("width", width),
			logging.Int("height", height),
			logging.Int("threshold_px", w.threshold),
		)
		res = w.skip(res)
		if res.Err != nil {
			logging.ErrorWithContext(logger, "job failed", "skip_move_failed",
				logging.Error(res.Err),
				logging.String(logging.FieldImpact, "oversized image left in the input directory"),
				logging.String(logging.FieldErrorHint, "check the output directory exists and is writable"),
			)
		}
		return w.finish(ctx, logger, res)
	}

	logger.Info("processing started",
		logging.Int("width", width),
		logging.Int("height", height),
		logging.Bool("replace_in_place", w.replaceInPlace),
	)
	tctx := context.WithoutCancel(ctx)
	if w.replaceInPlace {
		res = w.processInPlace(tctx, logger, res)
	} else {
		res = w.processToOutput(tctx, res)
	}
	if res.Err != nil {
		logging.ErrorWithContext(logger, "job failed", "transform_failed",
			logging.Error(res.Err),
			logging.String(logging.FieldImpact, "original file left unmodified"),
			logging.String(logging.FieldErrorHint, "run `chromascale check` and try the upscaler on the file by hand"),
		)
	} else {
		logger.Info("job finished",
			logging.String("output", res.OutputPath),
			logging.Duration("elapsed", time.Since(res.StartedAt)),
		)
	}
	return w.finish(ctx, logger, res)
}

func (w *Worker) skip(res Result) Result {
	if w.replaceInPlace {
		res.Outcome = OutcomeSkippedLeftInPlace
		return res
	}
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("create output directory: %w", err)
		return res
	}
	target := SkippedPath(w.outputDir, res.Job.Path)
	if err := fileutil.MoveFile(res.Job.Path, target); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("move oversized image: %w", err)
		return res
	}
	res.Outcome = OutcomeSkippedMoved
	res.OutputPath = target
	return res
}

func (w *Worker) processInPlace(ctx context.Context, logger *slog.Logger, res Result) Result {
	original := res.Job.Path
	tmp := TempPath(original)
	defer func() {
		if err := fileutil.RemoveIfExists(tmp); err != nil {
			logging.WarnWithContext(logger, "temporary file cleanup failed", "temp_cleanup_failed",
				logging.String("temp_path", tmp),
				logging.Error(err),
				logging.String(logging.FieldImpact, "a hidden temporary file remains next to the original"),
				logging.String(logging.FieldErrorHint, "delete the file manually"),
			)
		}
	}()

	if err := w.engine.Transform(ctx, original, tmp); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("transform: %w", err)
		return res
	}
	if info, err := os.Stat(original); err == nil {
		if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
			logging.WarnWithContext(logger, "could not copy file mode to replacement", "chmod_failed",
				logging.String("temp_path", tmp),
				logging.Error(err),
				logging.String(logging.FieldImpact, "replaced file keeps the upscaler's default permissions"),
				logging.String(logging.FieldErrorHint, "fix the permissions of the replaced file by hand"),
			)
		}
	}
	// Registered before the rename so the resulting event cannot race past it.
	if w.suppressor != nil {
		w.suppressor.Suppress(original)
	}
	if err := os.Rename(tmp, original); err != nil {
		if w.suppressor != nil {
			w.suppressor.Unsuppress(original)
		}
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("replace original: %w", err)
		return res
	}
	res.Outcome = OutcomeProcessed
	res.OutputPath = original
	return res
}

func (w *Worker) processToOutput(ctx context.Context, res Result) Result {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("create output directory: %w", err)
		return res
	}
	dst := OutputPath(w.outputDir, res.Job.Path)
	existed := fileutil.Exists(dst)
	if err := w.engine.Transform(ctx, res.Job.Path, dst); err != nil {
		if !existed {
			_ = fileutil.RemoveIfExists(dst)
		}
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("transform: %w", err)
		return res
	}
	res.Outcome = OutcomeProcessed
	res.OutputPath = dst
	return res
}

func (w *Worker) finish(ctx context.Context, logger *slog.Logger, res Result) Result {
	res.FinishedAt = time.Now()
	logger.Debug("job outcome",
		logging.String(logging.FieldOutcome, string(res.Outcome)),
		logging.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	if w.recorder != nil {
		entry := history.Entry{
			ID:         res.Job.ID,
			Path:       res.Job.Path,
			Outcome:    string(res.Outcome),
			Width:      res.Width,
			Height:     res.Height,
			OutputPath: res.OutputPath,
			AcceptedAt: res.Job.AcceptedAt,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
		}
		if res.Err != nil {
			entry.ErrorMessage = res.Err.Error()
		}
		if err := w.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
			logging.WarnWithContext(logger, "history write failed", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "job outcome missing from history"),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			)
		}
	}
	if w.onResult != nil {
		w.onResult(res)
	}
	return res
}
