package daemon_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"chromascale/internal/config"
	"chromascale/internal/daemon"
	"chromascale/internal/testsupport"
	"chromascale/internal/transform"
	"chromascale/internal/worker"
)

var upscaled = []byte("upscaled")

func copyEngine() transform.Engine {
	return transform.EngineFunc(func(ctx context.Context, in, out string) error {
		return os.WriteFile(out, upscaled, 0o644)
	})
}

func startDaemon(t *testing.T, d *daemon.Daemon) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		done <- d.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for !d.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("daemon did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cancel, done
}

func waitResult(t *testing.T, results <-chan worker.Result) worker.Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for job result")
	}
	return worker.Result{}
}

func TestNewRequiresEngine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, nil, nil); err == nil {
		t.Fatal("expected error without engine")
	}
}

func TestRunFailsWhenInputDirMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.InputDir = filepath.Join(testsupport.BaseDir(cfg), "missing")
	d, err := daemon.New(cfg, nil, copyEngine())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Run(context.Background()); !errors.Is(err, config.ErrInputDir) {
		t.Fatalf("expected ErrInputDir, got %v", err)
	}
}

func TestRunRejectsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = held.Unlock() })

	d, err := daemon.New(cfg, nil, copyEngine())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Run(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStartHookRunsUnderLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var hookCalls int
	cleanupHeldLock := make(chan bool, 1)
	hook := func() (func(), error) {
		hookCalls++
		return func() {
			other := flock.New(cfg.LockPath())
			ok, _ := other.TryLock()
			if ok {
				_ = other.Unlock()
			}
			cleanupHeldLock <- !ok
		}, nil
	}
	d, err := daemon.New(cfg, nil, copyEngine(), daemon.WithStartHook(hook))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	cancel, done := startDaemon(t, d)
	if hookCalls != 1 {
		t.Fatalf("expected start hook once, got %d", hookCalls)
	}

	second, err := daemon.New(cfg, nil, copyEngine(), daemon.WithStartHook(hook))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Run(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if hookCalls != 1 {
		t.Fatalf("rejected instance must not run the start hook, got %d calls", hookCalls)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if !<-cleanupHeldLock {
		t.Fatal("cleanup ran after the lock was released")
	}
}

func TestStartHookErrorAbortsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	boom := errors.New("pid dir read-only")
	d, err := daemon.New(cfg, nil, copyEngine(), daemon.WithStartHook(func() (func(), error) { return nil, boom }))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
}

func TestDaemonProcessesArrivingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := make(chan worker.Result, 4)
	d, err := daemon.New(cfg, nil, copyEngine(), daemon.WithResultHook(func(r worker.Result) { results <- r }))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	startDaemon(t, d)

	input := filepath.Join(cfg.Paths.InputDir, "photo.png")
	original := testsupport.WriteImage(t, input, 32, 24)

	res := waitResult(t, results)
	if res.Outcome != worker.OutcomeProcessed || res.Job.Path != input {
		t.Fatalf("unexpected result: %+v", res)
	}
	out := filepath.Join(cfg.Paths.OutputDir, "photo.png")
	if got := testsupport.ReadFile(t, out); !bytes.Equal(got, upscaled) {
		t.Fatalf("expected transformed output, got %q", got)
	}
	if got := testsupport.ReadFile(t, input); !bytes.Equal(got, original) {
		t.Fatal("input must remain untouched in output-directory mode")
	}
	if d.Status().Accepted != 1 {
		t.Fatalf("expected one accepted job, got %d", d.Status().Accepted)
	}
}

func TestDaemonDoesNotReprocessInPlaceReplacement(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithReplaceInPlace(true))
	results := make(chan worker.Result, 4)
	d, err := daemon.New(cfg, nil, copyEngine(), daemon.WithResultHook(func(r worker.Result) { results <- r }))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	startDaemon(t, d)

	input := filepath.Join(cfg.Paths.InputDir, "photo.png")
	testsupport.WriteImage(t, input, 16, 16)

	if res := waitResult(t, results); res.Outcome != worker.OutcomeProcessed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := testsupport.ReadFile(t, input); !bytes.Equal(got, upscaled) {
		t.Fatalf("expected in-place replacement, got %q", got)
	}

	select {
	case r := <-results:
		t.Fatalf("replacement was picked up again: %+v", r)
	case <-time.After(500 * time.Millisecond):
	}
	if status := d.Status(); status.Pending != 0 || status.Accepted != 1 {
		t.Fatalf("unexpected status after replacement: %+v", status)
	}
}

func TestDaemonEnqueuesEachFileOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := make(chan worker.Result, 8)
	d, err := daemon.New(cfg, nil, copyEngine(), daemon.WithResultHook(func(r worker.Result) { results <- r }))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	startDaemon(t, d)

	first := filepath.Join(cfg.Paths.InputDir, "first.png")
	second := filepath.Join(cfg.Paths.InputDir, "second.png")
	testsupport.WriteImage(t, first, 8, 8)
	time.Sleep(300 * time.Millisecond)
	testsupport.WriteImage(t, second, 8, 8)

	seen := map[string]int{}
	for range 2 {
		seen[waitResult(t, results).Job.Path]++
	}
	select {
	case r := <-results:
		seen[r.Job.Path]++
	case <-time.After(300 * time.Millisecond):
	}
	if seen[first] != 1 || seen[second] != 1 || len(seen) != 2 {
		t.Fatalf("expected each file exactly once, got %v", seen)
	}
}

func TestShutdownWaitsForInFlightJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	started := make(chan struct{})
	release := make(chan struct{})
	engine := transform.EngineFunc(func(ctx context.Context, in, out string) error {
		close(started)
		<-release
		return os.WriteFile(out, upscaled, 0o644)
	})
	results := make(chan worker.Result, 1)
	d, err := daemon.New(cfg, nil, engine, daemon.WithResultHook(func(r worker.Result) { results <- r }))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	cancel, done := startDaemon(t, d)

	testsupport.WriteImage(t, filepath.Join(cfg.Paths.InputDir, "slow.png"), 8, 8)
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("transform never started")
	}

	cancel()
	select {
	case err := <-done:
		t.Fatalf("Run returned before in-flight job finished: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	if res := waitResult(t, results); res.Outcome != worker.OutcomeProcessed {
		t.Fatalf("in-flight job should complete, got %+v", res)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after in-flight job finished")
	}
}

func TestWorkerPanicStopsDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine := transform.EngineFunc(func(context.Context, string, string) error {
		panic("device context corrupted")
	})
	d, err := daemon.New(cfg, nil, engine)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	_, done := startDaemon(t, d)

	testsupport.WriteImage(t, filepath.Join(cfg.Paths.InputDir, "boom.png"), 8, 8)
	select {
	case err := <-done:
		if !errors.Is(err, worker.ErrPanic) {
			t.Fatalf("expected ErrPanic, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon kept running after worker panic")
	}
}
