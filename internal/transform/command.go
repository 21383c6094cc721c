package transform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"chromascale/internal/config"
	"chromascale/internal/logging"
)

// outputTailLines bounds how much tool output is attached to a failure.
const outputTailLines = 5

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures the command engine.
type Option func(*CommandEngine)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(e *CommandEngine) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// WithLogger sets the logger used for tool output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *CommandEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// CommandEngine runs an ncnn-vulkan style upscaler binary.
type CommandEngine struct {
	binary    string
	model     string
	scale     int
	device    string
	tileSize  int
	extraArgs []string
	exec      Executor
	logger    *slog.Logger

	// The upscaler holds a single device context; calls are serialized.
	mu sync.Mutex
}

// NewCommandEngine constructs an engine from the transform configuration.
func NewCommandEngine(cfg config.Transform, opts ...Option) (*CommandEngine, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, errors.New("transform binary required")
	}
	engine := &CommandEngine{
		binary:    binary,
		model:     strings.TrimSpace(cfg.Model),
		scale:     cfg.Scale,
		device:    strings.ToLower(strings.TrimSpace(cfg.Device)),
		tileSize:  cfg.TileSize,
		extraArgs: append([]string(nil), cfg.ExtraArgs...),
		exec:      commandExecutor{},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	engine.logger = logging.NewComponentLogger(engine.logger, "transform")
	return engine, nil
}

// Binary returns the configured executable name or path.
func (e *CommandEngine) Binary() string {
	return e.binary
}

// Transform upscales in into out. It fails with ErrNoOutput when the tool
// exits cleanly but out is missing or empty.
func (e *CommandEngine) Transform(ctx context.Context, in, out string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.buildArgs(in, out)
	tail := make([]string, 0, outputTailLines)
	started := time.Now()
	e.logger.Debug("invoking transform",
		logging.String("binary", e.binary),
		logging.Any("args", args),
	)

	err := e.exec.Run(ctx, e.binary, args, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		e.logger.Debug("transform output", logging.String("line", line))
		if len(tail) == outputTailLines {
			tail = tail[1:]
		}
		tail = append(tail, line)
	})
	if err != nil {
		if len(tail) > 0 {
			return fmt.Errorf("%s: %w (output: %s)", e.binary, err, strings.Join(tail, " | "))
		}
		return fmt.Errorf("%s: %w", e.binary, err)
	}

	info, statErr := os.Stat(out)
	if statErr != nil || info.Size() == 0 {
		return fmt.Errorf("%s: %w at %s", e.binary, ErrNoOutput, out)
	}
	e.logger.Debug("transform complete",
		logging.String(logging.FieldPath, out),
		logging.Int64("bytes", info.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (e *CommandEngine) buildArgs(in, out string) []string {
	args := []string{"-i", in, "-o", out}
	if e.model != "" {
		args = append(args, "-n", e.model)
	}
	if e.scale > 0 {
		args = append(args, "-s", strconv.Itoa(e.scale))
	}
	switch e.device {
	case "", "auto":
	case "cpu":
		args = append(args, "-g", "-1")
	default:
		args = append(args, "-g", e.device)
	}
	if e.tileSize > 0 {
		args = append(args, "-t", strconv.Itoa(e.tileSize))
	}
	return append(args, e.extraArgs...)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput == nil {
				continue
			}
			mu.Lock()
			onOutput(scanner.Text())
			mu.Unlock()
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
