package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"chromascale/internal/config"
	"chromascale/internal/daemon"
	"chromascale/internal/deps"
	"chromascale/internal/history"
	"chromascale/internal/logging"
	"chromascale/internal/transform"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Engine replaces the configured upscaler (primarily for tests).
	Engine transform.Engine
}

// Run starts the chromascale watch loop and blocks until SIGINT/SIGTERM or
// cmdCtx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureInputDir(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logDir := cfg.LogDir()
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(logDir, fmt.Sprintf("chromascale-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer store.Close()

	// Shared runtime state is only touched once the instance lock is held.
	pidPath := cfg.PIDPath()
	onLocked := func() (func(), error) {
		if err := writePIDFile(pidPath); err != nil {
			return nil, fmt.Errorf("write pid file: %w", err)
		}
		removePID := func() { _ = os.Remove(pidPath) }
		if err := ensureCurrentLogPointer(logDir, logPath); err != nil {
			logging.WarnWithContext(logger, "unable to update log pointer", "log_pointer_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "app-logs may show an older run"),
				logging.String(logging.FieldErrorHint, "check the log directory is writable"),
			)
		}
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
			logging.RetentionTarget{Dir: logDir, Pattern: "chromascale-*.log", Exclude: []string{logPath}},
		)
		pruneHistory(signalCtx, logger, store, cfg.Logging.RetentionDays)
		return removePID, nil
	}

	engine := opts.Engine
	if engine == nil {
		engine, err = transform.NewCommandEngine(cfg.Transform, transform.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("create transform engine: %w", err)
		}
	}

	d, err := daemon.New(cfg, logger, engine, daemon.WithRecorder(store), daemon.WithStartHook(onLocked))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Run(signalCtx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			logger.Error("refusing to start", logging.Error(err), logging.String("lock", cfg.LockPath()))
			_ = os.Remove(logPath)
			return err
		}
		logging.Critical(logger, "chromascale daemon stopped with error",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_failed"),
		)
		return err
	}
	return nil
}

func pruneHistory(ctx context.Context, logger *slog.Logger, store *history.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	removed, err := store.Prune(ctx, time.Now().AddDate(0, 0, -retentionDays))
	if err != nil {
		logging.WarnWithContext(logger, "history prune failed", "history_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old history entries retained"),
		)
		return
	}
	if removed > 0 {
		logger.Debug("pruned history entries", logging.Int64("removed", removed))
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "chromascale.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	binary := cfg.Transform.Binary
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("transform_binary", binary),
		logging.String("transform_model", cfg.Transform.Model),
		logging.Int("transform_scale", cfg.Transform.Scale),
		logging.String("transform_device", cfg.Transform.Device),
	}
	path, err := deps.Resolve(binary)
	if err != nil {
		attrs = append(attrs, logging.Bool("transform_available", false), logging.Error(err))
		logging.WarnWithContext(logger, "transform binary unavailable", "dependency_snapshot",
			append(attrs,
				logging.String(logging.FieldImpact, "every job will fail until the upscaler is installed"),
				logging.String(logging.FieldErrorHint, "install the upscaler or set transform.binary"),
			)...)
		return
	}
	attrs = append(attrs, logging.Bool("transform_available", true), logging.String("transform_path", path))
	logger.LogAttrs(context.Background(), slog.LevelInfo, "dependency snapshot", attrs...)
}
