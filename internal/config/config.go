package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// ErrInputDir reports a missing or unusable watch directory.
var ErrInputDir = errors.New("input directory unavailable")

// Paths contains directory configuration.
type Paths struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
}

// Processing contains the per-job routing policy.
type Processing struct {
	ReplaceInPlace  bool `toml:"replace_in_place"`
	SkipThresholdPx int  `toml:"skip_threshold_px"`
}

// Watcher contains debounce and polling timings in milliseconds.
type Watcher struct {
	BatchIntervalMS   int `toml:"batch_interval_ms"`
	StableWaitMS      int `toml:"stable_wait_ms"`
	PollIntervalMS    int `toml:"poll_interval_ms"`
	MaxParallelChecks int `toml:"max_parallel_checks"`
}

// Transform configures the external upscaler invocation.
type Transform struct {
	Binary    string   `toml:"binary"`
	Model     string   `toml:"model"`
	Scale     int      `toml:"scale"`
	Device    string   `toml:"device"`
	TileSize  int      `toml:"tile_size"`
	ExtraArgs []string `toml:"extra_args"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for ChromaScale.
//
// Configuration sections by subsystem:
//   - Paths: watched input directory, output directory, state directory
//   - Processing: in-place replacement and the oversized-image threshold
//   - Watcher: debounce interval, stability sampling window, poll cadence
//   - Transform: upscaler binary, model, scale and device
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Processing Processing `toml:"processing"`
	Watcher    Watcher    `toml:"watcher"`
	Transform  Transform  `toml:"transform"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("chromascale.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories. The output
// directory is created lazily by the worker on first use.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// EnsureInputDir verifies that the watched directory exists and is a directory.
func (c *Config) EnsureInputDir() error {
	info, err := os.Stat(c.Paths.InputDir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInputDir, c.Paths.InputDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInputDir, c.Paths.InputDir)
	}
	return nil
}

// LogDir returns the directory holding per-run application logs.
func (c *Config) LogDir() string {
	return filepath.Join(c.Paths.StateDir, "logs")
}

// HistoryPath returns the job history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "chromascale.lock")
}

// PIDPath returns the pid file written by a running pipeline.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "chromascale.pid")
}

// BatchInterval is the minimum age of a pending entry before it is checked.
func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.Watcher.BatchIntervalMS) * time.Millisecond
}

// StableWait is the size sampling window used by the stabilization check.
func (c *Config) StableWait() time.Duration {
	return time.Duration(c.Watcher.StableWaitMS) * time.Millisecond
}

// PollInterval is the sleep between poll loop ticks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watcher.PollIntervalMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
