package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWatcher()
	c.normalizeTransform()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	// Environment overrides win over the file so a service unit can redirect
	// directories without editing the config.
	if value, ok := os.LookupEnv("CHROMASCALE_INPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.InputDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("CHROMASCALE_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}

	var err error
	if c.Paths.InputDir, err = expandPath(strings.TrimSpace(c.Paths.InputDir)); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWatcher() {
	if c.Watcher.MaxParallelChecks <= 0 {
		c.Watcher.MaxParallelChecks = 1
	}
}

func (c *Config) normalizeTransform() {
	c.Transform.Binary = strings.TrimSpace(c.Transform.Binary)
	if c.Transform.Binary == "" {
		c.Transform.Binary = defaultTransformBinary
	}
	c.Transform.Model = strings.TrimSpace(c.Transform.Model)
	c.Transform.Device = strings.ToLower(strings.TrimSpace(c.Transform.Device))
	if c.Transform.Device == "" {
		c.Transform.Device = defaultTransformDevice
	}
	args := make([]string, 0, len(c.Transform.ExtraArgs))
	for _, arg := range c.Transform.ExtraArgs {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Transform.ExtraArgs = args
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
