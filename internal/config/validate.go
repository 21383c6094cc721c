package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateWatcher(); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.InputDir == "" {
		return errors.New("paths.input_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if !c.Processing.ReplaceInPlace && filepath.Clean(c.Paths.InputDir) == filepath.Clean(c.Paths.OutputDir) {
		return errors.New("paths.output_dir must differ from paths.input_dir when processing.replace_in_place is false")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.SkipThresholdPx <= 0 {
		return errors.New("processing.skip_threshold_px must be positive")
	}
	return nil
}

func (c *Config) validateWatcher() error {
	return ensurePositiveMap(map[string]int{
		"watcher.batch_interval_ms": c.Watcher.BatchIntervalMS,
		"watcher.stable_wait_ms":    c.Watcher.StableWaitMS,
		"watcher.poll_interval_ms":  c.Watcher.PollIntervalMS,
	})
}

func (c *Config) validateTransform() error {
	switch c.Transform.Scale {
	case 2, 3, 4:
	default:
		return fmt.Errorf("transform.scale must be 2, 3, or 4 (got %d)", c.Transform.Scale)
	}
	if c.Transform.TileSize < 0 {
		return errors.New("transform.tile_size must be >= 0")
	}
	switch c.Transform.Device {
	case "auto", "cpu":
	default:
		index, err := strconv.Atoi(c.Transform.Device)
		if err != nil || index < 0 {
			return fmt.Errorf("transform.device must be auto, cpu, or a GPU index (got %q)", c.Transform.Device)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
