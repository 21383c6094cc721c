package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Update lists the settings the CLI can change. Nil fields are left as they are.
type Update struct {
	InputDir        *string
	OutputDir       *string
	ReplaceInPlace  *bool
	SkipThresholdPx *int
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.InputDir == nil && u.OutputDir == nil && u.ReplaceInPlace == nil && u.SkipThresholdPx == nil
}

// Set applies update to the configuration file at path (or the default
// location when path is empty) and rewrites it. The result is validated before
// anything is written. Comments in an existing file are not preserved.
func Set(path string, update Update) (*Config, string, error) {
	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}

	cfg := Default()
	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", fmt.Errorf("parse config: %w", err)
		}
	}

	if update.InputDir != nil {
		expanded, err := expandPath(*update.InputDir)
		if err != nil {
			return nil, "", fmt.Errorf("input dir: %w", err)
		}
		cfg.Paths.InputDir = expanded
	}
	if update.OutputDir != nil {
		expanded, err := expandPath(*update.OutputDir)
		if err != nil {
			return nil, "", fmt.Errorf("output dir: %w", err)
		}
		cfg.Paths.OutputDir = expanded
	}
	if update.ReplaceInPlace != nil {
		cfg.Processing.ReplaceInPlace = *update.ReplaceInPlace
	}
	if update.SkipThresholdPx != nil {
		cfg.Processing.SkipThresholdPx = *update.SkipThresholdPx
	}

	check := cfg
	if err := check.normalize(); err != nil {
		return nil, "", err
	}
	if err := check.Validate(); err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	encoder.SetIndentTables(true)
	if err := encoder.Encode(cfg); err != nil {
		return nil, "", fmt.Errorf("encode config: %w", err)
	}
	if err := writeFileAtomic(resolvedPath, buf.Bytes()); err != nil {
		return nil, "", err
	}
	return &check, resolvedPath, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
