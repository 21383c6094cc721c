package main

import (
	"path/filepath"
	"testing"

	"chromascale/internal/config"
)

func TestSetUpdatesConfigFile(t *testing.T) {
	env := setupCLITestEnv(t)
	newOutput := filepath.Join(t.TempDir(), "upscaled")

	out, _, err := runCLI(t, []string{"set", "--output", newOutput, "--threshold", "2048"}, env.configPath)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	requireContains(t, out, "Skip threshold:   2048 px")

	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Paths.OutputDir != newOutput || cfg.Processing.SkipThresholdPx != 2048 {
		t.Fatalf("config not updated: %+v", cfg.Paths)
	}
	if cfg.Paths.InputDir != env.cfg.Paths.InputDir {
		t.Fatalf("input dir changed unexpectedly: %s", cfg.Paths.InputDir)
	}

	if _, _, err := runCLI(t, []string{"set", "--replace"}, env.configPath); err != nil {
		t.Fatalf("set --replace: %v", err)
	}
	cfg, _, _, err = config.Load(env.configPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !cfg.Processing.ReplaceInPlace {
		t.Fatal("expected replace_in_place to be enabled")
	}

	if _, _, err := runCLI(t, []string{"set", "--no-replace"}, env.configPath); err != nil {
		t.Fatalf("set --no-replace: %v", err)
	}
	cfg, _, _, err = config.Load(env.configPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Processing.ReplaceInPlace {
		t.Fatal("expected replace_in_place to be disabled")
	}
}

func TestSetRejectsInvalidInput(t *testing.T) {
	env := setupCLITestEnv(t)

	cases := map[string][]string{
		"no flags":            {"set"},
		"conflicting flags":   {"set", "--replace", "--no-replace"},
		"negative threshold":  {"set", "--threshold", "-5"},
		"output equals input": {"set", "--output", env.cfg.Paths.InputDir},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := runCLI(t, args, env.configPath); err == nil {
				t.Fatalf("expected %v to fail", args)
			}
		})
	}

	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Processing.SkipThresholdPx != env.cfg.Processing.SkipThresholdPx {
		t.Fatalf("rejected update must not be written, threshold=%d", cfg.Processing.SkipThresholdPx)
	}
}
