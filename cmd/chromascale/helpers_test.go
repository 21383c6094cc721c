package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"chromascale/internal/config"
	"chromascale/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	path := filepath.Join(testsupport.BaseDir(cfg), "chromascale.toml")
	writeConfigFile(t, path, cfg)
	return &cliTestEnv{cfg: cfg, configPath: path}
}

func writeConfigFile(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	full := append([]string(nil), args...)
	if configPath != "" {
		full = append(full, "--config", configPath)
	}
	cmd.SetArgs(full)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\noutput:\n%s", needle, haystack)
	}
}

// stubSystemctl records systemctl invocations for the duration of a test.
func stubSystemctl(t *testing.T, stdout string, err error) *[][]string {
	t.Helper()
	var calls [][]string
	original := systemctl
	systemctl = func(_ context.Context, out, _ io.Writer, args ...string) error {
		calls = append(calls, append([]string(nil), args...))
		if stdout != "" {
			_, _ = io.WriteString(out, stdout)
		}
		return err
	}
	t.Cleanup(func() { systemctl = original })
	return &calls
}
