package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

func newLogCommands(ctx *commandContext) []*cobra.Command {
	var follow bool
	var lines int

	serviceLogs := &cobra.Command{
		Use:         "service-logs",
		Short:       "Show the systemd journal for the chromascale service",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			argv := []string{"--user", "-u", serviceUnit, "-n", strconv.Itoa(lines)}
			if follow {
				argv = append(argv, "-f")
			}
			return runAttached(cmd, "journalctl", argv...)
		},
	}
	serviceLogs.Flags().BoolVarP(&follow, "follow", "f", true, "Follow new journal entries")
	serviceLogs.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")

	var appFollow bool
	var appLines int
	appLogs := &cobra.Command{
		Use:   "app-logs",
		Short: "Show the current pipeline log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			current := filepath.Join(cfg.LogDir(), "chromascale.log")
			if _, err := os.Stat(current); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no log file at %s; has the pipeline run yet?", current)
			}
			argv := []string{"-n", strconv.Itoa(appLines)}
			if appFollow {
				argv = append(argv, "-F")
			}
			argv = append(argv, current)
			return runAttached(cmd, "tail", argv...)
		},
	}
	appLogs.Flags().BoolVarP(&appFollow, "follow", "f", true, "Follow the log as it grows")
	appLogs.Flags().IntVarP(&appLines, "lines", "n", 100, "Number of lines to show")

	return []*cobra.Command{serviceLogs, appLogs}
}

func runAttached(cmd *cobra.Command, name string, args ...string) error {
	proc := exec.CommandContext(cmd.Context(), name, args...)
	proc.Stdout = cmd.OutOrStdout()
	proc.Stderr = cmd.ErrOrStderr()
	proc.Stdin = os.Stdin
	if err := proc.Run(); err != nil {
		if cmd.Context().Err() != nil {
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
