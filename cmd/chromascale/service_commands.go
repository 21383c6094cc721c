package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"chromascale/internal/config"
	"chromascale/internal/history"
)

const serviceUnit = "chromascale.service"

// systemctl is swapped out in tests.
var systemctl = func(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	cmd := exec.CommandContext(ctx, "systemctl", append([]string{"--user"}, args...)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

func newServiceCommands(ctx *commandContext) []*cobra.Command {
	serviceAction := func(use, short, verb, done string) *cobra.Command {
		return &cobra.Command{
			Use:         use,
			Short:       short,
			Annotations: map[string]string{"skipConfigLoad": "true"},
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := systemctl(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), verb, serviceUnit); err != nil {
					return fmt.Errorf("systemctl %s %s: %w", verb, serviceUnit, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), done)
				return nil
			},
		}
	}

	startCmd := serviceAction("start", "Start the chromascale user service", "start", "Service started")
	stopCmd := serviceAction("stop", "Stop the chromascale user service", "stop", "Service stopped")
	restartCmd := serviceAction("restart", "Restart the chromascale user service", "restart", "Service restarted")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show service, configuration, and job history status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			printSection(out, "Service", colorize)
			running, err := pipelineRunning(cfg)
			switch {
			case err != nil:
				fmt.Fprintln(out, renderStatusLine("Pipeline", statusWarn, err.Error(), colorize))
			case running:
				message := "Running"
				if pid := readPID(cfg.PIDPath()); pid > 0 {
					message = fmt.Sprintf("Running (pid %d)", pid)
				}
				fmt.Fprintln(out, renderStatusLine("Pipeline", statusOK, message, colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Pipeline", statusError, "Not running", colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Systemd unit", statusInfo, serviceState(cmd.Context()), colorize))
			fmt.Fprintln(out)

			printSection(out, "Configuration", colorize)
			for _, line := range configLines(cfg, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out)

			printSection(out, "Job History", colorize)
			counts, err := historyCounts(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			rows := outcomeRows(counts, colorize)
			if len(rows) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}
			fmt.Fprint(out, renderTable([]column{{header: "Outcome"}, {header: "Count", align: alignRight}}, rows))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

// pipelineRunning reports whether another process holds the pipeline lock.
func pipelineRunning(cfg *config.Config) (bool, error) {
	lockPath := cfg.LockPath()
	if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("check lock: %w", err)
	}
	if acquired {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

// readPID returns the pid recorded by the running pipeline, or 0.
func readPID(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

func serviceState(ctx context.Context) string {
	var buf strings.Builder
	_ = systemctl(ctx, &buf, io.Discard, "is-active", serviceUnit)
	state := strings.TrimSpace(buf.String())
	if state == "" {
		return "unknown"
	}
	return state
}

func configLines(cfg *config.Config, colorize bool) []string {
	lines := []string{
		renderStatusLine("Input", statusInfo, cfg.Paths.InputDir, colorize),
	}
	if cfg.Processing.ReplaceInPlace {
		lines = append(lines, renderStatusLine("Output", statusInfo, "replace in place", colorize))
	} else {
		lines = append(lines, renderStatusLine("Output", statusInfo, cfg.Paths.OutputDir, colorize))
	}
	lines = append(lines,
		renderStatusLine("Skip threshold", statusInfo, fmt.Sprintf("%d px", cfg.Processing.SkipThresholdPx), colorize),
		renderStatusLine("Upscaler", statusInfo, cfg.Transform.Binary, colorize),
	)
	return lines
}

func historyCounts(ctx context.Context, cfg *config.Config) (map[string]int, error) {
	if _, err := os.Stat(cfg.HistoryPath()); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	store, err := history.OpenPath(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return store.Counts(ctx)
}

func outcomeRows(counts map[string]int, colorize bool) [][]string {
	outcomes := make([]string, 0, len(counts))
	for outcome := range counts {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	rows := make([][]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		label := colorizeText(outcomeLabel(outcome), outcomeKind(outcome), colorize)
		rows = append(rows, []string{label, fmt.Sprintf("%d", counts[outcome])})
	}
	return rows
}
