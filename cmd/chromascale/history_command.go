package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chromascale/internal/history"
	"chromascale/internal/worker"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var outcomes []string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]string, 0, len(outcomes))
			for _, raw := range outcomes {
				o, ok := worker.ParseOutcome(strings.TrimSpace(raw))
				if !ok {
					return fmt.Errorf("unknown outcome %q (valid: %s)", raw, validOutcomes())
				}
				filter = append(filter, string(o))
			}

			cfg := ctx.configValue()
			out := cmd.OutOrStdout()
			if _, err := os.Stat(cfg.HistoryPath()); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}
			store, err := history.OpenPath(cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit, filter...)
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}
			fmt.Fprint(out, renderTable(historyColumns(), historyRows(entries, shouldColorize(out))))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show")
	cmd.Flags().StringSliceVar(&outcomes, "outcome", nil, "Only show jobs with these outcomes")
	return cmd
}

func historyColumns() []column {
	return []column{
		{header: "Finished"},
		{header: "File"},
		{header: "Outcome"},
		{header: "Size", align: alignRight},
		{header: "Took", align: alignRight},
		{header: "Detail"},
	}
}

func historyRows(entries []history.Entry, colorize bool) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		size := ""
		if e.Width > 0 && e.Height > 0 {
			size = fmt.Sprintf("%dx%d", e.Width, e.Height)
		}
		detail := e.OutputPath
		if e.ErrorMessage != "" {
			detail = truncate(e.ErrorMessage, 60)
		}
		rows = append(rows, []string{
			e.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			filepath.Base(e.Path),
			colorizeText(outcomeLabel(e.Outcome), outcomeKind(e.Outcome), colorize),
			size,
			e.Duration().Round(time.Millisecond).String(),
			detail,
		})
	}
	return rows
}

func validOutcomes() string {
	names := make([]string, 0, len(worker.Outcomes()))
	for _, o := range worker.Outcomes() {
		names = append(names, string(o))
	}
	return strings.Join(names, ", ")
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
