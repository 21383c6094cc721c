package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"chromascale/internal/preflight"
)

var errChecksFailed = errors.New("one or more required checks failed")

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories and external tools before running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			out := cmd.OutOrStdout()

			results := preflight.RunAll(cfg)
			rows := make([][]string, 0, len(results)+3)
			for _, r := range results {
				rows = append(rows, []string{r.Name, passLabel(r.Passed, false), r.Detail})
			}

			failed := !preflight.AllPassed(results)
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				detail := dep.Description
				if dep.Path != "" {
					detail = fmt.Sprintf("%s (%s)", dep.Description, dep.Path)
				}
				if !dep.Available {
					detail = dep.Detail
					if !dep.Optional {
						failed = true
					}
				}
				rows = append(rows, []string{dep.Name, passLabel(dep.Available, dep.Optional), detail})
			}

			fmt.Fprint(out, renderTable([]column{{header: "Check"}, {header: "Status"}, {header: "Detail"}}, rows))
			fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			if failed {
				return errChecksFailed
			}
			fmt.Fprintln(out, "All required checks passed")
			return nil
		},
	}
}

func passLabel(passed, optional bool) string {
	switch {
	case passed:
		return "ok"
	case optional:
		return "missing (optional)"
	default:
		return "FAILED"
	}
}
