package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"chromascale/internal/config"
)

func newSetCommand(ctx *commandContext) *cobra.Command {
	var (
		inputDir  string
		outputDir string
		replace   bool
		noReplace bool
		threshold int
	)

	cmd := &cobra.Command{
		Use:         "set",
		Short:       "Update watched folder, output folder, and skip threshold",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var update config.Update
			if flags.Changed("input") {
				update.InputDir = &inputDir
			}
			if flags.Changed("output") {
				update.OutputDir = &outputDir
			}
			if flags.Changed("replace") && flags.Changed("no-replace") {
				return errors.New("--replace and --no-replace are mutually exclusive")
			}
			if flags.Changed("replace") {
				update.ReplaceInPlace = &replace
			}
			if flags.Changed("no-replace") {
				value := !noReplace
				update.ReplaceInPlace = &value
			}
			if flags.Changed("threshold") {
				update.SkipThresholdPx = &threshold
			}
			if update.Empty() {
				return errors.New("nothing to set; pass at least one of --input, --output, --replace, --no-replace, --threshold")
			}

			cfg, path, err := config.Set(ctx.configFlagValue(), update)
			if err != nil {
				return fmt.Errorf("update config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Updated %s\n", path)
			fmt.Fprintf(out, "  Input:            %s\n", cfg.Paths.InputDir)
			fmt.Fprintf(out, "  Output:           %s\n", cfg.Paths.OutputDir)
			fmt.Fprintf(out, "  Replace in place: %s\n", yesNo(cfg.Processing.ReplaceInPlace))
			fmt.Fprintf(out, "  Skip threshold:   %d px\n", cfg.Processing.SkipThresholdPx)
			fmt.Fprintln(out, "Restart the service for changes to take effect.")
			return nil
		},
	}

	cmd.Flags().StringVar(&inputDir, "input", "", "Folder to watch for new images")
	cmd.Flags().StringVar(&outputDir, "output", "", "Folder that receives upscaled and skipped images")
	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite originals in place instead of writing to the output folder")
	cmd.Flags().BoolVar(&noReplace, "no-replace", false, "Write results to the output folder")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Skip images whose width or height exceeds this many pixels")
	return cmd
}
