package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"regeval/internal/deps"
	"regeval/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check external tools, directories, and run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			configLabel := ctx.configPath
			if !ctx.configSeen {
				configLabel = "defaults"
			}
			fmt.Fprintf(out, "Config: %s\n\n", configLabel)

			statuses := preflight.CheckSystemDeps(cfg)
			writeSection(out, "External tools", toolLines(statuses), colorize)
			fmt.Fprintln(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			lines := make([]checkLine, 0, len(results))
			for _, result := range results {
				state := checkPassed
				if !result.Passed {
					state = checkFailed
				}
				lines = append(lines, checkLine{label: result.Name, state: state, detail: result.Detail})
			}
			writeSection(out, "Environment", lines, colorize)

			problems := deps.MissingRequired(statuses)
			for _, failed := range preflight.Failed(results) {
				problems = append(problems, failed.Name)
			}
			if len(problems) > 0 {
				return fmt.Errorf("checks failed: %s", strings.Join(problems, ", "))
			}
			fmt.Fprintln(out, "\nAll checks passed")
			return nil
		},
	}
}

func toolLines(statuses []deps.Status) []checkLine {
	lines := make([]checkLine, 0, len(statuses))
	for _, status := range statuses {
		line := checkLine{label: status.Name, state: checkPassed, detail: status.Path}
		if !status.Available {
			line.state, line.detail = checkFailed, status.Detail
			if status.Optional {
				line.state = checkWarned
			}
		}
		lines = append(lines, line)
	}
	return lines
}
