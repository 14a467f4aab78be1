package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"regeval/internal/cohort"
	"regeval/internal/config"
	"regeval/internal/layout"
	"regeval/internal/pipeline"
	"regeval/internal/stagecache"
	"regeval/internal/variant"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "status <patient-dir>",
		Short: "Show stage records of a patient for each variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(dir)
			if err != nil {
				return fmt.Errorf("inspect patient directory: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			number, ok := cohort.New(cfg).PatientNumber(dir)
			if !ok {
				return fmt.Errorf("%s does not match patient prefix %q", filepath.Base(dir), cfg.Cohort.PatientPrefix)
			}
			if len(tags) == 0 {
				tags = variant.Tags()
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			shown := 0
			for _, tag := range tags {
				plan, err := variant.Resolve(tag)
				if err != nil {
					return err
				}
				lay := layout.New(dir, number, plan.Tag)
				if _, err := os.Stat(lay.EvalDir()); errors.Is(err, os.ErrNotExist) {
					continue
				}
				rows, err := stageRows(lay)
				if err != nil {
					return err
				}
				if shown > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, sectionHeader(plan.Tag, colorize))
				fmt.Fprintln(out, renderTable(
					[]column{leftCol("Stage"), leftCol("Status"), leftCol("Finished"), rightCol("Artifacts"), wrapCol("Error", 60)},
					rows,
				))
				shown++
			}
			if shown == 0 {
				fmt.Fprintf(out, "No evaluation trees found in %s\n", dir)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "variant", "v", nil, "Limit to these variants")
	return cmd
}

func stageRows(lay layout.Layout) ([][]string, error) {
	var rows [][]string
	for _, st := range pipeline.StageDirs(lay) {
		rec, ok, err := stagecache.Load(st.Dir)
		switch {
		case err != nil && !ok:
			return nil, fmt.Errorf("load %s record: %w", st.Name, err)
		case err != nil:
			rows = append(rows, []string{st.Name, "unreadable", "", "", err.Error()})
			continue
		case !ok:
			rows = append(rows, []string{st.Name, "-", "", "", ""})
			continue
		}
		detail := rec.Error
		if detail == "" && len(rec.Failures) > 0 {
			detail = "partial: " + strings.Join(rec.Failures, "; ")
		}
		finished := ""
		if !rec.FinishedAt.IsZero() {
			finished = rec.FinishedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			st.Name,
			strings.ReplaceAll(string(rec.Status), "_", " "),
			finished,
			formatCount(len(rec.Artifacts)),
			detail,
		})
	}
	return rows, nil
}
