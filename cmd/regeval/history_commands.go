package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"regeval/internal/config"
	"regeval/internal/pipeline"
	"regeval/internal/runstore"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Rebuild merged result tables from run history",
		Long: `Rebuild results/merged_{dice,hd,fd-sep}.csv from the latest recorded
scores of each patient under each variant.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *runstore.Store) error {
				paths, err := pipeline.Merge(cmd.Context(), store, cfg.Paths.ResultsDir, tags)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, path := range paths {
					fmt.Fprintf(out, "Wrote %s\n", path)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "variant", "v", nil, "Variants to merge (default: all)")
	return cmd
}

func newResultsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List recent runs, or the patient outcomes of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *runstore.Store) error {
				out := cmd.OutOrStdout()
				if runID != "" {
					return printRunOutcomes(cmd, store, runID)
				}
				runs, err := store.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.ID,
						run.Variant,
						string(run.Status),
						formatCount(run.Patients),
						formatCount(run.Failures),
						run.StartedAt.Local().Format(time.DateTime),
						formatDuration(run.Duration()),
						run.Steps,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{
						leftCol("Run"),
						leftCol("Variant"),
						leftCol("Status"),
						rightCol("Patients"),
						rightCol("Failed"),
						leftCol("Started"),
						rightCol("Duration"),
						wrapCol("Steps", 40),
					},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "Show per-patient outcomes of a run")
	return cmd
}

func printRunOutcomes(cmd *cobra.Command, store *runstore.Store, runID string) error {
	run, err := store.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	outcomes, err := store.PatientOutcomes(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s): %s\n", run.ID, run.Variant, run.Status)
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{o.Patient, string(o.Status), o.FailedStage, o.FailureKind, o.Message})
	}
	fmt.Fprintln(out, renderTable(
		[]column{leftCol("Patient"), leftCol("Status"), leftCol("Stage"), leftCol("Kind"), wrapCol("Error", 80)},
		rows,
	))
	return nil
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
