package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"regeval/internal/config"
	"regeval/internal/deps"
	"regeval/internal/logging"
	"regeval/internal/pipeline"
	"regeval/internal/preflight"
	"regeval/internal/runstore"
	"regeval/internal/variant"
)

type runFlags struct {
	variants []string
	all      bool
	steps    map[pipeline.Step]*bool
	force    bool
	patients []string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	flags := &runFlags{steps: make(map[pipeline.Step]*bool)}
	var pwLinear bool

	cmd := &cobra.Command{
		Use:   "run [patient-dir...]",
		Short: "Run pipeline steps for one or more variants",
		Long: `Run the selected pipeline steps over the patient cohort.

Patients are discovered under paths.data_dir unless directories are given.
Completed stages are reused unless --force is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pwLinear {
				*flags.steps[pipeline.StepNormalize] = true
			}
			steps := flags.selection()
			if steps.Empty() {
				return errors.New("no steps selected (use --all or one or more step flags)")
			}
			tags, err := resolveVariants(flags.variants)
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if missing := deps.MissingRequired(preflight.CheckSystemDeps(cfg)); len(missing) > 0 {
				return fmt.Errorf("missing required dependencies: %s (run `regeval check` for details)", strings.Join(missing, ", "))
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return ctx.withStore(func(cfg *config.Config, store *runstore.Store) error {
				runner, err := pipeline.New(cfg, logger, pipeline.WithRunStore(store))
				if err != nil {
					return err
				}
				opts := pipeline.Options{
					Steps:    steps,
					Force:    flags.force,
					Patients: flags.patients,
					Dirs:     args,
				}
				out := cmd.OutOrStdout()
				var failed []string
				var runErrs []error
				for _, tag := range tags {
					summary, err := runner.Run(runCtx, tag, opts)
					if summary.RunID != "" {
						printRunSummary(out, summary)
					}
					if errors.Is(err, context.Canceled) {
						return err
					}
					if err != nil {
						logger.Error("variant run failed",
							logging.String(logging.FieldEventType, "variant_failure"),
							logging.String(logging.FieldVariant, tag),
							logging.Error(err),
						)
						fmt.Fprintf(out, "Variant %s: failed (%v)\n", tag, err)
						runErrs = append(runErrs, fmt.Errorf("variant %s: %w", tag, err))
						continue
					}
					if summary.Failures() > 0 {
						failed = append(failed, tag)
					}
				}
				if len(failed) > 0 {
					runErrs = append(runErrs, fmt.Errorf("patients failed in: %s", strings.Join(failed, ", ")))
				}
				return errors.Join(runErrs...)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&flags.variants, "variant", "v", []string{"all"}, `Variant tag(s) to run; defaults to every variant`)
	cmd.Flags().BoolVarP(&flags.all, "all", "a", false, "Run every step")
	for _, step := range pipeline.AllSteps() {
		flags.steps[step] = cmd.Flags().Bool(string(step), false, stepUsage(step))
	}
	cmd.Flags().BoolVar(&pwLinear, "pw-linear", false, "Alias for --normalize")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Recompute stages even when their records are complete")
	cmd.Flags().StringSliceVarP(&flags.patients, "patients", "p", nil, "Only process these patient numbers")
	return cmd
}

func (f *runFlags) selection() pipeline.Steps {
	if f.all {
		return pipeline.NewSteps(true)
	}
	var selected []pipeline.Step
	for _, step := range pipeline.AllSteps() {
		if v := f.steps[step]; v != nil && *v {
			selected = append(selected, step)
		}
	}
	return pipeline.NewSteps(false, selected...)
}

func resolveVariants(values []string) ([]string, error) {
	var tags []string
	seen := make(map[string]struct{})
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), "all") {
			return variant.Tags(), nil
		}
		plan, err := variant.Resolve(value)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[plan.Tag]; dup {
			continue
		}
		seen[plan.Tag] = struct{}{}
		tags = append(tags, plan.Tag)
	}
	if len(tags) == 0 {
		tags = variant.Tags()
	}
	return tags, nil
}

func stepUsage(step pipeline.Step) string {
	switch step {
	case pipeline.StepNormalize:
		return "Normalize CBCT intensities with the piecewise-linear curve"
	case pipeline.StepSegment:
		return "Segment structures on both modalities"
	case pipeline.StepAlign:
		return "Align extended structures across modalities"
	case pipeline.StepDistanceMap:
		return "Compute distance maps of CBCT structures"
	case pipeline.StepContour:
		return "Convert CT structures to contours"
	case pipeline.StepPoints:
		return "Sample contour points"
	case pipeline.StepParams:
		return "Write registration parameter files"
	case pipeline.StepRegister:
		return "Run registrations"
	case pipeline.StepWarp:
		return "Warp contours, structures, and fiducials"
	case pipeline.StepMetric:
		return "Score Dice and Hausdorff overlap"
	case pipeline.StepFiducial:
		return "Score fiducial separation"
	default:
		return string(step)
	}
}

func printRunSummary(out io.Writer, summary pipeline.Summary) {
	fmt.Fprintf(out, "Variant %s: %s (%d patients, %d failed, %s)\n",
		summary.Plan.Tag, summary.Status, len(summary.Patients), summary.Failures(), summary.Elapsed.Round(time.Millisecond))
	if len(summary.Patients) == 0 {
		fmt.Fprintln(out, "No patients matched.")
		return
	}
	rows := make([][]string, 0, len(summary.Patients))
	for _, result := range summary.Patients {
		status, stage, message := "ok", "", ""
		if result.Failed() {
			status, stage, message = "failed", result.FailedStage, result.Err.Error()
		}
		rows = append(rows, []string{result.Patient.Label(), yesNo(result.Patient.InCohort), status, stage, message})
	}
	fmt.Fprintln(out, renderTable(
		[]column{leftCol("Patient"), leftCol("GT"), leftCol("Status"), leftCol("Stage"), wrapCol("Error", 80)},
		rows,
	))
	for _, path := range summary.Tables {
		fmt.Fprintf(out, "Wrote %s\n", path)
	}
}

func formatCount(n int) string {
	return strconv.Itoa(n)
}
