package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"regeval/internal/align"
	"regeval/internal/cohort"
	"regeval/internal/config"
	"regeval/internal/logging"
	"regeval/internal/organ"
	"regeval/internal/runstore"
	"regeval/internal/scoring"
	"regeval/internal/services"
	"regeval/internal/services/plastimatch"
	"regeval/internal/services/totalseg"
	"regeval/internal/stagecache"
	"regeval/internal/variant"
)

// Imaging is the conversion, registration, and comparison collaborator.
type Imaging interface {
	Adjust(ctx context.Context, input, curve, output string) error
	Convert(ctx context.Context, inputKind, input, outputKind, output string) error
	DistanceMap(ctx context.Context, input, output string) error
	Register(ctx context.Context, paramsPath string) error
	Warp(ctx context.Context, input string, kind plastimatch.OutputKind, output, field string) error
	Dice(ctx context.Context, reference, warped string) (plastimatch.Overlap, error)
}

// Segmenter produces one mask per requested structure.
type Segmenter interface {
	Segment(ctx context.Context, input, outputDir string, rois organ.Set) (map[organ.ID]string, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithImaging replaces the plastimatch client.
func WithImaging(imaging Imaging) Option {
	return func(r *Runner) {
		if imaging != nil {
			r.imaging = imaging
		}
	}
}

// WithSegmenter replaces the TotalSegmentator client.
func WithSegmenter(segmenter Segmenter) Option {
	return func(r *Runner) {
		if segmenter != nil {
			r.segmenter = segmenter
		}
	}
}

// WithRunStore records runs, patient outcomes, and scores in history.
func WithRunStore(store *runstore.Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// Runner executes variants over the patient cohort.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	cohort    *cohort.Cohort
	cache     *stagecache.Cache
	aligner   *align.Aligner
	imaging   Imaging
	segmenter Segmenter
	store     *runstore.Store
}

// New constructs a Runner. Without options it shells out to the binaries
// named in the config.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:     cfg,
		logger:  logger,
		cohort:  cohort.New(cfg),
		cache:   stagecache.New(logger),
		aligner: align.New(logger, cfg.Alignment.ColonKeepRatio),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.imaging == nil {
		client, err := plastimatch.New(cfg.Tools.Plastimatch, plastimatch.WithLogger(logger))
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "plastimatch client", err)
		}
		r.imaging = client
	}
	if r.segmenter == nil {
		client, err := totalseg.New(cfg.Tools.TotalSegmentator,
			totalseg.WithLogger(logger),
			totalseg.WithExtraArgs(cfg.Tools.SegmentationArgs...),
		)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "totalsegmentator client", err)
		}
		r.segmenter = client
	}
	return r, nil
}

// Options selects what a run does.
type Options struct {
	Steps Steps
	Force bool
	// Patients keeps only the listed patient numbers.
	Patients []string
	// Dirs replaces discovery with explicit patient directories.
	Dirs []string
}

// PatientResult is the outcome of one patient.
type PatientResult struct {
	Patient     cohort.Patient
	Err         error
	FailedStage string
	// Scores is set whenever scoring was selected; a failed patient carries
	// an empty record so its row holds sentinels.
	Scores *scoring.PatientScores
}

// Failed reports whether the patient's stage sequence aborted.
func (p PatientResult) Failed() bool {
	return p.Err != nil
}

// Summary reports a finished variant run.
type Summary struct {
	RunID    string
	Plan     variant.Plan
	Patients []PatientResult
	Tables   []string
	Status   runstore.RunStatus
	Elapsed  time.Duration
}

// Failures counts failed patients.
func (s Summary) Failures() int {
	n := 0
	for _, p := range s.Patients {
		if p.Failed() {
			n++
		}
	}
	return n
}

// Run executes the selected steps of one variant over every patient.
// Patient failures are recorded in the summary, never returned; the error
// is reserved for problems that prevent the run itself.
func (r *Runner) Run(ctx context.Context, tag string, opts Options) (Summary, error) {
	started := time.Now()
	plan, err := variant.Resolve(tag)
	if err != nil {
		return Summary{}, err
	}
	if opts.Steps.Empty() {
		return Summary{}, services.Wrap(services.ErrConfiguration, "pipeline", "run", "no steps selected", nil)
	}

	patients, err := r.patients(opts)
	if err != nil {
		return Summary{}, err
	}

	runID := uuid.NewString()
	if r.store != nil {
		if runID, err = r.store.BeginRun(ctx, plan.Tag, opts.Steps.Names(), opts.Force); err != nil {
			return Summary{}, fmt.Errorf("begin run: %w", err)
		}
	}
	ctx = services.WithVariant(ctx, plan.Tag)
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("variant run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("plan", plan.String()),
		logging.String("steps", strings.Join(opts.Steps.Names(), ",")),
		logging.Int("patients", len(patients)),
		logging.Bool("force", opts.Force),
	)

	summary := Summary{RunID: runID, Plan: plan}
	agg := scoring.NewAggregator(plan.Tag, plan.ExtendedOrgans)
	for _, patient := range patients {
		if err := ctx.Err(); err != nil {
			logging.WarnWithContext(logger, "run interrupted", "run_interrupted",
				logging.Int("remaining", len(patients)-len(summary.Patients)),
				logging.String(logging.FieldImpact, "remaining patients were not processed"),
			)
			break
		}
		result := r.runPatient(ctx, plan, patient, opts)
		if opts.Steps.Scores() && result.Scores == nil {
			empty := scoring.NewPatientScores(patient.Number)
			result.Scores = &empty
		}
		summary.Patients = append(summary.Patients, result)
		r.record(ctx, logger, runID, plan, result)
		if result.Scores != nil {
			agg.Add(*result.Scores)
		}
	}

	var tableErr error
	if opts.Steps.Scores() {
		paths, err := agg.Write(r.cfg.Paths.ResultsDir)
		if err != nil {
			tableErr = fmt.Errorf("write result tables: %w", err)
		}
		summary.Tables = paths
	}

	failures := summary.Failures()
	summary.Status = finalStatus(len(summary.Patients), failures)
	if r.store != nil {
		// The run row is closed even when ctx was cancelled mid-batch.
		status, err := r.store.FinishRun(context.WithoutCancel(ctx), runID, len(summary.Patients), failures)
		if err != nil {
			logger.Error("failed to persist run result", logging.Error(err))
		} else {
			summary.Status = status
		}
	}
	summary.Elapsed = time.Since(started)
	logger.Info("variant run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("status", string(summary.Status)),
		logging.Int("patients", len(summary.Patients)),
		logging.Int("failures", failures),
		logging.Duration("elapsed", summary.Elapsed),
	)
	if tableErr != nil {
		return summary, tableErr
	}
	return summary, ctx.Err()
}

func (r *Runner) patients(opts Options) ([]cohort.Patient, error) {
	if len(opts.Dirs) > 0 {
		return r.cohort.FromDirs(opts.Dirs, opts.Patients)
	}
	return r.cohort.Discover(opts.Patients)
}

func (r *Runner) record(ctx context.Context, logger *slog.Logger, runID string, plan variant.Plan, result PatientResult) {
	if r.store == nil {
		return
	}
	outcome := runstore.PatientOutcome{
		RunID:   runID,
		Patient: result.Patient.Number,
		Status:  runstore.PatientSucceeded,
	}
	if result.Err != nil {
		outcome.Status = runstore.PatientFailed
		outcome.FailedStage = result.FailedStage
		outcome.FailureKind = services.FailureKind(result.Err)
		outcome.Message = result.Err.Error()
	}
	ctx = context.WithoutCancel(ctx)
	if err := r.store.RecordPatient(ctx, outcome); err != nil {
		logger.Error("failed to persist patient outcome", logging.String(logging.FieldPatient, result.Patient.Label()), logging.Error(err))
	}
	if result.Scores != nil {
		if err := r.store.RecordScores(ctx, runID, plan.Tag, *result.Scores); err != nil {
			logger.Error("failed to persist patient scores", logging.String(logging.FieldPatient, result.Patient.Label()), logging.Error(err))
		}
	}
}

func finalStatus(patients, failures int) runstore.RunStatus {
	switch {
	case failures > 0 && failures >= patients:
		return runstore.RunFailed
	case failures > 0:
		return runstore.RunPartial
	default:
		return runstore.RunCompleted
	}
}

// Merge rebuilds the cross-variant tables from run history and writes them
// to the results directory.
func Merge(ctx context.Context, store *runstore.Store, resultsDir string, tags []string) ([]string, error) {
	if store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "merge", "run history is required", nil)
	}
	if len(tags) == 0 {
		tags = variant.Tags()
	}
	byMetric := make(map[scoring.Metric]map[string]*scoring.Table, 3)
	resolved := make([]string, 0, len(tags))
	for _, tag := range tags {
		plan, err := variant.Resolve(tag)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, plan.Tag)
		agg, err := store.LatestTables(ctx, plan.Tag, plan.ExtendedOrgans)
		if err != nil {
			return nil, fmt.Errorf("load %s tables: %w", plan.Tag, err)
		}
		for _, m := range scoring.Metrics() {
			if byMetric[m] == nil {
				byMetric[m] = make(map[string]*scoring.Table, len(tags))
			}
			byMetric[m][plan.Tag] = agg.Table(m)
		}
	}

	paths := make([]string, 0, 3)
	for _, m := range scoring.Metrics() {
		merged := scoring.Merge(m, resolved, byMetric[m])
		path, err := scoring.WriteMerged(resultsDir, merged)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
