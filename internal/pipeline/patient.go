package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/gofrs/flock"

	"regeval/internal/cohort"
	"regeval/internal/layout"
	"regeval/internal/logging"
	"regeval/internal/services"
	"regeval/internal/variant"
)

const lockFileName = ".lock"

// ErrPatientLocked is returned when another process holds a patient's
// variant tree.
var ErrPatientLocked = errors.New("patient tree locked by another run")

// patientRun carries the per-patient state every stage reads.
type patientRun struct {
	*Runner
	plan    variant.Plan
	patient cohort.Patient
	layout  layout.Layout
	logger  *slog.Logger
	force   bool
}

type stageStep struct {
	step Step
	name string
	run  func(context.Context) error
}

func (p *patientRun) stages() []stageStep {
	return []stageStep{
		{StepNormalize, stageNormalize, p.normalize},
		{StepSegment, stageSegmentCT, p.segmentCT},
		{StepSegment, stageSegmentCBCT, p.segmentCBCT},
		{StepAlign, stageAlign, p.alignStructures},
		{StepDistanceMap, stageDistanceMaps, p.distanceMaps},
		{StepContour, stageContours, p.contours},
		{StepPoints, stagePoints, p.points},
		{StepParams, stageParams, p.params},
		{StepRegister, stageRegister, p.register},
		{StepWarp, stageWarp, p.warp},
	}
}

func (r *Runner) runPatient(ctx context.Context, plan variant.Plan, patient cohort.Patient, opts Options) (result PatientResult) {
	result.Patient = patient
	ctx = services.WithPatient(ctx, patient.Label())
	logger := logging.WithContext(ctx, r.logger)
	stageName := "setup"

	defer func() {
		if rec := recover(); rec != nil {
			result.Err = fmt.Errorf("panic in %s: %v", stageName, rec)
			result.FailedStage = stageName
			logger.Debug("patient panic stack", logging.String("stack", string(debug.Stack())))
		}
		if result.Err != nil {
			logging.ErrorWithContext(logger, "patient failed", "patient_failure",
				logging.String(logging.FieldStage, result.FailedStage),
				logging.String("failure_kind", services.FailureKind(result.Err)),
				logging.Error(result.Err),
				logging.String(logging.FieldImpact, "remaining stages for this patient were not run"),
				logging.String(logging.FieldErrorHint, "fix the cause and rerun; completed stages are reused"),
			)
		}
	}()

	lay := layout.New(patient.Dir, patient.Number, plan.Tag)
	if err := os.MkdirAll(lay.EvalDir(), 0o755); err != nil {
		result.Err = fmt.Errorf("create %s: %w", lay.EvalDir(), err)
		result.FailedStage = stageName
		return result
	}
	lock := flock.New(filepath.Join(lay.EvalDir(), lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		result.Err = fmt.Errorf("acquire patient lock: %w", err)
		result.FailedStage = stageName
		return result
	}
	if !locked {
		result.Err = services.Wrap(services.ErrTransient, "pipeline", "lock", lay.EvalDir(), ErrPatientLocked)
		result.FailedStage = stageName
		return result
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release patient lock", logging.Error(err))
		}
	}()

	logger.Info("patient started",
		logging.String(logging.FieldEventType, "patient_start"),
		logging.String("dir", patient.Dir),
		logging.Bool("ground_truth_cohort", patient.InCohort),
	)

	p := &patientRun{
		Runner:  r,
		plan:    plan,
		patient: patient,
		layout:  lay,
		logger:  logger,
		force:   opts.Force,
	}
	for _, st := range p.stages() {
		if !opts.Steps.Has(st.step) {
			continue
		}
		stageName = st.name
		if err := st.run(ctx); err != nil {
			result.Err = err
			result.FailedStage = st.name
			return result
		}
	}

	if opts.Steps.Scores() {
		stageName = stageScore
		scores, err := p.score(ctx, opts.Steps.Has(StepMetric), opts.Steps.Has(StepFiducial))
		if err != nil {
			result.Err = err
			result.FailedStage = stageScore
			return result
		}
		result.Scores = &scores
	}

	logger.Info("patient completed", logging.String(logging.FieldEventType, "patient_complete"))
	return result
}
