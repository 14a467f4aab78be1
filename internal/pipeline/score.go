package pipeline

import (
	"context"

	"regeval/internal/fileutil"
	"regeval/internal/layout"
	"regeval/internal/logging"
	"regeval/internal/organ"
	"regeval/internal/pointset"
	"regeval/internal/registration"
	"regeval/internal/scoring"
	"regeval/internal/services"
	"regeval/internal/stagecache"
)

// score refreshes the selected metrics of the patient's score record and
// persists it. Cells that cannot be computed are left out so tables fill
// them with sentinels.
func (p *patientRun) score(ctx context.Context, overlap, fiducial bool) (scoring.PatientScores, error) {
	ctx = services.WithStage(ctx, stageScore)
	logger := p.stageLogger(ctx)

	scores := scoring.NewPatientScores(p.patient.Number)
	if prior, err := scoring.LoadScores(p.layout.Scores()); err == nil {
		if prior.Dice != nil {
			scores.Dice = prior.Dice
		}
		if prior.Hausdorff != nil {
			scores.Hausdorff = prior.Hausdorff
		}
		if prior.Fiducial != nil {
			scores.Fiducial = prior.Fiducial
		}
	}

	if overlap {
		scores.Dice = map[string]string{}
		scores.Hausdorff = map[string]string{}
		p.scoreOverlap(ctx, &scores)
	}
	if fiducial {
		scores.Fiducial = map[string]string{}
		p.scoreFiducials(ctx, &scores)
	}

	if err := scoring.SaveScores(p.layout.Scores(), scores); err != nil {
		return scores, services.Wrap(services.ErrTransient, stageScore, "save", p.layout.Scores(), err)
	}
	logger.Info("scores recorded",
		logging.String(logging.FieldEventType, "score_complete"),
		logging.Int("overlap_cells", len(scores.Dice)),
		logging.Int("fiducial_cells", len(scores.Fiducial)),
	)
	return scores, nil
}

func (p *patientRun) scoreOverlap(ctx context.Context, scores *scoring.PatientScores) {
	logger := p.stageLogger(ctx)
	references := make(map[organ.ID]string)
	if masks, err := p.masks(layout.CTDir); err == nil {
		for _, a := range masks {
			references[a.Organ] = a.Path
		}
	} else {
		logging.WarnWithContext(logger, "CT structures unavailable", "input_missing",
			logging.Error(err),
			logging.String(logging.FieldImpact, "segmentation structure cells recorded as sentinels"),
		)
	}

	for _, warped := range p.warped(ctx, kindWarpedMask) {
		column := layout.WarpName(warped.Config, warped.Organ.Name)
		reference := references[warped.Organ]
		if warped.Organ.Source == organ.SourceGT {
			reference = p.layout.GTContour(layout.CTDir, warped.Organ.Name)
		}
		if reference == "" || !fileutil.Exists(reference) {
			logging.WarnWithContext(logger, "reference structure missing", "input_missing",
				logging.String("column", column),
				logging.String("reference", reference),
				logging.String(logging.FieldImpact, "cell recorded as sentinel"),
			)
			continue
		}
		result, err := p.imaging.Dice(ctx, reference, warped.Path)
		if err != nil {
			logging.WarnWithContext(logger, "overlap comparison failed", "score_failed",
				logging.String("column", column),
				logging.Error(err),
				logging.String(logging.FieldImpact, "cell recorded as sentinel"),
			)
			continue
		}
		scores.Dice[column] = result.Dice
		scores.Hausdorff[column] = result.Hausdorff95
	}
}

func (p *patientRun) scoreFiducials(ctx context.Context, scores *scoring.PatientScores) {
	logger := p.stageLogger(ctx)
	ctFiducials := p.layout.Fiducials(layout.CTDir)
	if !fileutil.NonEmptyFile(ctFiducials) {
		logger.Info("patient has no fiducials",
			logging.String(logging.FieldEventType, "config_skipped"),
			logging.String("path", ctFiducials),
		)
		return
	}
	fixed, err := pointset.ReadFCSV(ctFiducials)
	if err != nil {
		logging.WarnWithContext(logger, "CT fiducials unreadable", "input_invalid",
			logging.Error(err),
			logging.String(logging.FieldImpact, "fiducial cells recorded as sentinels"),
		)
		return
	}
	for _, warped := range p.warped(ctx, kindWarpedPoints) {
		moving, err := pointset.ReadFCSV(warped.Path)
		if err == nil {
			var sep float64
			if sep, err = scoring.FiducialSeparation(fixed, moving); err == nil {
				scores.Fiducial[warped.Config] = scoring.FormatSeparation(sep)
				continue
			}
		}
		logging.WarnWithContext(logger, "fiducial separation failed", "score_failed",
			logging.String("config", warped.Config),
			logging.Error(err),
			logging.String(logging.FieldImpact, "cell recorded as sentinel"),
		)
	}
}

// warped collects warp outputs of a kind. A shared variant contributes its
// ground-truth dependent outputs read-only.
func (p *patientRun) warped(ctx context.Context, kind string) []stagecache.Artifact {
	logger := p.stageLogger(ctx)
	var out []stagecache.Artifact
	if rec, err := completed(stageWarp, p.layout.WarpsDir()); err == nil {
		for _, a := range rec.Filter(kind) {
			if p.plan.Shared() && registration.GroundTruthDependent(a.Config) {
				continue
			}
			out = append(out, a)
		}
	} else {
		logging.WarnWithContext(logger, "warped outputs unavailable", "input_missing",
			logging.Error(err),
			logging.String(logging.FieldImpact, "cells recorded as sentinels"),
			logging.String(logging.FieldErrorHint, "run the warp step"),
		)
	}

	if !p.plan.Shared() {
		return out
	}
	shared := p.layout.ForVariant(p.plan.SharedFrom)
	rec, err := completed(stageWarp, shared.WarpsDir())
	if err != nil {
		logging.WarnWithContext(logger, "shared variant outputs unavailable", "input_missing",
			logging.String("shared_variant", p.plan.SharedFrom),
			logging.Error(err),
			logging.String(logging.FieldImpact, "ground-truth dependent cells recorded as sentinels"),
			logging.String(logging.FieldErrorHint, "run variant "+p.plan.SharedFrom+" first"),
		)
		return out
	}
	for _, a := range rec.Filter(kind) {
		if registration.GroundTruthDependent(a.Config) {
			out = append(out, a)
		}
	}
	return out
}
