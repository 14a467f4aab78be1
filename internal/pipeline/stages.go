package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"regeval/internal/align"
	"regeval/internal/fileutil"
	"regeval/internal/layout"
	"regeval/internal/logging"
	"regeval/internal/organ"
	"regeval/internal/pointset"
	"regeval/internal/registration"
	"regeval/internal/services"
	"regeval/internal/services/plastimatch"
	"regeval/internal/stagecache"
)

func (p *patientRun) stageLogger(ctx context.Context) *slog.Logger {
	if stage, ok := services.StageFromContext(ctx); ok {
		return p.logger.With(logging.String(logging.FieldStage, stage))
	}
	return p.logger
}

func (p *patientRun) configSkipped(ctx context.Context, config, reason string) {
	p.stageLogger(ctx).Info("configuration skipped",
		logging.String(logging.FieldEventType, "config_skipped"),
		logging.String("config", config),
		logging.String("reason", reason),
	)
}

func (p *patientRun) cached(ctx context.Context, name, dir string, fn stagecache.Func, extra ...string) error {
	_, err := p.cache.Run(ctx, stagecache.Stage{
		Name:      name,
		Patient:   p.patient.Number,
		Variant:   p.plan.Tag,
		Dir:       dir,
		ExtraDirs: extra,
	}, p.force, fn)
	return err
}

func (p *patientRun) normalize(ctx context.Context) error {
	if !p.plan.NeedsNormalization() {
		p.configSkipped(services.WithStage(ctx, stageNormalize), stageNormalize, "variant registers the generated CT")
		return nil
	}
	return p.cached(ctx, stageNormalize, p.layout.NormalizedDir(), func(ctx context.Context, m *stagecache.Manifest) error {
		out := p.layout.NormalizedVolume()
		if err := p.imaging.Adjust(ctx, p.layout.CBCT(), p.cfg.Normalization.PWLinear, out); err != nil {
			return err
		}
		m.Add(stagecache.Artifact{Kind: kindVolume, Path: out})

		series := p.layout.NormalizedSeries()
		if err := p.imaging.Convert(ctx, "input", out, "output-dicom", series); err != nil {
			return err
		}
		m.Add(stagecache.Artifact{Kind: kindSeries, Path: series})
		return nil
	})
}

func (p *patientRun) segmentCT(ctx context.Context) error {
	return p.segment(ctx, stageSegmentCT, layout.CTDir, func() (string, error) {
		return p.layout.CT(), nil
	})
}

func (p *patientRun) segmentCBCT(ctx context.Context) error {
	return p.segment(ctx, stageSegmentCBCT, layout.CBCTDir, func() (string, error) {
		if p.plan.UsesGeneratedCT() {
			return p.layout.GeneratedCT(), nil
		}
		rec, err := completed(stageNormalize, p.layout.NormalizedDir())
		if err != nil {
			return "", err
		}
		series := rec.Filter(kindSeries)
		if len(series) == 0 {
			return "", services.Wrap(services.ErrNotFound, stageSegmentCBCT, "input", "normalized series missing from manifest", nil)
		}
		return series[0].Path, nil
	})
}

// segment runs the model on one modality and converts each mask to NRRD.
func (p *patientRun) segment(ctx context.Context, name, modality string, input func() (string, error)) error {
	return p.cached(ctx, name, p.layout.SegDir(modality), func(ctx context.Context, m *stagecache.Manifest) error {
		source, err := input()
		if err != nil {
			return err
		}
		rois := p.plan.ROIs(p.patient.InCohort)
		produced, err := p.segmenter.Segment(ctx, source, p.layout.SegDir(modality), rois)
		if err != nil {
			return err
		}
		for _, id := range rois {
			out := p.layout.Segment(modality, id)
			if err := p.imaging.Convert(ctx, "input", produced[id], "output-img", out); err != nil {
				return err
			}
			m.Add(stagecache.Artifact{Organ: id, Config: modality, Kind: kindMask, Path: out})
		}
		return nil
	})
}

// alignStructures copies both modalities' masks into the aligned tree and
// reconciles every pair in place.
func (p *patientRun) alignStructures(ctx context.Context) error {
	if !p.plan.Aligns() {
		p.configSkipped(services.WithStage(ctx, stageAlign), stageAlign, "variant does not segment extended organs")
		return nil
	}
	return p.cached(ctx, stageAlign, p.layout.AlignedDir(), func(ctx context.Context, m *stagecache.Manifest) error {
		copies := make(map[string]map[organ.ID]string, 2)
		for _, modality := range []string{layout.CTDir, layout.CBCTDir} {
			name := stageSegmentCT
			if modality == layout.CBCTDir {
				name = stageSegmentCBCT
			}
			rec, err := completed(name, p.layout.SegDir(modality))
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Join(p.layout.AlignedDir(), modality), 0o755); err != nil {
				return fmt.Errorf("create aligned dir: %w", err)
			}
			copies[modality] = make(map[organ.ID]string)
			for _, a := range rec.Filter(kindMask) {
				dst := p.layout.Aligned(modality, a.Organ)
				if err := fileutil.CopyFile(a.Path, dst); err != nil {
					return fmt.Errorf("copy %s: %w", a.Path, err)
				}
				copies[modality][a.Organ] = dst
				m.Add(stagecache.Artifact{Organ: a.Organ, Config: modality, Kind: kindMask, Path: dst})
			}
		}

		var pairs []align.Pair
		for _, id := range p.plan.ROIs(p.patient.InCohort) {
			ct, okCT := copies[layout.CTDir][id]
			cbct, okCBCT := copies[layout.CBCTDir][id]
			if !okCT || !okCBCT {
				continue
			}
			pairs = append(pairs, align.Pair{Organ: id, CT: ct, CBCT: cbct})
		}
		outcomes, err := p.aligner.Run(ctx, pairs, p.plan.CropColon && p.cfg.Alignment.CropColon)
		applied := 0
		for _, o := range outcomes {
			if o.Applied {
				applied++
			}
		}
		p.stageLogger(ctx).Debug("alignment pass finished",
			logging.Int("pairs", len(pairs)),
			logging.Int("applied", applied),
		)
		return err
	})
}

func (p *patientRun) distanceMaps(ctx context.Context) error {
	return p.cached(ctx, stageDistanceMaps, p.layout.DistanceMapsDir(), func(ctx context.Context, m *stagecache.Manifest) error {
		inputs, err := p.masks(layout.CBCTDir)
		if err != nil {
			return err
		}
		inputs = append(inputs, p.groundTruthInputs(ctx, layout.CBCTDir)...)
		for _, a := range inputs {
			out := p.layout.DistanceMap(a.Organ)
			if err := p.imaging.DistanceMap(ctx, a.Path, out); err != nil {
				return err
			}
			m.Add(stagecache.Artifact{Organ: a.Organ, Kind: kindDistanceMap, Path: out})
		}
		return nil
	})
}

func (p *patientRun) contours(ctx context.Context) error {
	return p.cached(ctx, stageContours, p.layout.ContoursDir(), func(ctx context.Context, m *stagecache.Manifest) error {
		inputs, err := p.masks(layout.CTDir)
		if err != nil {
			return err
		}
		inputs = append(inputs, p.groundTruthInputs(ctx, layout.CTDir)...)
		for _, a := range inputs {
			out := p.layout.Contour(a.Organ)
			if err := p.imaging.Convert(ctx, "input-ss-img", a.Path, "output-cxt", out); err != nil {
				return err
			}
			m.Add(stagecache.Artifact{Organ: a.Organ, Kind: kindContour, Path: out})
		}
		return nil
	})
}

// groundTruthInputs returns the manual contours a shape stage consumes,
// or none when they are unavailable or owned by the shared variant.
func (p *patientRun) groundTruthInputs(ctx context.Context, modality string) []stagecache.Artifact {
	if !p.groundTruthAvailable() {
		return nil
	}
	if p.plan.Shared() {
		p.configSkipped(ctx, registration.GT, "ground-truth inputs are computed by variant "+p.plan.SharedFrom)
		return nil
	}
	return p.groundTruthContours(modality)
}

func (p *patientRun) points(ctx context.Context) error {
	return p.cached(ctx, stagePoints, p.layout.PointsDir(), func(ctx context.Context, m *stagecache.Manifest) error {
		rec, err := completed(stageContours, p.layout.ContoursDir())
		if err != nil {
			return err
		}
		for _, a := range rec.Filter(kindContour) {
			fcsv, csv := p.layout.Points(a.Organ), p.layout.VoxelPoints(a.Organ)
			count, err := pointset.ConvertCXT(a.Path, fcsv, csv)
			if err != nil {
				return err
			}
			p.stageLogger(ctx).Debug("sampled contour points",
				logging.String("organ", a.Organ.ClassName()),
				logging.Int("points", count),
			)
			m.Add(stagecache.Artifact{Organ: a.Organ, Kind: kindPoints, Path: fcsv})
			m.Add(stagecache.Artifact{Organ: a.Organ, Kind: kindVoxels, Path: csv})
		}
		return nil
	})
}

func (p *patientRun) params(ctx context.Context) error {
	return p.cached(ctx, stageParams, p.layout.ParamsDir(), func(ctx context.Context, m *stagecache.Manifest) error {
		moving, err := p.movingImage()
		if err != nil {
			return err
		}
		pointsRec, err := completed(stagePoints, p.layout.PointsDir())
		if err != nil {
			return err
		}
		dmapRec, err := completed(stageDistanceMaps, p.layout.DistanceMapsDir())
		if err != nil {
			return err
		}
		correspond := func(ids organ.Set) ([]registration.Pair, []string) {
			var pairs []registration.Pair
			var missing []string
			for _, id := range ids {
				fixed, okFixed := pointsRec.Lookup(kindPoints, id)
				mov, okMoving := dmapRec.Lookup(kindDistanceMap, id)
				if !okFixed || !okMoving {
					missing = append(missing, id.ClassName())
					continue
				}
				pairs = append(pairs, registration.Pair{Fixed: fixed.Path, Moving: mov.Path, Organ: id})
			}
			return pairs, missing
		}

		gt := p.groundTruthAvailable()
		for _, cfg := range registration.Configs() {
			var organs []registration.Pair
			switch {
			case p.plan.Shared() && registration.GroundTruthDependent(cfg):
				p.configSkipped(ctx, cfg, "reused from variant "+p.plan.SharedFrom)
				continue
			case registration.NeedsGroundTruth(cfg) && !gt:
				p.configSkipped(ctx, cfg, "patient has no ground-truth contours")
				continue
			case cfg == registration.NOPD:
			default:
				ids := p.plan.ROIs(p.patient.InCohort)
				if cfg == registration.GTBladderOnly {
					ids = organ.Set{organ.GT(organ.GTBladder)}
				} else if cfg == registration.GT {
					ids = organ.GroundTruth()
				}
				pairs, missing := correspond(ids)
				if len(missing) > 0 || len(pairs) == 0 {
					logging.WarnWithContext(p.stageLogger(ctx), "registration configuration incomplete", "config_skipped",
						logging.String("config", cfg),
						logging.Any("missing", missing),
						logging.String(logging.FieldImpact, "configuration is not registered for this patient"),
						logging.String(logging.FieldErrorHint, "rerun the dmap, cxt, and fcsv steps"),
					)
					continue
				}
				organs = pairs
			}

			set := registration.New(cfg, p.layout.CT(), moving, organs,
				p.cfg.Registration.Lambda, p.cfg.Registration.DefaultValue,
				p.layout.Registered(cfg), p.layout.Field(cfg))
			out := p.layout.Params(cfg)
			if err := set.Write(out); err != nil {
				return err
			}
			m.Add(stagecache.Artifact{Config: cfg, Kind: kindParams, Path: out})
		}
		return nil
	})
}

// movingImage is the intensity volume registered onto the CT.
func (p *patientRun) movingImage() (string, error) {
	if p.plan.AltCTEverywhere {
		return p.layout.GeneratedCT(), nil
	}
	rec, err := completed(stageNormalize, p.layout.NormalizedDir())
	if err != nil {
		return "", err
	}
	vols := rec.Filter(kindVolume)
	if len(vols) == 0 {
		return "", services.Wrap(services.ErrNotFound, stageParams, "moving", "normalized volume missing from manifest", nil)
	}
	return vols[0].Path, nil
}

// register runs every configuration that has a parameter file. A failed
// configuration is noted on the record and leaves no field; the others
// proceed and the stage completes.
func (p *patientRun) register(ctx context.Context) error {
	return p.cached(ctx, stageRegister, p.layout.RegisteredDir(), func(ctx context.Context, m *stagecache.Manifest) error {
		rec, err := completed(stageParams, p.layout.ParamsDir())
		if err != nil {
			return err
		}
		for _, cfg := range registration.Configs() {
			params, ok := rec.ConfigArtifact(kindParams, cfg)
			if !ok {
				p.configSkipped(ctx, cfg, "no parameter file")
				continue
			}
			err := p.imaging.Register(ctx, params.Path)
			field := p.layout.Field(cfg)
			if err == nil && !fileutil.NonEmptyFile(field) {
				err = services.Wrap(services.ErrExternalTool, stageRegister, cfg, "no displacement field written", nil)
			}
			if err != nil {
				logging.WarnWithContext(p.stageLogger(ctx), "registration failed", "registration_failed",
					logging.String("config", cfg),
					logging.Error(err),
					logging.String(logging.FieldImpact, "dependent warps and scores fall back to sentinels"),
					logging.String(logging.FieldErrorHint, "inspect the plastimatch output at debug level; rerun with --force"),
				)
				m.Fail(cfg, err)
				continue
			}
			m.Add(stagecache.Artifact{Config: cfg, Kind: kindField, Path: field})
			m.Add(stagecache.Artifact{Config: cfg, Kind: kindRegistered, Path: p.layout.Registered(cfg)})
		}
		return nil
	}, p.layout.FieldsDir())
}

// warp applies every available field to the CBCT ground-truth contours and
// fiducials, and the segmentation-guided field to the CBCT structures.
func (p *patientRun) warp(ctx context.Context) error {
	return p.cached(ctx, stageWarp, p.layout.WarpsDir(), func(ctx context.Context, m *stagecache.Manifest) error {
		rec, err := completed(stageRegister, p.layout.RegisteredDir())
		if err != nil {
			return err
		}
		fields := make(map[string]string, 4)
		for _, a := range rec.Filter(kindField) {
			fields[a.Config] = a.Path
		}

		apply := func(input string, kind plastimatch.OutputKind, out, cfg string, artifact stagecache.Artifact) {
			if err := p.imaging.Warp(ctx, input, kind, out, fields[cfg]); err != nil {
				logging.WarnWithContext(p.stageLogger(ctx), "warp failed", "warp_failed",
					logging.String("config", cfg),
					logging.String("input", input),
					logging.Error(err),
					logging.String(logging.FieldImpact, "score cell falls back to a sentinel"),
				)
				m.Fail(cfg+" "+filepath.Base(input), err)
				return
			}
			artifact.Config = cfg
			artifact.Path = out
			m.Add(artifact)
		}

		if p.groundTruthAvailable() {
			for _, contour := range p.groundTruthContours(layout.CBCTDir) {
				for _, cfg := range registration.Configs() {
					if _, ok := fields[cfg]; !ok {
						continue
					}
					apply(contour.Path, plastimatch.OutputImage, p.layout.WarpedSegment(cfg, contour.Organ.Name), cfg,
						stagecache.Artifact{Organ: contour.Organ, Kind: kindWarpedMask})
				}
			}
		}

		fiducials := p.layout.Fiducials(layout.CBCTDir)
		if fileutil.NonEmptyFile(fiducials) {
			for _, cfg := range registration.Configs() {
				if _, ok := fields[cfg]; !ok {
					continue
				}
				apply(fiducials, plastimatch.OutputPointset, p.layout.WarpedFiducials(cfg), cfg,
					stagecache.Artifact{Kind: kindWarpedPoints})
			}
		}

		if _, ok := fields[registration.TS]; ok {
			structures, err := p.masks(layout.CBCTDir)
			if err != nil {
				return err
			}
			for _, a := range structures {
				apply(a.Path, plastimatch.OutputImage, p.layout.WarpedSegment(registration.TS, a.Organ.Name), registration.TS,
					stagecache.Artifact{Organ: a.Organ, Kind: kindWarpedMask})
			}
		} else {
			p.configSkipped(ctx, registration.TS, "no segmentation-guided field")
		}
		return nil
	})
}
