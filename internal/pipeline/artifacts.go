package pipeline

import (
	"fmt"
	"os"

	"regeval/internal/layout"
	"regeval/internal/logging"
	"regeval/internal/organ"
	"regeval/internal/services"
	"regeval/internal/stagecache"
)

// Stage names persisted in status records.
const (
	stageNormalize    = "normalize"
	stageSegmentCT    = "segment_ct"
	stageSegmentCBCT  = "segment_cbct"
	stageAlign        = "align"
	stageDistanceMaps = "dmap"
	stageContours     = "cxt"
	stagePoints       = "fcsv"
	stageParams       = "params"
	stageRegister     = "register"
	stageWarp         = "warp"
	stageScore        = "score"
)

// Artifact kinds recorded in stage manifests.
const (
	kindVolume       = "volume"
	kindSeries       = "series"
	kindMask         = "mask"
	kindDistanceMap  = "dmap"
	kindContour      = "cxt"
	kindPoints       = "fcsv"
	kindVoxels       = "voxels"
	kindParams       = "params"
	kindRegistered   = "registered"
	kindField        = "field"
	kindWarpedMask   = "warped_mask"
	kindWarpedPoints = "warped_points"
)

// StageDir pairs a persisted stage name with the directory holding its record.
type StageDir struct {
	Name string
	Dir  string
}

// StageDirs lists every cached stage of a layout in run order.
func StageDirs(l layout.Layout) []StageDir {
	return []StageDir{
		{stageNormalize, l.NormalizedDir()},
		{stageSegmentCT, l.SegDir(layout.CTDir)},
		{stageSegmentCBCT, l.SegDir(layout.CBCTDir)},
		{stageAlign, l.AlignedDir()},
		{stageDistanceMaps, l.DistanceMapsDir()},
		{stageContours, l.ContoursDir()},
		{stagePoints, l.PointsDir()},
		{stageParams, l.ParamsDir()},
		{stageRegister, l.RegisteredDir()},
		{stageWarp, l.WarpsDir()},
	}
}

// completed loads the record of a stage that must have finished.
func completed(name, dir string) (stagecache.Record, error) {
	rec, ok, err := stagecache.Load(dir)
	if err != nil {
		return stagecache.Record{}, err
	}
	if !ok || rec.Status != stagecache.StatusComplete {
		return stagecache.Record{}, services.Wrap(services.ErrNotFound, name, "load",
			fmt.Sprintf("stage has not completed (%s)", dir), nil)
	}
	return rec, nil
}

// masks returns the structure masks of a modality, preferring the aligned
// copies when the variant aligns.
func (p *patientRun) masks(modality string) ([]stagecache.Artifact, error) {
	if p.plan.Aligns() {
		rec, err := completed(stageAlign, p.layout.AlignedDir())
		if err != nil {
			return nil, err
		}
		var out []stagecache.Artifact
		for _, a := range rec.Filter(kindMask) {
			if a.Config == modality {
				out = append(out, a)
			}
		}
		return out, nil
	}
	name := stageSegmentCT
	if modality == layout.CBCTDir {
		name = stageSegmentCBCT
	}
	rec, err := completed(name, p.layout.SegDir(modality))
	if err != nil {
		return nil, err
	}
	return rec.Filter(kindMask), nil
}

// groundTruthAvailable reports whether the patient's manual contours are
// usable: cohort membership and a CT contour directory.
func (p *patientRun) groundTruthAvailable() bool {
	if !p.patient.InCohort {
		return false
	}
	info, err := os.Stat(p.layout.GTContours(layout.CTDir))
	return err == nil && info.IsDir()
}

// groundTruthContours returns the existing manual contours of a modality.
func (p *patientRun) groundTruthContours(modality string) []stagecache.Artifact {
	var out []stagecache.Artifact
	for _, id := range organ.GroundTruth() {
		path := p.layout.GTContour(modality, id.Name)
		if _, err := os.Stat(path); err != nil {
			p.logger.Warn("ground-truth contour missing",
				logging.String(logging.FieldEventType, "input_missing"),
				logging.String("organ", id.ClassName()),
				logging.String("path", path),
			)
			continue
		}
		out = append(out, stagecache.Artifact{Organ: id, Kind: kindMask, Config: modality, Path: path})
	}
	return out
}
