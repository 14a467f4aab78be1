package layout

import (
	"path/filepath"

	"regeval/internal/organ"
)

// Patient-level input directories.
const (
	CTDir          = "CT"
	CBCTDir        = "CBCT"
	GeneratedCTDir = "GENERATED_CT"
	GTContoursDir  = "GT_contours"
	FiducialsDir   = "FDMs"
)

// Per-variant artifact directories.
const (
	NormalizedDir    = "LT_CBCT"
	CBCTSegDir       = "LT_CBCT_seg"
	CTSegDir         = "CT_seg"
	AlignedDir       = "aligned_seg"
	DistanceMapsDir  = "dmaps"
	ContoursDir      = "cxts"
	PointsDir        = "fcsvs"
	ParamsDir        = "register_params"
	RegisteredDir    = "registered_volumes"
	FieldsDir        = "VFs"
	WarpsDir         = "warps"
	WarpedSegDir     = "seg"
	WarpedPointsDir  = "fcsvs"
	ScoresDir        = "scores"
	FieldPrefix      = "VF_"
	WarpPrefix       = "W_"
	NormalizedVolume = "LT_CBCT.nrrd"
	NormalizedDICOM  = "dicom"
)

// Layout resolves every path one patient uses under one variant.
type Layout struct {
	PatientDir string
	Number     string
	Tag        string
}

// New returns the layout for a patient directory under a variant tag.
func New(patientDir, number, tag string) Layout {
	return Layout{PatientDir: patientDir, Number: number, Tag: tag}
}

// ForVariant returns the same patient's layout under another variant.
func (l Layout) ForVariant(tag string) Layout {
	return New(l.PatientDir, l.Number, tag)
}

// EvalDir is the root of the variant's artifact tree.
func (l Layout) EvalDir() string {
	return filepath.Join(l.PatientDir, "eval_"+l.Tag)
}

func (l Layout) eval(parts ...string) string {
	return filepath.Join(append([]string{l.EvalDir()}, parts...)...)
}

// CT is the planning CT series directory.
func (l Layout) CT() string { return filepath.Join(l.PatientDir, CTDir) }

// CBCT is the raw CBCT series directory.
func (l Layout) CBCT() string { return filepath.Join(l.PatientDir, CBCTDir) }

// GeneratedCT is the synthetic CT derived from the CBCT.
func (l Layout) GeneratedCT() string { return filepath.Join(l.PatientDir, GeneratedCTDir) }

// GTContours is the directory of manually drawn contours for a modality
// (CTDir or CBCTDir).
func (l Layout) GTContours(modality string) string {
	return filepath.Join(l.PatientDir, GTContoursDir, modality)
}

// GTContour is one ground-truth contour volume.
func (l Layout) GTContour(modality, name string) string {
	return filepath.Join(l.GTContours(modality), name+".mha")
}

// Fiducials is the fiducial marker file for a modality.
func (l Layout) Fiducials(modality string) string {
	return filepath.Join(l.PatientDir, FiducialsDir, l.FiducialsName(modality))
}

// FiducialsName is the base name of a modality's fiducial file.
func (l Layout) FiducialsName(modality string) string {
	return l.Number + "-" + modality + "-fdm.fcsv"
}

// NormalizedDir holds the intensity-normalized CBCT.
func (l Layout) NormalizedDir() string { return l.eval(NormalizedDir) }

// NormalizedVolume is the normalized CBCT volume file.
func (l Layout) NormalizedVolume() string { return l.eval(NormalizedDir, NormalizedVolume) }

// NormalizedSeries is the normalized CBCT converted to a DICOM series.
func (l Layout) NormalizedSeries() string { return l.eval(NormalizedDir, NormalizedDICOM) }

// SegDir holds the segmentation model output for a modality.
func (l Layout) SegDir(modality string) string {
	if modality == CBCTDir {
		return l.eval(CBCTSegDir)
	}
	return l.eval(CTSegDir)
}

// Segment is one structure produced by the segmentation model.
func (l Layout) Segment(modality string, id organ.ID) string {
	return filepath.Join(l.SegDir(modality), id.Name+".nrrd")
}

// AlignedDir holds the cross-modality aligned copies of the segmentations.
func (l Layout) AlignedDir() string { return l.eval(AlignedDir) }

// Aligned is one aligned structure for a modality.
func (l Layout) Aligned(modality string, id organ.ID) string {
	return l.eval(AlignedDir, modality, id.Name+".nrrd")
}

// DistanceMapsDir holds distance maps of CBCT-side structures.
func (l Layout) DistanceMapsDir() string { return l.eval(DistanceMapsDir) }

// DistanceMap is the distance map of one structure.
func (l Layout) DistanceMap(id organ.ID) string {
	return l.eval(DistanceMapsDir, id.ClassName()+".mha")
}

// ContoursDir holds CT-side structure contours.
func (l Layout) ContoursDir() string { return l.eval(ContoursDir) }

// Contour is the CXT contour of one structure.
func (l Layout) Contour(id organ.ID) string {
	return l.eval(ContoursDir, id.ClassName()+".cxt")
}

// PointsDir holds point sets sampled from the contours.
func (l Layout) PointsDir() string { return l.eval(PointsDir) }

// Points is the FCSV point set of one structure.
func (l Layout) Points(id organ.ID) string {
	return l.eval(PointsDir, id.ClassName()+".fcsv")
}

// VoxelPoints is the voxel-index CSV of one structure.
func (l Layout) VoxelPoints(id organ.ID) string {
	return l.eval(PointsDir, id.ClassName()+".csv")
}

// ParamsDir holds registration parameter files.
func (l Layout) ParamsDir() string { return l.eval(ParamsDir) }

// Params is the parameter file of a registration configuration.
func (l Layout) Params(cfg string) string {
	return l.eval(ParamsDir, cfg+".txt")
}

// RegisteredDir holds registered volumes.
func (l Layout) RegisteredDir() string { return l.eval(RegisteredDir) }

// Registered is the registered volume of a configuration.
func (l Layout) Registered(cfg string) string {
	return l.eval(RegisteredDir, cfg+".nrrd")
}

// FieldsDir holds displacement fields.
func (l Layout) FieldsDir() string { return l.eval(FieldsDir) }

// Field is the displacement field of a configuration.
func (l Layout) Field(cfg string) string {
	return l.eval(FieldsDir, FieldPrefix+cfg+".nrrd")
}

// WarpsDir holds every warped output.
func (l Layout) WarpsDir() string { return l.eval(WarpsDir) }

// WarpedSegment is a structure warped with a configuration's field.
func (l Layout) WarpedSegment(cfg, name string) string {
	return l.eval(WarpsDir, WarpedSegDir, WarpName(cfg, name)+".mha")
}

// WarpedFiducials is the CBCT fiducial set warped with a configuration's field.
func (l Layout) WarpedFiducials(cfg string) string {
	return l.eval(WarpsDir, WarpedPointsDir, WarpName(cfg, l.FiducialsName(CBCTDir)))
}

// ScoresDir holds the per-patient score record.
func (l Layout) ScoresDir() string { return l.eval(ScoresDir) }

// Scores is the per-patient score record file.
func (l Layout) Scores() string { return l.eval(ScoresDir, "scores.json") }

// WarpName is the table column and file stem of a warped structure.
func WarpName(cfg, name string) string {
	return WarpPrefix + cfg + "_" + name
}
