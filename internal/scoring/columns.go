package scoring

import (
	"regeval/internal/layout"
	"regeval/internal/organ"
	"regeval/internal/registration"
)

// Table keys and sentinel cells.
const (
	PatientKey       = "Patient #"
	VariantKey       = "Variant"
	SentinelOverlap  = "0"
	SentinelFiducial = "inf"
)

// Metric names one result table.
type Metric string

const (
	Dice      Metric = "dice"
	Hausdorff Metric = "hd"
	Fiducial  Metric = "fd-sep"
)

// Metrics lists every table in output order.
func Metrics() []Metric {
	return []Metric{Dice, Hausdorff, Fiducial}
}

// FileName is the CSV file a metric's table is written to.
func (m Metric) FileName() string {
	return string(m) + ".csv"
}

// Sentinel is the cell value recorded when a comparison is unavailable.
func (m Metric) Sentinel() string {
	if m == Fiducial {
		return SentinelFiducial
	}
	return SentinelOverlap
}

// tableConfigs is the column order of the overlap tables.
var tableConfigs = []string{registration.GT, registration.GTBladderOnly, registration.NOPD, registration.TS}

// OverlapColumns lists the warped-structure columns of the Dice and
// Hausdorff tables: every ground-truth contour under every configuration,
// then every segmentation structure under the segmentation-guided field.
func OverlapColumns(extended bool) []string {
	columns := make([]string, 0, len(tableConfigs)*3+6)
	for _, cfg := range tableConfigs {
		for _, id := range organ.GroundTruth() {
			columns = append(columns, layout.WarpName(cfg, id.Name))
		}
	}
	for _, id := range organ.Universe(extended) {
		columns = append(columns, layout.WarpName(registration.TS, id.Name))
	}
	return columns
}

// FiducialColumns lists the configurations of the fiducial table.
func FiducialColumns() []string {
	return append([]string(nil), tableConfigs...)
}

// Columns returns the value columns of a metric's table.
func Columns(m Metric, extended bool) []string {
	if m == Fiducial {
		return FiducialColumns()
	}
	return OverlapColumns(extended)
}
