package scoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"regeval/internal/fileutil"
)

// PatientScores is every cell one patient contributes under one variant.
type PatientScores struct {
	Patient   string            `json:"patient"`
	Dice      map[string]string `json:"dice,omitempty"`
	Hausdorff map[string]string `json:"hd,omitempty"`
	Fiducial  map[string]string `json:"fd_sep,omitempty"`
}

// NewPatientScores returns an empty record.
func NewPatientScores(patient string) PatientScores {
	return PatientScores{
		Patient:   patient,
		Dice:      map[string]string{},
		Hausdorff: map[string]string{},
		Fiducial:  map[string]string{},
	}
}

// Cells returns the cells of one metric.
func (p PatientScores) Cells(m Metric) map[string]string {
	switch m {
	case Dice:
		return p.Dice
	case Hausdorff:
		return p.Hausdorff
	default:
		return p.Fiducial
	}
}

// SaveScores writes a patient's record atomically.
func SaveScores(path string, scores PatientScores) error {
	payload, err := json.MarshalIndent(scores, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}
	return fileutil.WriteFileAtomic(path, payload, 0o644)
}

// LoadScores reads a patient's record.
func LoadScores(path string) (PatientScores, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return PatientScores{}, err
	}
	var scores PatientScores
	if err := json.Unmarshal(payload, &scores); err != nil {
		return PatientScores{}, fmt.Errorf("decode scores %s: %w", path, err)
	}
	return scores, nil
}

// Aggregator owns the three tables of one variant for the duration of a run.
type Aggregator struct {
	Variant string
	tables  map[Metric]*Table
}

// NewAggregator creates empty tables for a variant.
func NewAggregator(variant string, extended bool) *Aggregator {
	tables := make(map[Metric]*Table, 3)
	for _, m := range Metrics() {
		tables[m] = NewTable(m, Columns(m, extended))
	}
	return &Aggregator{Variant: variant, tables: tables}
}

// Add appends one row per table for the patient.
func (a *Aggregator) Add(scores PatientScores) {
	for _, m := range Metrics() {
		a.tables[m].Add([]string{scores.Patient}, scores.Cells(m))
	}
}

// Table returns the table of a metric.
func (a *Aggregator) Table(m Metric) *Table {
	return a.tables[m]
}

// Write writes the variant's tables under <dir>/<variant>/ and returns the paths.
func (a *Aggregator) Write(dir string) ([]string, error) {
	target := filepath.Join(dir, a.Variant)
	paths := make([]string, 0, len(a.tables))
	for _, m := range Metrics() {
		path, err := a.tables[m].WriteFile(target)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteMerged writes a merged table as <dir>/merged_<metric>.csv.
func WriteMerged(dir string, merged *Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure results dir: %w", err)
	}
	path := filepath.Join(dir, "merged_"+merged.Metric.FileName())
	if err := fileutil.WriteFileAtomic(path, []byte(merged.RenderCSV()), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
