package scoring

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"regeval/internal/fileutil"
)

// Row is one patient's cells keyed by column.
type Row struct {
	Keys  []string
	Cells map[string]string
}

// Table is a rectangular result table. Every row carries a value for every
// column; missing values are filled with the metric's sentinel.
type Table struct {
	Metric  Metric
	KeyCols []string
	Columns []string
	rows    []Row
}

// NewTable constructs an empty patient-keyed table.
func NewTable(metric Metric, columns []string) *Table {
	return &Table{
		Metric:  metric,
		KeyCols: []string{PatientKey},
		Columns: append([]string(nil), columns...),
	}
}

// Add appends a row. Cells for unknown columns are ignored and missing
// cells become sentinels.
func (t *Table) Add(keys []string, cells map[string]string) {
	row := Row{Keys: append([]string(nil), keys...), Cells: make(map[string]string, len(t.Columns))}
	for _, col := range t.Columns {
		value, ok := cells[col]
		if !ok || strings.TrimSpace(value) == "" {
			value = t.Metric.Sentinel()
		}
		row.Cells[col] = value
	}
	t.rows = append(t.rows, row)
}

// Rows returns the rows in insertion order.
func (t *Table) Rows() []Row {
	return append([]Row(nil), t.rows...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Header returns key columns followed by value columns.
func (t *Table) Header() []string {
	return append(append([]string(nil), t.KeyCols...), t.Columns...)
}

// Records returns the table body as string slices in header order.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.rows))
	for _, row := range t.rows {
		record := make([]string, 0, len(t.KeyCols)+len(t.Columns))
		record = append(record, row.Keys...)
		for _, col := range t.Columns {
			record = append(record, row.Cells[col])
		}
		out = append(out, record)
	}
	return out
}

// RenderCSV renders the table as CSV.
func (t *Table) RenderCSV() string {
	tw := table.NewWriter()
	header := make(table.Row, 0, len(t.KeyCols)+len(t.Columns))
	for _, col := range t.Header() {
		header = append(header, col)
	}
	tw.AppendHeader(header)
	for _, record := range t.Records() {
		row := make(table.Row, 0, len(record))
		for _, cell := range record {
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}
	out := tw.RenderCSV()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

// WriteFile writes the table as <dir>/<metric>.csv and returns the path.
func (t *Table) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure results dir: %w", err)
	}
	path := filepath.Join(dir, t.Metric.FileName())
	if err := fileutil.WriteFileAtomic(path, []byte(t.RenderCSV()), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Merge concatenates per-variant tables of one metric into a long table
// keyed by variant and patient. Columns are the union in first-seen order;
// cells a variant never produced are sentinels.
func Merge(metric Metric, variants []string, tables map[string]*Table) *Table {
	var columns []string
	seen := make(map[string]struct{})
	for _, tag := range variants {
		tbl, ok := tables[tag]
		if !ok {
			continue
		}
		for _, col := range tbl.Columns {
			if _, dup := seen[col]; dup {
				continue
			}
			seen[col] = struct{}{}
			columns = append(columns, col)
		}
	}
	merged := &Table{
		Metric:  metric,
		KeyCols: []string{VariantKey, PatientKey},
		Columns: columns,
	}
	for _, tag := range variants {
		tbl, ok := tables[tag]
		if !ok {
			continue
		}
		for _, row := range tbl.rows {
			keys := append([]string{tag}, row.Keys...)
			merged.Add(keys, row.Cells)
		}
	}
	return merged
}
