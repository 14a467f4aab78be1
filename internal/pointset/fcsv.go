package pointset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"regeval/internal/services"
)

func writeHeader(b *strings.Builder, count int) {
	fmt.Fprintf(b, "# numPoints = %d\n", count)
	b.WriteString(`# symbolScale = 5
# symbolType = 12
# visibility = 1
# textScale = 4.5
# color = 0.4,1,1
# selectedColor = 1,0.5,0.5
# opacity = 1
# ambient = 0
# diffuse = 1
# specular = 0
# power = 1
# locked = 0
# numberingScheme = 0
# columns = label,x,y,z,sel,vis
`)
}

// ReadFCSV returns the marker coordinates of a fiducial list in file order.
func ReadFCSV(path string) ([]r3.Vec, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "fcsv", "read", path, err)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	points, err := DecodeFCSV(f)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "fcsv", "read", path, err)
	}
	return points, nil
}

// DecodeFCSV parses fiducial rows, ignoring '#' comment lines. Columns 1-3
// hold x, y and z.
func DecodeFCSV(r io.Reader) ([]r3.Vec, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var points []r3.Vec
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 4 {
			return nil, fmt.Errorf("row %d: expected at least 4 columns, got %d", len(points)+1, len(record))
		}
		var c [3]float64
		for i := range c {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", len(points)+1, err)
			}
			c[i] = v
		}
		points = append(points, r3.Vec{X: c[0], Y: c[1], Z: c[2]})
	}
	return points, nil
}
