package pointset

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"regeval/internal/fileutil"
	"regeval/internal/services"
)

const (
	offsetLine   = 7
	spacingLine  = 9
	contourStart = 28
	// SampleStride keeps every Nth vertex of each contour.
	SampleStride = 25
)

// Contours is the geometry and vertex data read from a CXT structure file.
type Contours struct {
	Offset  r3.Vec
	Spacing r3.Vec
	// Lines holds each contour's vertices in file order.
	Lines [][]r3.Vec
}

// ParseCXT reads a CXT file.
func ParseCXT(r io.Reader) (Contours, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var (
		out  Contours
		line int
	)
	for scanner.Scan() {
		text := scanner.Text()
		switch {
		case line == offsetLine:
			vec, err := headerVec(text)
			if err != nil {
				return Contours{}, fmt.Errorf("cxt offset: %w", err)
			}
			out.Offset = vec
		case line == spacingLine:
			vec, err := headerVec(text)
			if err != nil {
				return Contours{}, fmt.Errorf("cxt spacing: %w", err)
			}
			out.Spacing = vec
		case line >= contourStart:
			vertices, err := parseContour(text)
			if err != nil {
				return Contours{}, fmt.Errorf("cxt line %d: %w", line+1, err)
			}
			if len(vertices) > 0 {
				out.Lines = append(out.Lines, vertices)
			}
		}
		line++
	}
	if err := scanner.Err(); err != nil {
		return Contours{}, err
	}
	if line <= spacingLine {
		return Contours{}, services.Wrap(services.ErrValidation, "cxt", "parse", "header truncated", nil)
	}
	if out.Spacing.X == 0 || out.Spacing.Y == 0 || out.Spacing.Z == 0 {
		return Contours{}, services.Wrap(services.ErrValidation, "cxt", "parse", "spacing must be nonzero", nil)
	}
	return out, nil
}

func headerVec(text string) (r3.Vec, error) {
	fields := strings.Fields(text)
	if len(fields) < 4 {
		return r3.Vec{}, fmt.Errorf("expected 3 values in %q", text)
	}
	var values [3]float64
	for i := range values {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return r3.Vec{}, err
		}
		values[i] = v
	}
	return r3.Vec{X: values[0], Y: values[1], Z: values[2]}, nil
}

// parseContour reads the backslash-separated vertex list that follows the
// last '|' of a contour line.
func parseContour(text string) ([]r3.Vec, error) {
	if i := strings.LastIndexByte(text, '|'); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	fields := strings.Split(text, `\`)
	if len(fields)%3 != 0 {
		return nil, fmt.Errorf("vertex list has %d values", len(fields))
	}
	vertices := make([]r3.Vec, 0, len(fields)/3)
	for i := 0; i < len(fields); i += 3 {
		var c [3]float64
		for j := range c {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[i+j]), 64)
			if err != nil {
				return nil, err
			}
			c[j] = v
		}
		vertices = append(vertices, r3.Vec{X: c[0], Y: c[1], Z: c[2]})
	}
	return vertices, nil
}

// Sample keeps every SampleStride-th vertex of each contour, mapping it from
// the structure's LPS frame to RAS by negating x and y.
func (c Contours) Sample() []r3.Vec {
	var points []r3.Vec
	for _, line := range c.Lines {
		for i := 0; i < len(line); i += SampleStride {
			v := line[i]
			points = append(points, r3.Vec{X: -v.X, Y: -v.Y, Z: v.Z})
		}
	}
	return points
}

// VoxelIndex maps a sampled point to the nearest voxel of the contour grid.
func (c Contours) VoxelIndex(p r3.Vec) [3]int {
	return [3]int{
		int(math.Round((p.X - c.Offset.X) / c.Spacing.X)),
		int(math.Round((p.Y - c.Offset.Y) / c.Spacing.Y)),
		int(math.Round((p.Z - c.Offset.Z) / c.Spacing.Z)),
	}
}

// ConvertCXT samples a CXT file into a fiducial list and a voxel-index CSV.
// It returns the number of points written.
func ConvertCXT(cxtPath, fcsvPath, csvPath string) (int, error) {
	f, err := os.Open(cxtPath)
	if err != nil {
		return 0, services.Wrap(services.ErrNotFound, "fcsv", "open", cxtPath, err)
	}
	defer f.Close()

	contours, err := ParseCXT(f)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "fcsv", "parse", cxtPath, err)
	}
	points := contours.Sample()

	var fcsv, csv strings.Builder
	writeHeader(&fcsv, len(points))
	for i, p := range points {
		fmt.Fprintf(&fcsv, "%d, %s, %s, %s, 1, 1\n", i, formatCoord(p.X), formatCoord(p.Y), formatCoord(p.Z))
		idx := contours.VoxelIndex(p)
		fmt.Fprintf(&csv, "%d, %d, %d\n", idx[0], idx[1], idx[2])
	}

	if err := fileutil.WriteFileAtomic(fcsvPath, []byte(fcsv.String()), 0o644); err != nil {
		return 0, services.Wrap(services.ErrTransient, "fcsv", "write", fcsvPath, err)
	}
	if err := fileutil.WriteFileAtomic(csvPath, []byte(csv.String()), 0o644); err != nil {
		return 0, services.Wrap(services.ErrTransient, "fcsv", "write", csvPath, err)
	}
	return len(points), nil
}

func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
