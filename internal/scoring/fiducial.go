package scoring

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"regeval/internal/services"
)

// FiducialSeparation is the mean Euclidean distance in mm between
// corresponding markers of two sets.
func FiducialSeparation(fixed, moving []r3.Vec) (float64, error) {
	if len(fixed) == 0 {
		return 0, services.Wrap(services.ErrValidation, "fiducial", "separation", "no markers", nil)
	}
	if len(fixed) != len(moving) {
		return 0, services.Wrap(services.ErrValidation, "fiducial", "separation",
			fmt.Sprintf("marker count mismatch: %d vs %d", len(fixed), len(moving)), nil)
	}
	distances := make([]float64, len(fixed))
	for i := range fixed {
		distances[i] = r3.Norm(r3.Sub(moving[i], fixed[i]))
	}
	return stat.Mean(distances, nil), nil
}

// FormatSeparation renders a separation for the fiducial table.
func FormatSeparation(mm float64) string {
	return strconv.FormatFloat(mm, 'f', -1, 64)
}
