package plastimatch

import (
	"errors"
	"strconv"
	"strings"
)

const hausdorffMarker = "Percent (0.95) Hausdorff distance (boundary)"

// Overlap is the parsed output of a dice comparison. Values keep the tool's
// formatting so tables reproduce it exactly.
type Overlap struct {
	Dice        string
	Hausdorff95 string
}

// DiceValue parses the Dice coefficient.
func (o Overlap) DiceValue() (float64, error) {
	return strconv.ParseFloat(o.Dice, 64)
}

// Hausdorff95Value parses the 95th percentile boundary Hausdorff distance.
func (o Overlap) Hausdorff95Value() (float64, error) {
	return strconv.ParseFloat(o.Hausdorff95, 64)
}

// ParseOverlap extracts the Dice line (value after ':') and the 95th
// percentile boundary Hausdorff line (value after '=').
func ParseOverlap(lines []string) (Overlap, error) {
	var out Overlap
	for _, line := range lines {
		switch {
		case out.Dice == "" && strings.Contains(line, "DICE"):
			if _, value, ok := strings.Cut(line, ":"); ok {
				out.Dice = strings.TrimSpace(value)
			}
		case out.Hausdorff95 == "" && strings.Contains(line, hausdorffMarker):
			if _, value, ok := strings.Cut(line, "="); ok {
				out.Hausdorff95 = strings.TrimSpace(value)
			}
		}
	}
	if out.Dice == "" {
		return Overlap{}, errors.New("dice line not found")
	}
	if out.Hausdorff95 == "" {
		return Overlap{}, errors.New("hausdorff line not found")
	}
	return out, nil
}
