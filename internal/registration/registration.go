package registration

import (
	"fmt"
	"strconv"
	"strings"

	"regeval/internal/fileutil"
	"regeval/internal/organ"
	"regeval/internal/services"
)

// Named registration configurations, in run order.
const (
	NOPD          = "NOPD"
	TS            = "TS"
	GTBladderOnly = "GT_bladder_only"
	GT            = "GT"
)

// Configs lists every configuration in run order.
func Configs() []string {
	return []string{NOPD, TS, GTBladderOnly, GT}
}

// NeedsGroundTruth reports whether a configuration depends on manual contours.
func NeedsGroundTruth(cfg string) bool {
	return cfg == GTBladderOnly || cfg == GT
}

// GroundTruthDependent reports whether a configuration is owned by the
// shared variant when one is set.
func GroundTruthDependent(cfg string) bool {
	return cfg == NOPD || NeedsGroundTruth(cfg)
}

// Pair is one fixed/moving correspondence.
type Pair struct {
	Fixed  string
	Moving string
	// Organ is zero for the whole-image intensity pair.
	Organ organ.ID
}

// Stage is one multi-resolution B-spline stage.
type Stage struct {
	GridSpacing      [3]int
	CurvaturePenalty float64
	Resolution       [3]int
}

// DefaultStages returns the coarse-to-fine schedule.
func DefaultStages() []Stage {
	return []Stage{
		{GridSpacing: [3]int{100, 100, 100}, CurvaturePenalty: 100, Resolution: [3]int{6, 6, 2}},
		{GridSpacing: [3]int{80, 80, 80}, CurvaturePenalty: 10, Resolution: [3]int{4, 4, 1}},
		{GridSpacing: [3]int{60, 60, 60}, CurvaturePenalty: 10, Resolution: [3]int{3, 3, 1}},
	}
}

// ParameterSet is a complete registration job. The first pair is always the
// whole-image intensity pair; every later pair is an organ point-set to
// distance-map correspondence weighted by Lambda.
type ParameterSet struct {
	Name         string
	Pairs        []Pair
	Lambda       float64
	DefaultValue int
	ImageOut     string
	FieldOut     string
	Stages       []Stage
}

// New builds a parameter set whose first pair is fixed/moving intensity
// volumes, followed by the organ correspondences.
func New(name, fixed, moving string, organs []Pair, lambda float64, defaultValue int, imageOut, fieldOut string) ParameterSet {
	pairs := make([]Pair, 0, len(organs)+1)
	pairs = append(pairs, Pair{Fixed: fixed, Moving: moving})
	pairs = append(pairs, organs...)
	return ParameterSet{
		Name:         name,
		Pairs:        pairs,
		Lambda:       lambda,
		DefaultValue: defaultValue,
		ImageOut:     imageOut,
		FieldOut:     fieldOut,
		Stages:       DefaultStages(),
	}
}

// Validate checks the structural invariants.
func (p ParameterSet) Validate() error {
	if len(p.Pairs) == 0 {
		return services.Wrap(services.ErrValidation, "params", p.Name, "no correspondence pairs", nil)
	}
	if !p.Pairs[0].Organ.IsZero() {
		return services.Wrap(services.ErrValidation, "params", p.Name, "first pair must be the intensity pair", nil)
	}
	for i, pair := range p.Pairs {
		if pair.Fixed == "" || pair.Moving == "" {
			return services.Wrap(services.ErrValidation, "params", p.Name, fmt.Sprintf("pair %d has an empty path", i), nil)
		}
		if i > 0 && pair.Organ.IsZero() {
			return services.Wrap(services.ErrValidation, "params", p.Name, fmt.Sprintf("pair %d has no structure", i), nil)
		}
	}
	if p.Lambda <= 0 {
		return services.Wrap(services.ErrValidation, "params", p.Name, "lambda must be positive", nil)
	}
	if p.ImageOut == "" || p.FieldOut == "" {
		return services.Wrap(services.ErrValidation, "params", p.Name, "output paths must be set", nil)
	}
	if len(p.Stages) == 0 {
		return services.Wrap(services.ErrValidation, "params", p.Name, "no optimisation stages", nil)
	}
	return nil
}

// Render produces the plastimatch command file.
func (p ParameterSet) Render() string {
	var b strings.Builder
	b.WriteString("[GLOBAL]\n")
	for i, pair := range p.Pairs {
		fmt.Fprintf(&b, "fixed[%d]=%s\nmoving[%d]=%s\n\n", i, pair.Fixed, i, pair.Moving)
	}
	fmt.Fprintf(&b, "default_value=%d\nimg_out=%s\nvf_out=%s\n\n", p.DefaultValue, p.ImageOut, p.FieldOut)

	b.WriteString("[STAGE]\n")
	for i := range p.Pairs {
		metric := "pd"
		if i == 0 {
			metric = "mse"
		}
		fmt.Fprintf(&b, "metric[%d]=%s\n", i, metric)
	}
	b.WriteString("\n")
	for i := range p.Pairs {
		weight := formatNumber(p.Lambda)
		if i == 0 {
			weight = "1"
		}
		fmt.Fprintf(&b, "metric_lambda[%d]=%s\n", i, weight)
	}
	b.WriteString("\n")

	for i, stage := range p.Stages {
		if i > 0 {
			b.WriteString("\n[STAGE]\n")
		}
		if i == 0 {
			b.WriteString("xform=bspline\nimpl=plastimatch\n")
		}
		fmt.Fprintf(&b, "grid_spac=%s\n", joinInts(stage.GridSpacing))
		fmt.Fprintf(&b, "curvature_penalty=%s\n", formatNumber(stage.CurvaturePenalty))
		fmt.Fprintf(&b, "res=%s\n", joinInts(stage.Resolution))
		if i == 0 {
			b.WriteString("flavor=p\n")
		}
	}
	return b.String()
}

// Write validates and atomically writes the command file.
func (p ParameterSet) Write(path string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, []byte(p.Render()), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "params", p.Name, "write "+path, err)
	}
	return nil
}

func joinInts(values [3]int) string {
	return fmt.Sprintf("%d %d %d", values[0], values[1], values[2])
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
