package variant

import (
	"fmt"
	"strings"

	"regeval/internal/organ"
	"regeval/internal/services"
)

// Baseline is the default variant tag.
const Baseline = "baseline"

// Plan is the resolved, immutable set of feature flags for one variant.
// It is computed once and handed to every stage.
type Plan struct {
	Tag string
	// AltCTEverywhere replaces the normalized CBCT with the generated CT for
	// both segmentation and intensity registration.
	AltCTEverywhere bool
	// AltCTForSegmentation segments the generated CT in place of the CBCT
	// but keeps the normalized CBCT for intensity registration.
	AltCTForSegmentation bool
	ExtendedOrgans       bool
	CropColon            bool
	// SharedFrom names the variant whose ground-truth and no-prior-deformation
	// artifacts are reused instead of recomputed. Empty when none.
	SharedFrom string
}

type flags struct {
	altAll, altSeg, extended bool
	shared                   string
}

var table = map[string]flags{
	"baseline":           {},
	"extorgans":          {extended: true, shared: Baseline},
	"genctseg":           {altSeg: true, shared: Baseline},
	"genctseg_extorgans": {altSeg: true, extended: true, shared: Baseline},
	"genctall":           {altAll: true},
	"genctall_extorgans": {altAll: true, extended: true},
}

var order = []string{
	"baseline",
	"extorgans",
	"genctseg",
	"genctseg_extorgans",
	"genctall",
	"genctall_extorgans",
}

// Resolve maps a variant tag to its plan. An empty tag resolves to baseline.
func Resolve(tag string) (Plan, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		tag = Baseline
	}
	f, ok := table[tag]
	if !ok {
		return Plan{}, services.Wrap(services.ErrConfiguration, "variant", "resolve",
			fmt.Sprintf("unknown variant %q (known: %s)", tag, strings.Join(order, ", ")), nil)
	}
	return Plan{
		Tag:                  tag,
		AltCTEverywhere:      f.altAll,
		AltCTForSegmentation: f.altSeg,
		ExtendedOrgans:       f.extended,
		CropColon:            true,
		SharedFrom:           f.shared,
	}, nil
}

// All returns every known plan in canonical order.
func All() []Plan {
	plans := make([]Plan, 0, len(order))
	for _, tag := range order {
		plan, _ := Resolve(tag)
		plans = append(plans, plan)
	}
	return plans
}

// Tags lists the known variant tags in canonical order.
func Tags() []string {
	return append([]string(nil), order...)
}

// EvalDir is the per-patient directory name that namespaces the plan's artifacts.
func (p Plan) EvalDir() string {
	return "eval_" + p.Tag
}

// Shared reports whether ground-truth dependent work is reused from another variant.
func (p Plan) Shared() bool {
	return p.SharedFrom != ""
}

// UsesGeneratedCT reports whether the CBCT side is replaced by the generated
// CT for segmentation.
func (p Plan) UsesGeneratedCT() bool {
	return p.AltCTEverywhere || p.AltCTForSegmentation
}

// NeedsNormalization reports whether the CBCT intensity normalization stage runs.
func (p Plan) NeedsNormalization() bool {
	return !p.AltCTEverywhere
}

// ROIs resolves the segmentation structures for a patient.
func (p Plan) ROIs(inCohort bool) organ.Set {
	return organ.Resolve(inCohort, p.ExtendedOrgans)
}

// Aligns reports whether the cross-modality alignment pass runs.
func (p Plan) Aligns() bool {
	return p.ExtendedOrgans
}

func (p Plan) String() string {
	return fmt.Sprintf("%s(alt_all=%t alt_seg=%t extended=%t crop_colon=%t shared=%q)",
		p.Tag, p.AltCTEverywhere, p.AltCTForSegmentation, p.ExtendedOrgans, p.CropColon, p.SharedFrom)
}
