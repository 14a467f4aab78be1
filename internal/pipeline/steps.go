package pipeline

import (
	"fmt"
	"strings"

	"regeval/internal/services"
)

// Step is a user-selectable part of the pipeline.
type Step string

const (
	StepNormalize   Step = "normalize"
	StepSegment     Step = "seg"
	StepAlign       Step = "align"
	StepDistanceMap Step = "dmap"
	StepContour     Step = "cxt"
	StepPoints      Step = "fcsv"
	StepParams      Step = "params"
	StepRegister    Step = "register"
	StepWarp        Step = "warp"
	StepMetric      Step = "metric"
	StepFiducial    Step = "fiducial-sep"
)

// AllSteps lists every step in execution order.
func AllSteps() []Step {
	return []Step{
		StepNormalize,
		StepSegment,
		StepAlign,
		StepDistanceMap,
		StepContour,
		StepPoints,
		StepParams,
		StepRegister,
		StepWarp,
		StepMetric,
		StepFiducial,
	}
}

// ParseStep maps a step name to a Step. "pw-linear" is accepted for
// normalization.
func ParseStep(value string) (Step, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "pw-linear" {
		return StepNormalize, nil
	}
	for _, step := range AllSteps() {
		if string(step) == value {
			return step, nil
		}
	}
	return "", services.Wrap(services.ErrConfiguration, "pipeline", "steps", fmt.Sprintf("unknown step %q", value), nil)
}

// Steps is the set of steps selected for a run.
type Steps map[Step]bool

// NewSteps builds a selection. all selects every step.
func NewSteps(all bool, selected ...Step) Steps {
	steps := make(Steps, len(AllSteps()))
	if all {
		for _, step := range AllSteps() {
			steps[step] = true
		}
		return steps
	}
	for _, step := range selected {
		steps[step] = true
	}
	return steps
}

// Has reports whether step is selected.
func (s Steps) Has(step Step) bool {
	return s[step]
}

// Empty reports whether nothing is selected.
func (s Steps) Empty() bool {
	for _, step := range AllSteps() {
		if s[step] {
			return false
		}
	}
	return true
}

// Scores reports whether any scoring step is selected.
func (s Steps) Scores() bool {
	return s.Has(StepMetric) || s.Has(StepFiducial)
}

// Names lists the selected steps in execution order.
func (s Steps) Names() []string {
	names := make([]string, 0, len(s))
	for _, step := range AllSteps() {
		if s[step] {
			names = append(names, string(step))
		}
	}
	return names
}
