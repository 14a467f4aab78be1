package pipeline_test

import (
	"errors"
	"reflect"
	"testing"

	"regeval/internal/pipeline"
	"regeval/internal/services"
)

func TestParseStep(t *testing.T) {
	cases := map[string]pipeline.Step{
		"seg":          pipeline.StepSegment,
		"pw-linear":    pipeline.StepNormalize,
		" Metric ":     pipeline.StepMetric,
		"fiducial-sep": pipeline.StepFiducial,
	}
	for input, want := range cases {
		got, err := pipeline.ParseStep(input)
		if err != nil || got != want {
			t.Fatalf("ParseStep(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	if _, err := pipeline.ParseStep("bogus"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestStepsSelection(t *testing.T) {
	all := pipeline.NewSteps(true)
	if len(all.Names()) != len(pipeline.AllSteps()) || !all.Scores() {
		t.Fatalf("unexpected full selection %v", all.Names())
	}

	some := pipeline.NewSteps(false, pipeline.StepWarp, pipeline.StepSegment)
	if !reflect.DeepEqual(some.Names(), []string{"seg", "warp"}) {
		t.Fatalf("expected execution order, got %v", some.Names())
	}
	if some.Scores() || some.Empty() {
		t.Fatal("unexpected scoring or empty selection")
	}
	if !pipeline.NewSteps(false).Empty() {
		t.Fatal("expected empty selection")
	}
}
