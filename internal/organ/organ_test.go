package organ_test

import (
	"slices"
	"testing"

	"regeval/internal/organ"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		inCohort bool
		extended bool
		want     []string
	}{
		{"base outside cohort", false, false, []string{organ.Bladder}},
		{"base in cohort", true, false, []string{organ.Bladder}},
		{"extended outside cohort", false, true, []string{organ.Bladder}},
		{"extended in cohort", true, true, []string{organ.Bladder, organ.Colon, organ.FemurLeft, organ.FemurRight, organ.HipLeft, organ.HipRight}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := organ.Resolve(tc.inCohort, tc.extended).Names()
			if !slices.Equal(got, tc.want) {
				t.Fatalf("Resolve(%v, %v) = %v, want %v", tc.inCohort, tc.extended, got, tc.want)
			}
		})
	}
}

func TestClassNameRoundTrip(t *testing.T) {
	for _, id := range append(organ.GroundTruth(), organ.Universe(true)...) {
		parsed, ok := organ.ParseClassName(id.ClassName())
		if !ok || parsed != id {
			t.Fatalf("round trip of %v produced %v (%v)", id, parsed, ok)
		}
	}
	if _, ok := organ.ParseClassName("W_TS"); ok {
		t.Fatal("expected unknown prefix to be rejected")
	}
	if got := organ.TS(organ.Bladder).ClassName(); got != "TS_urinary_bladder" {
		t.Fatalf("unexpected class name %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	if got := organ.TS(organ.FemurLeft).DisplayName(); got != "Femur Left (TS)" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := organ.GT(organ.GTBladder).DisplayName(); got != "Bladder (GT)" {
		t.Fatalf("unexpected display name %q", got)
	}
}
