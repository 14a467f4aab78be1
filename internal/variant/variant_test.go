package variant_test

import (
	"errors"
	"testing"

	"regeval/internal/services"
	"regeval/internal/variant"
)

func TestResolveGenctsegExtorgans(t *testing.T) {
	plan, err := variant.Resolve("genctseg_extorgans")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.AltCTEverywhere || !plan.AltCTForSegmentation || !plan.ExtendedOrgans {
		t.Fatalf("unexpected flags: %s", plan)
	}
	if plan.SharedFrom != "baseline" {
		t.Fatalf("expected shared source baseline, got %q", plan.SharedFrom)
	}
	if plan.EvalDir() != "eval_genctseg_extorgans" {
		t.Fatalf("unexpected eval dir %q", plan.EvalDir())
	}
}

func TestResolveTable(t *testing.T) {
	tests := []struct {
		tag                      string
		altAll, altSeg, extended bool
		shared                   string
	}{
		{"baseline", false, false, false, ""},
		{"extorgans", false, false, true, "baseline"},
		{"genctseg", false, true, false, "baseline"},
		{"genctseg_extorgans", false, true, true, "baseline"},
		{"genctall", true, false, false, ""},
		{"genctall_extorgans", true, false, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			plan, err := variant.Resolve(tt.tag)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if plan.AltCTEverywhere != tt.altAll || plan.AltCTForSegmentation != tt.altSeg || plan.ExtendedOrgans != tt.extended {
				t.Fatalf("unexpected flags: %s", plan)
			}
			if plan.SharedFrom != tt.shared {
				t.Fatalf("shared = %q, want %q", plan.SharedFrom, tt.shared)
			}
			if !plan.CropColon {
				t.Fatal("expected colon cropping enabled by default")
			}
			if plan.NeedsNormalization() == tt.altAll {
				t.Fatal("normalization must be skipped exactly when the generated CT is used everywhere")
			}
		})
	}
}

func TestResolveDefaultsAndErrors(t *testing.T) {
	plan, err := variant.Resolve("  ")
	if err != nil || plan.Tag != variant.Baseline {
		t.Fatalf("expected baseline for empty tag, got %v %v", plan, err)
	}
	if _, err := variant.Resolve("nope"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAllOrderAndROIs(t *testing.T) {
	plans := variant.All()
	if len(plans) != 6 || plans[0].Tag != "baseline" || plans[5].Tag != "genctall_extorgans" {
		t.Fatalf("unexpected plans: %v", plans)
	}
	ext, _ := variant.Resolve("extorgans")
	if got := len(ext.ROIs(true)); got != 6 {
		t.Fatalf("expected bladder plus five extended organs, got %d", got)
	}
	if got := len(ext.ROIs(false)); got != 1 {
		t.Fatalf("expected bladder only outside the cohort, got %d", got)
	}
}
