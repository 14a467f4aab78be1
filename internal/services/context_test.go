package services_test

import (
	"context"
	"testing"

	"regeval/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPatient(ctx, "016")
	ctx = services.WithStage(ctx, "register")
	ctx = services.WithVariant(ctx, "baseline")
	ctx = services.WithRunID(ctx, "run-123")

	if p, ok := services.PatientFromContext(ctx); !ok || p != "016" {
		t.Fatalf("unexpected patient: %v %v", p, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "register" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if v, ok := services.VariantFromContext(ctx); !ok || v != "baseline" {
		t.Fatalf("unexpected variant: %v %v", v, ok)
	}
	if rid, ok := services.RunIDFromContext(ctx); !ok || rid != "run-123" {
		t.Fatalf("unexpected run id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
