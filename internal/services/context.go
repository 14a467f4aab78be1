package services

import "context"

type contextKey string

const (
	patientKey contextKey = "patient"
	stageKey   contextKey = "stage"
	variantKey contextKey = "variant"
	runIDKey   contextKey = "run_id"
)

// WithPatient annotates context with the patient number.
func WithPatient(ctx context.Context, patient string) context.Context {
	if patient == "" {
		return ctx
	}
	return context.WithValue(ctx, patientKey, patient)
}

// PatientFromContext returns the patient number if present.
func PatientFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(patientKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithVariant annotates context with the experiment variant tag.
func WithVariant(ctx context.Context, variant string) context.Context {
	if variant == "" {
		return ctx
	}
	return context.WithValue(ctx, variantKey, variant)
}

// VariantFromContext returns the variant tag if present.
func VariantFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(variantKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the run correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run correlation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
