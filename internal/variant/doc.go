// Package variant resolves experiment variant tags into immutable plans.
//
// Each plan fixes which CT source feeds segmentation and registration, whether
// the extended organ set and alignment pass are enabled, and which other
// variant, if any, owns the ground-truth dependent artifacts.
package variant
