// Package pipeline runs the per-patient evaluation stages for one variant.
//
// Stages execute in a fixed order (normalize, segment, align, distance maps,
// contours, point sets, parameters, registration, warp, score). Every
// artifact-producing stage is gated by the stage cache and publishes its
// outputs through the cache manifest, which downstream stages read instead
// of globbing directories. A failure aborts only the affected patient; the
// batch continues and the patient's table rows fall back to sentinels.
package pipeline
