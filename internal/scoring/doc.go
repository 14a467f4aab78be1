// Package scoring assembles per-patient overlap, boundary-distance and
// fiducial-separation results into rectangular, patient-keyed tables.
//
// Missing comparisons are never omitted: Dice and Hausdorff cells fall back
// to "0" and fiducial cells to "inf" so per-variant tables stay directly
// concatenable across patients and variants.
package scoring
