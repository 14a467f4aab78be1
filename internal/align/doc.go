// Package align reconciles CT-derived and CBCT-derived masks of the same
// structure so overlap scoring compares geometrically consistent regions.
//
// The volume-level functions (Equalize, TrimLowerSac, CropToReference,
// CropBelow, CropAbove) are pure. The Aligner wraps them with file I/O,
// rewriting masks in place and degrading to a logged no-op when an input is
// missing or empty. The CBCT mask is always the reference and the CT mask
// the target, except for bladder equalization where whichever mask spans
// more z is cropped.
package align
