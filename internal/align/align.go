package align

import (
	"errors"
	"math"

	"regeval/internal/geometry"
	"regeval/internal/services"
	"regeval/internal/volume"
)

// ErrNoOverlap reports that a reference mask does not reach the target grid.
var ErrNoOverlap = errors.New("reference does not overlap target grid")

// Side names which argument of Equalize was cropped.
type Side int

const (
	SideFirst Side = iota
	SideSecond
)

func (s Side) String() string {
	if s == SideFirst {
		return "first"
	}
	return "second"
}

// LargerExtent decides which of two masks has the greater physical z-span.
// Equal spans resolve to the first argument. The decision depends only on
// the spans, so swapping arguments picks the same volume.
func LargerExtent(first, second *volume.Volume) (Side, error) {
	firstLo, firstHi, ok := geometry.PhysicalZRange(first)
	if !ok {
		return SideFirst, services.Wrap(services.ErrEmptyVolume, "align", "equalize", "first volume is empty", nil)
	}
	secondLo, secondHi, ok := geometry.PhysicalZRange(second)
	if !ok {
		return SideFirst, services.Wrap(services.ErrEmptyVolume, "align", "equalize", "second volume is empty", nil)
	}
	if secondHi-secondLo > firstHi-firstLo {
		return SideSecond, nil
	}
	return SideFirst, nil
}

// Equalize confines the mask with the larger z-span to the bounding box of
// the other mask resampled onto its grid, then keeps the largest component.
// The returned volume replaces the argument named by Side; the other is
// unchanged.
func Equalize(first, second *volume.Volume) (*volume.Volume, Side, error) {
	side, err := LargerExtent(first, second)
	if err != nil {
		return nil, side, err
	}
	larger, smaller := first, second
	if side == SideSecond {
		larger, smaller = second, first
	}

	resampled := geometry.ResampleNearest(smaller, larger)
	box, ok := geometry.BoundingBox(resampled)
	if !ok {
		return nil, side, ErrNoOverlap
	}
	out := larger.Clone()
	geometry.ZeroOutsideBox(out, box)
	return geometry.KeepLargest(out), side, nil
}

// TrimLowerSac keeps the component with the lowest centroid and truncates
// it to the bottom keepRatio of its own z-span.
func TrimLowerSac(v *volume.Volume, keepRatio float64) (*volume.Volume, error) {
	labels, count := geometry.ConnectedComponents(v)
	if count == 0 {
		return nil, services.Wrap(services.ErrEmptyVolume, "align", "trim lower sac", "volume is empty", nil)
	}
	centroids := geometry.ComponentCentroidsZ(labels, count)
	lowest := 1
	for label := 2; label <= count; label++ {
		if centroids[label] < centroids[lowest] {
			lowest = label
		}
	}
	component := geometry.ComponentMask(labels, lowest)
	zMin, zMax, _ := geometry.VoxelZRange(component)
	span := zMax - zMin + 1
	keep := max(1, int(math.Ceil(keepRatio*float64(span))))
	geometry.ZeroOutsideZ(component, zMin, zMin+keep-1)
	return component, nil
}

// CropToReference resamples reference onto target's grid, zeroes target
// outside the reference's axial extent, and keeps the largest component.
func CropToReference(target, reference *volume.Volume) (*volume.Volume, error) {
	if target.Empty() {
		return nil, services.Wrap(services.ErrEmptyVolume, "align", "crop to reference", "target is empty", nil)
	}
	if reference.Empty() {
		return nil, services.Wrap(services.ErrEmptyVolume, "align", "crop to reference", "reference is empty", nil)
	}
	resampled := geometry.ResampleNearest(reference, target)
	zMin, zMax, ok := geometry.VoxelZRange(resampled)
	if !ok {
		return nil, ErrNoOverlap
	}
	out := target.Clone()
	geometry.ZeroOutsideZ(out, zMin, zMax)
	return geometry.KeepLargest(out), nil
}

// CropBelow zeroes target slices caudal to the reference's lowest slice.
func CropBelow(target, reference *volume.Volume) (*volume.Volume, error) {
	if target.Empty() {
		return nil, services.Wrap(services.ErrEmptyVolume, "align", "crop below", "target is empty", nil)
	}
	zMin, _, ok := geometry.VoxelZRange(reference)
	if !ok {
		return nil, services.Wrap(services.ErrEmptyVolume, "align", "crop below", "reference is empty", nil)
	}
	cut := targetSlice(target, reference, zMin)
	out := target.Clone()
	geometry.ZeroBelowZ(out, cut)
	return out, nil
}

// CropAbove zeroes target slices cranial to the reference's highest slice.
func CropAbove(target, reference *volume.Volume) (*volume.Volume, error) {
	if target.Empty() {
		return nil, services.Wrap(services.ErrEmptyVolume, "align", "crop above", "target is empty", nil)
	}
	_, zMax, ok := geometry.VoxelZRange(reference)
	if !ok {
		return nil, services.Wrap(services.ErrEmptyVolume, "align", "crop above", "reference is empty", nil)
	}
	cut := targetSlice(target, reference, zMax)
	out := target.Clone()
	geometry.ZeroAboveZ(out, cut)
	return out, nil
}

func targetSlice(target, reference *volume.Volume, referenceSlice int) int {
	mm := geometry.PhysicalZ(reference.Origin, reference.Spacing, referenceSlice)
	return geometry.PhysicalToVoxelZ(target.Origin, target.Spacing, target.Depth(), mm)
}
