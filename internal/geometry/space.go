package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"regeval/internal/volume"
)

// slack absorbs floating point round-off when flooring physical
// coordinates back onto the voxel grid.
const slack = 1e-6

// VoxelZRange returns the inclusive range of axial slices containing any
// nonzero voxel. ok is false when the volume is empty.
func VoxelZRange(v *volume.Volume) (zMin, zMax int, ok bool) {
	plane := v.Dims[0] * v.Dims[1]
	zMin, zMax = -1, -1
	for z := 0; z < v.Dims[2]; z++ {
		for _, value := range v.Data[z*plane : (z+1)*plane] {
			if value != 0 {
				if zMin < 0 {
					zMin = z
				}
				zMax = z
				break
			}
		}
	}
	if zMin < 0 {
		return 0, 0, false
	}
	return zMin, zMax, true
}

// PhysicalZ converts an axial slice index to millimetres.
func PhysicalZ(origin, spacing r3.Vec, index int) float64 {
	return origin.Z + float64(index)*spacing.Z
}

// PhysicalToVoxelZ converts millimetres to an axial slice index on a grid
// with the given depth. The result is floored and clamped to [0, depth].
func PhysicalToVoxelZ(origin, spacing r3.Vec, depth int, mm float64) int {
	index := int(math.Floor((mm-origin.Z)/spacing.Z + slack))
	return max(0, min(index, depth))
}

// PhysicalZRange returns the millimetre extent of the nonzero slices.
func PhysicalZRange(v *volume.Volume) (lo, hi float64, ok bool) {
	zMin, zMax, ok := VoxelZRange(v)
	if !ok {
		return 0, 0, false
	}
	return PhysicalZ(v.Origin, v.Spacing, zMin), PhysicalZ(v.Origin, v.Spacing, zMax), true
}

// Box is an inclusive voxel-index bounding box.
type Box struct {
	Min [3]int
	Max [3]int
}

// Contains reports whether the voxel lies inside the box.
func (b Box) Contains(x, y, z int) bool {
	return x >= b.Min[0] && x <= b.Max[0] &&
		y >= b.Min[1] && y <= b.Max[1] &&
		z >= b.Min[2] && z <= b.Max[2]
}

// BoundingBox returns the tightest box holding every nonzero voxel.
func BoundingBox(v *volume.Volume) (Box, bool) {
	box := Box{
		Min: [3]int{math.MaxInt, math.MaxInt, math.MaxInt},
		Max: [3]int{-1, -1, -1},
	}
	found := false
	for i, value := range v.Data {
		if value == 0 {
			continue
		}
		found = true
		x, y, z := v.Coords(i)
		for axis, c := range [3]int{x, y, z} {
			box.Min[axis] = min(box.Min[axis], c)
			box.Max[axis] = max(box.Max[axis], c)
		}
	}
	if !found {
		return Box{}, false
	}
	return box, true
}

// ZeroOutsideBox clears every voxel outside the box in place.
func ZeroOutsideBox(v *volume.Volume, box Box) {
	for i := range v.Data {
		if v.Data[i] == 0 {
			continue
		}
		x, y, z := v.Coords(i)
		if !box.Contains(x, y, z) {
			v.Data[i] = 0
		}
	}
}

// ZeroOutsideZ clears every slice outside [zMin, zMax] in place.
func ZeroOutsideZ(v *volume.Volume, zMin, zMax int) {
	plane := v.Dims[0] * v.Dims[1]
	for z := 0; z < v.Dims[2]; z++ {
		if z >= zMin && z <= zMax {
			continue
		}
		clear(v.Data[z*plane : (z+1)*plane])
	}
}

// ZeroBelowZ clears every slice with index lower than z in place.
func ZeroBelowZ(v *volume.Volume, z int) {
	ZeroOutsideZ(v, z, v.Dims[2]-1)
}

// ZeroAboveZ clears every slice with index higher than z in place.
func ZeroAboveZ(v *volume.Volume, z int) {
	ZeroOutsideZ(v, 0, z)
}

// ResampleNearest maps src onto ref's grid by nearest-neighbour lookup in
// physical space. Voxels that fall outside src are zero.
func ResampleNearest(src, ref *volume.Volume) *volume.Volume {
	out := volume.NewLike(ref)
	for i := range out.Data {
		x, y, z := ref.Coords(i)
		p := ref.VoxelToPhysical(float64(x), float64(y), float64(z))
		sx, sy, sz := src.PhysicalToVoxel(p)
		ix, iy, iz := int(math.Round(sx)), int(math.Round(sy)), int(math.Round(sz))
		if !src.InBounds(ix, iy, iz) {
			continue
		}
		out.Data[i] = src.At(ix, iy, iz)
	}
	return out
}
