package volume

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Volume is a 3-D label grid with the geometry needed to map voxel indices
// to patient space. Data is stored x-fastest, then y, then z.
type Volume struct {
	Dims    [3]int
	Spacing r3.Vec
	Origin  r3.Vec
	Data    []int32

	// Element type and encoding the volume was read with, reused on write so
	// in-place rewrites keep the file's on-disk shape.
	Type     string
	Encoding string
}

// New allocates an all-zero volume.
func New(dims [3]int, spacing, origin r3.Vec) *Volume {
	return &Volume{
		Dims:    dims,
		Spacing: spacing,
		Origin:  origin,
		Data:    make([]int32, dims[0]*dims[1]*dims[2]),
	}
}

// NewLike allocates an all-zero volume on the same grid as v.
func NewLike(v *Volume) *Volume {
	out := New(v.Dims, v.Spacing, v.Origin)
	out.Type = v.Type
	out.Encoding = v.Encoding
	return out
}

// Validate checks the geometry invariants: positive spacing and a data
// buffer that matches the declared dimensions exactly.
func (v *Volume) Validate() error {
	if v == nil {
		return errors.New("volume is nil")
	}
	for axis, n := range v.Dims {
		if n <= 0 {
			return fmt.Errorf("dimension %d must be positive, got %d", axis, n)
		}
	}
	if v.Spacing.X <= 0 || v.Spacing.Y <= 0 || v.Spacing.Z <= 0 {
		return fmt.Errorf("spacing must be positive, got %v", v.Spacing)
	}
	if want := v.Len(); len(v.Data) != want {
		return fmt.Errorf("data length %d does not match dims %v (%d)", len(v.Data), v.Dims, want)
	}
	return nil
}

// Len returns the number of voxels described by Dims.
func (v *Volume) Len() int {
	return v.Dims[0] * v.Dims[1] * v.Dims[2]
}

// Depth returns the number of axial slices.
func (v *Volume) Depth() int {
	return v.Dims[2]
}

// Index flattens voxel coordinates.
func (v *Volume) Index(x, y, z int) int {
	return x + v.Dims[0]*(y+v.Dims[1]*z)
}

// Coords expands a flat index into voxel coordinates.
func (v *Volume) Coords(i int) (x, y, z int) {
	plane := v.Dims[0] * v.Dims[1]
	z = i / plane
	rem := i % plane
	y = rem / v.Dims[0]
	x = rem % v.Dims[0]
	return x, y, z
}

// InBounds reports whether the coordinates address a voxel.
func (v *Volume) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.Dims[0] && y < v.Dims[1] && z < v.Dims[2]
}

func (v *Volume) At(x, y, z int) int32 {
	return v.Data[v.Index(x, y, z)]
}

func (v *Volume) Set(x, y, z int, value int32) {
	v.Data[v.Index(x, y, z)] = value
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	out := *v
	out.Data = append([]int32(nil), v.Data...)
	return &out
}

// Empty reports whether every voxel is background.
func (v *Volume) Empty() bool {
	for _, value := range v.Data {
		if value != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of nonzero voxels.
func (v *Volume) Count() int {
	n := 0
	for _, value := range v.Data {
		if value != 0 {
			n++
		}
	}
	return n
}

// VoxelToPhysical maps continuous voxel coordinates to millimetres.
func (v *Volume) VoxelToPhysical(x, y, z float64) r3.Vec {
	return r3.Vec{
		X: v.Origin.X + x*v.Spacing.X,
		Y: v.Origin.Y + y*v.Spacing.Y,
		Z: v.Origin.Z + z*v.Spacing.Z,
	}
}

// PhysicalToVoxel maps millimetres to continuous voxel coordinates.
func (v *Volume) PhysicalToVoxel(p r3.Vec) (x, y, z float64) {
	return (p.X - v.Origin.X) / v.Spacing.X,
		(p.Y - v.Origin.Y) / v.Spacing.Y,
		(p.Z - v.Origin.Z) / v.Spacing.Z
}

// Equal reports whether two volumes share geometry and content.
func Equal(a, b *Volume) bool {
	if a.Dims != b.Dims || a.Spacing != b.Spacing || a.Origin != b.Origin || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}
