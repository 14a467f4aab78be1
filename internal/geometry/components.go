package geometry

import (
	"gonum.org/v1/gonum/stat"

	"regeval/internal/volume"
)

var neighbours6 = [6][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// ConnectedComponents groups nonzero voxels into maximal 6-connected
// components. The returned volume holds component labels 1..count on the
// input grid; background stays 0.
func ConnectedComponents(v *volume.Volume) (*volume.Volume, int) {
	labels := volume.NewLike(v)
	count := 0
	queue := make([]int, 0, 64)

	for start, value := range v.Data {
		if value == 0 || labels.Data[start] != 0 {
			continue
		}
		count++
		labels.Data[start] = int32(count)
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y, z := v.Coords(idx)
			for _, d := range neighbours6 {
				nx, ny, nz := x+d[0], y+d[1], z+d[2]
				if !v.InBounds(nx, ny, nz) {
					continue
				}
				n := v.Index(nx, ny, nz)
				if v.Data[n] == 0 || labels.Data[n] != 0 {
					continue
				}
				labels.Data[n] = int32(count)
				queue = append(queue, n)
			}
		}
	}
	return labels, count
}

// ComponentSizes returns voxel counts indexed by label; index 0 is unused.
func ComponentSizes(labels *volume.Volume, count int) []int {
	sizes := make([]int, count+1)
	for _, label := range labels.Data {
		if label > 0 && int(label) <= count {
			sizes[label]++
		}
	}
	return sizes
}

// LargestComponent returns a binary mask of the component with the most
// voxels. Ties go to the lowest label. A zero count yields an all-zero mask.
func LargestComponent(labels *volume.Volume, count int) *volume.Volume {
	mask := volume.NewLike(labels)
	if count == 0 {
		return mask
	}
	sizes := ComponentSizes(labels, count)
	best := 1
	for label := 2; label <= count; label++ {
		if sizes[label] > sizes[best] {
			best = label
		}
	}
	return ComponentMask(labels, best)
}

// ComponentMask returns a binary mask of a single labeled component.
func ComponentMask(labels *volume.Volume, label int) *volume.Volume {
	mask := volume.NewLike(labels)
	for i, value := range labels.Data {
		if int(value) == label {
			mask.Data[i] = 1
		}
	}
	return mask
}

// KeepLargest reduces a mask to its largest 6-connected component.
func KeepLargest(v *volume.Volume) *volume.Volume {
	return LargestComponent(ConnectedComponents(v))
}

// ComponentCentroidsZ returns the mean slice index of each component,
// indexed by label; index 0 is unused.
func ComponentCentroidsZ(labels *volume.Volume, count int) []float64 {
	slices := make([][]float64, count+1)
	for i, label := range labels.Data {
		if label <= 0 || int(label) > count {
			continue
		}
		_, _, z := labels.Coords(i)
		slices[label] = append(slices[label], float64(z))
	}
	centroids := make([]float64, count+1)
	for label := 1; label <= count; label++ {
		if len(slices[label]) > 0 {
			centroids[label] = stat.Mean(slices[label], nil)
		}
	}
	return centroids
}
