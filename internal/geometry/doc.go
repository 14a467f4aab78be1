// Package geometry holds the pure voxel-space operations the aligner is
// built on: 6-connected component labeling, largest-component selection,
// axial extent queries, physical/voxel z conversion, bounding boxes, and
// nearest-neighbour resampling between grids.
//
// Every function is side-effect free unless its name says it zeroes voxels
// in place.
package geometry
