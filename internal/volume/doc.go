// Package volume models labeled 3-D volumes and reads and writes them as
// NRRD files, the interchange format the segmentation and registration
// tools share with the pipeline.
package volume
