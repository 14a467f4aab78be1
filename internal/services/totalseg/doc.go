// Package totalseg wraps the TotalSegmentator command line. The model writes
// one NIfTI mask per requested structure into the output directory.
package totalseg
