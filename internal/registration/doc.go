// Package registration models the multi-metric deformable registration job
// and renders it in the plastimatch command-file format.
package registration
