// Package plastimatch wraps the plastimatch command line for intensity
// adjustment, format conversion, distance maps, registration, warping and
// overlap scoring. Every call blocks until the child process exits.
package plastimatch
