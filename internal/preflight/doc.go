// Package preflight validates the environment before a run: directory
// permissions, patient discovery, the history database, and the external
// tools the pipeline invokes.
package preflight
