// Package runstore keeps the history of evaluation runs in SQLite.
//
// Every invocation of the pipeline over one variant becomes a run row. Each
// processed patient contributes an outcome row and its score cells, so the
// result tables of a variant can be rebuilt from history without touching
// the patient trees.
package runstore
