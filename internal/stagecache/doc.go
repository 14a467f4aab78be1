// Package stagecache gates expensive pipeline stages on a persisted status
// record stored in each stage's artifact directory.
//
// A stage whose record is complete is skipped unless forced. Any other state
// (no record, a failed or interrupted attempt, or a forced rerun) wipes the
// stage directories and runs the stage once. The record is marked complete
// only after the stage returns without error, and it carries the manifest of
// produced artifacts so downstream stages never re-derive structure identity
// from file names.
package stagecache
