// Package services defines shared utilities consumed by the pipeline stages
// and the external tool clients.
//
// Key responsibilities:
//   - Context helpers that stamp patient numbers, stage names, variant tags,
//     and run identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the outcome kinds recorded per patient.
//   - The Executor abstraction that makes external command execution
//     testable.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
