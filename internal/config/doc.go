// Package config loads, normalizes, and validates evaluation pipeline
// configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REGEVAL_PLASTIMATCH. The Config type centralizes every knob the CLI and
// pipeline need so data directories, cohort membership, and external tool
// locations are discovered in one pass.
package config
