// Package organ enumerates the anatomical structures the pipeline handles
// and resolves the per-patient region-of-interest set.
package organ
