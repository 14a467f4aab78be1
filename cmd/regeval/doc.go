// Package main provides the regeval command line.
//
// The CLI runs evaluation variants over the patient cohort, inspects stage
// records inside a patient directory, rebuilds merged result tables from
// run history, and checks that the external tools and directories a run
// needs are available.
package main
