package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"regeval/internal/cohort"
	"regeval/internal/config"
	"regeval/internal/deps"
	"regeval/internal/runstore"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCohort verifies that at least one patient directory is discoverable.
func CheckCohort(ctx context.Context, cfg *config.Config) Result {
	const name = "Patient cohort"

	if err := ctx.Err(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	patients, err := cohort.New(cfg).Discover(nil)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if len(patients) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("no %s* directories under %s", cfg.Cohort.PatientPrefix, cfg.Paths.DataDir)}
	}
	withGT := 0
	for _, p := range patients {
		if p.InCohort {
			withGT++
		}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d patients (%d with ground truth)", len(patients), withGT)}
}

// CheckHistory verifies that the run history database opens with the
// expected schema.
func CheckHistory(cfg *config.Config) Result {
	const name = "Run history"

	path := cfg.HistoryPath()
	store, err := runstore.Open(path)
	if err != nil {
		if errors.Is(err, runstore.ErrSchemaMismatch) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (schema mismatch, delete to reset)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	_ = store.Close()
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckSystemDeps evaluates the external tools the pipeline shells out to.
// Both the run command and the check command use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "plastimatch",
			Command:     cfg.Tools.Plastimatch,
			Description: "Required for conversion, registration, warping, and overlap metrics",
		},
		{
			Name:        "TotalSegmentator",
			Command:     cfg.Tools.TotalSegmentator,
			Description: "Required for organ segmentation",
		},
	}
	return deps.CheckBinaries(requirements)
}
