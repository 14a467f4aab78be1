package runstore

import "time"

// RunStatus is the lifecycle state of one invocation over one variant.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// PatientStatus is the outcome of one patient within a run.
type PatientStatus string

const (
	PatientSucceeded PatientStatus = "succeeded"
	PatientFailed    PatientStatus = "failed"
)

// Run is a row of the runs table.
type Run struct {
	ID         string
	Variant    string
	Steps      string
	Forced     bool
	Status     RunStatus
	Patients   int
	Failures   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time of a finished run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PatientOutcome is a row of the patient_runs table.
type PatientOutcome struct {
	RunID       string
	Patient     string
	Status      PatientStatus
	FailedStage string
	FailureKind string
	Message     string
	RecordedAt  time.Time
}
