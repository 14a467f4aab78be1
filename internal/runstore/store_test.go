package runstore_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"regeval/internal/runstore"
	"regeval/internal/scoring"
	"regeval/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	if store.Path() != cfg.HistoryPath() {
		t.Fatalf("path = %q, want %q", store.Path(), cfg.HistoryPath())
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := runstore.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = reopened.Close()
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	_ = store.Close()

	db, err := sql.Open("sqlite", cfg.HistoryPath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := runstore.Open(cfg.HistoryPath()); !errors.Is(err, runstore.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	ctx := context.Background()

	id, err := store.BeginRun(ctx, "baseline", []string{"seg", "metric"}, true)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	run, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != runstore.RunRunning || !run.Forced || run.Steps != "seg,metric" {
		t.Fatalf("unexpected run: %+v", run)
	}

	status, err := store.FinishRun(ctx, id, 3, 1)
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if status != runstore.RunPartial {
		t.Fatalf("status = %q, want partial", status)
	}
	run, err = store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Patients != 3 || run.Failures != 1 || run.FinishedAt.IsZero() {
		t.Fatalf("unexpected finished run: %+v", run)
	}
}

func TestFinishRunStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		patients, failures int
		want               runstore.RunStatus
	}{
		{2, 0, runstore.RunCompleted},
		{2, 2, runstore.RunFailed},
		{0, 0, runstore.RunCompleted},
	}
	for _, tc := range cases {
		id, err := store.BeginRun(ctx, "baseline", nil, false)
		if err != nil {
			t.Fatalf("BeginRun: %v", err)
		}
		got, err := store.FinishRun(ctx, id, tc.patients, tc.failures)
		if err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
		if got != tc.want {
			t.Fatalf("FinishRun(%d, %d) = %q, want %q", tc.patients, tc.failures, got, tc.want)
		}
	}

	if _, err := store.FinishRun(ctx, "missing", 1, 0); !errors.Is(err, runstore.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRecordPatientUpserts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	ctx := context.Background()

	id, err := store.BeginRun(ctx, "baseline", nil, false)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	failed := runstore.PatientOutcome{
		RunID:       id,
		Patient:     "001",
		Status:      runstore.PatientFailed,
		FailedStage: "register",
		FailureKind: "external",
		Message:     "plastimatch exited 1",
	}
	if err := store.RecordPatient(ctx, failed); err != nil {
		t.Fatalf("RecordPatient: %v", err)
	}
	if err := store.RecordPatient(ctx, runstore.PatientOutcome{RunID: id, Patient: "001", Status: runstore.PatientSucceeded}); err != nil {
		t.Fatalf("RecordPatient: %v", err)
	}
	if err := store.RecordPatient(ctx, runstore.PatientOutcome{RunID: id, Patient: "002", Status: runstore.PatientFailed, FailedStage: "segment"}); err != nil {
		t.Fatalf("RecordPatient: %v", err)
	}

	outcomes, err := store.PatientOutcomes(ctx, id)
	if err != nil {
		t.Fatalf("PatientOutcomes: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Status != runstore.PatientSucceeded || outcomes[0].FailedStage != "" {
		t.Fatalf("expected upserted success, got %+v", outcomes[0])
	}
	if outcomes[1].FailedStage != "segment" {
		t.Fatalf("unexpected second outcome: %+v", outcomes[1])
	}

	if err := store.RecordPatient(ctx, runstore.PatientOutcome{Patient: "003"}); err == nil {
		t.Fatal("expected error without run id")
	}
}

func TestLatestTablesPrefersNewestRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	ctx := context.Background()

	first, err := store.BeginRun(ctx, "baseline", nil, false)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	old := scoring.NewPatientScores("001")
	old.Dice["W_TS_urinary_bladder"] = "0.5"
	if err := store.RecordScores(ctx, first, "baseline", old); err != nil {
		t.Fatalf("RecordScores: %v", err)
	}
	other := scoring.NewPatientScores("002")
	other.Fiducial["TS"] = "3.2"
	if err := store.RecordScores(ctx, first, "baseline", other); err != nil {
		t.Fatalf("RecordScores: %v", err)
	}

	second, err := store.BeginRun(ctx, "baseline", nil, false)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	fresh := scoring.NewPatientScores("001")
	fresh.Dice["W_TS_urinary_bladder"] = "0.8"
	if err := store.RecordScores(ctx, second, "baseline", fresh); err != nil {
		t.Fatalf("RecordScores: %v", err)
	}

	agg, err := store.LatestTables(ctx, "baseline", false)
	if err != nil {
		t.Fatalf("LatestTables: %v", err)
	}
	dice := agg.Table(scoring.Dice)
	if dice.Len() != 2 {
		t.Fatalf("expected 2 dice rows, got %d", dice.Len())
	}
	row := dice.Rows()[0]
	if row.Keys[0] != "001" || row.Cells["W_TS_urinary_bladder"] != "0.8" {
		t.Fatalf("expected newest cell for 001, got %+v", row)
	}
	fd := agg.Table(scoring.Fiducial).Rows()[1]
	if fd.Cells["TS"] != "3.2" || fd.Cells["NOPD"] != scoring.SentinelFiducial {
		t.Fatalf("unexpected fiducial row: %+v", fd)
	}

	empty, err := store.LatestTables(ctx, "extorgans", true)
	if err != nil {
		t.Fatalf("LatestTables: %v", err)
	}
	if empty.Table(scoring.Dice).Len() != 0 {
		t.Fatal("expected no rows for unused variant")
	}
}

func TestLatestTablesKeepsPatientsWithoutCells(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	ctx := context.Background()

	id, err := store.BeginRun(ctx, "genctall", []string{"metric"}, false)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.RecordScores(ctx, id, "genctall", scoring.NewPatientScores("001")); err != nil {
		t.Fatalf("RecordScores: %v", err)
	}
	scored := scoring.NewPatientScores("004")
	scored.Dice["W_TS_urinary_bladder"] = "0.91"
	if err := store.RecordScores(ctx, id, "genctall", scored); err != nil {
		t.Fatalf("RecordScores: %v", err)
	}

	agg, err := store.LatestTables(ctx, "genctall", false)
	if err != nil {
		t.Fatalf("LatestTables: %v", err)
	}
	for _, m := range scoring.Metrics() {
		if n := agg.Table(m).Len(); n != 2 {
			t.Fatalf("expected 2 %s rows, got %d", m, n)
		}
	}
	row := agg.Table(scoring.Dice).Rows()[0]
	if row.Keys[0] != "001" || row.Cells["W_TS_urinary_bladder"] != scoring.SentinelOverlap {
		t.Fatalf("expected sentinel row for 001, got %+v", row)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunStore(t, cfg)
	ctx := context.Background()

	var ids []string
	for _, variant := range []string{"baseline", "genctseg", "extorgans"} {
		id, err := store.BeginRun(ctx, variant, nil, false)
		if err != nil {
			t.Fatalf("BeginRun: %v", err)
		}
		ids = append(ids, id)
	}
	runs, err := store.Runs(ctx, 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != ids[2] {
		t.Fatalf("expected newest run first, got %s", runs[0].Variant)
	}
	all, err := store.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
}
