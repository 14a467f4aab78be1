package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"regeval/internal/scoring"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// BeginRun inserts a running row and returns its id.
func (s *Store) BeginRun(ctx context.Context, variant string, steps []string, force bool) (string, error) {
	id := uuid.NewString()
	forced := 0
	if force {
		forced = 1
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, variant, steps, forced, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, variant, strings.Join(steps, ","), forced, string(RunRunning), formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun records the final counts of a run. The status is derived from
// the counts.
func (s *Store) FinishRun(ctx context.Context, id string, patients, failures int) (RunStatus, error) {
	status := RunCompleted
	switch {
	case failures > 0 && failures >= patients:
		status = RunFailed
	case failures > 0:
		status = RunPartial
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, patients = ?, failures = ?, finished_at = ? WHERE id = ?`,
		string(status), patients, failures, formatTime(time.Now()), id,
	)
	if err != nil {
		return "", fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return status, nil
}

// RecordPatient upserts the outcome of one patient.
func (s *Store) RecordPatient(ctx context.Context, outcome PatientOutcome) error {
	if outcome.RunID == "" || outcome.Patient == "" {
		return errors.New("record patient: run id and patient are required")
	}
	recorded := outcome.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO patient_runs (run_id, patient, status, failed_stage, failure_kind, error_message, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, patient) DO UPDATE SET
		   status = excluded.status,
		   failed_stage = excluded.failed_stage,
		   failure_kind = excluded.failure_kind,
		   error_message = excluded.error_message,
		   recorded_at = excluded.recorded_at`,
		outcome.RunID, outcome.Patient, string(outcome.Status),
		nullableString(outcome.FailedStage), nullableString(outcome.FailureKind), nullableString(outcome.Message),
		formatTime(recorded),
	)
	if err != nil {
		return fmt.Errorf("record patient %s: %w", outcome.Patient, err)
	}
	return nil
}

// RecordScores replaces the cells a patient contributed to a run. The
// patient keeps a table row even when no cell was computed.
func (s *Store) RecordScores(ctx context.Context, runID, variant string, scores scoring.PatientScores) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin scores tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM scores WHERE run_id = ? AND patient = ?`, runID, scores.Patient,
		); err != nil {
			return fmt.Errorf("clear scores: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO score_rows (run_id, variant, patient) VALUES (?, ?, ?)
			 ON CONFLICT(run_id, patient) DO UPDATE SET variant = excluded.variant`,
			runID, variant, scores.Patient,
		); err != nil {
			return fmt.Errorf("record score row: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO scores (run_id, variant, patient, metric, column_name, value) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare scores: %w", err)
		}
		defer stmt.Close()
		for _, m := range scoring.Metrics() {
			for column, value := range scores.Cells(m) {
				if _, err := stmt.ExecContext(ctx, runID, variant, scores.Patient, string(m), column, value); err != nil {
					return fmt.Errorf("insert score %s/%s: %w", m, column, err)
				}
			}
		}
		return tx.Commit()
	})
}

// LatestScores returns, per patient, the cells from the most recent run of
// the variant that scored that patient. Patients without cells are returned
// empty so tables fill them with sentinels. Patients are sorted.
func (s *Store) LatestScores(ctx context.Context, variant string) ([]scoring.PatientScores, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT sr.patient, sc.metric, sc.column_name, sc.value
		 FROM score_rows sr
		 JOIN runs r ON r.id = sr.run_id
		 LEFT JOIN scores sc ON sc.run_id = sr.run_id AND sc.patient = sr.patient
		 WHERE sr.variant = ?
		   AND r.started_at = (
		     SELECT MAX(r2.started_at) FROM score_rows sr2
		     JOIN runs r2 ON r2.id = sr2.run_id
		     WHERE sr2.variant = sr.variant AND sr2.patient = sr.patient
		   )`,
		variant,
	)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	byPatient := make(map[string]scoring.PatientScores)
	for rows.Next() {
		var patient string
		var metric, column, value sql.NullString
		if err := rows.Scan(&patient, &metric, &column, &value); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		ps, ok := byPatient[patient]
		if !ok {
			ps = scoring.NewPatientScores(patient)
			byPatient[patient] = ps
		}
		if metric.Valid {
			ps.Cells(scoring.Metric(metric.String))[column.String] = value.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	patients := make([]string, 0, len(byPatient))
	for p := range byPatient {
		patients = append(patients, p)
	}
	sort.Strings(patients)
	out := make([]scoring.PatientScores, 0, len(patients))
	for _, p := range patients {
		out = append(out, byPatient[p])
	}
	return out, nil
}

// LatestTables rebuilds a variant's tables from history.
func (s *Store) LatestTables(ctx context.Context, variant string, extended bool) (*scoring.Aggregator, error) {
	scores, err := s.LatestScores(ctx, variant)
	if err != nil {
		return nil, err
	}
	agg := scoring.NewAggregator(variant, extended)
	for _, ps := range scores {
		agg.Add(ps)
	}
	return agg, nil
}

// Runs lists the most recent runs, newest first. A limit of zero lists all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT id, variant, steps, forced, status, patients, failures, started_at, finished_at
		FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, variant, steps, forced, status, patients, failures, started_at, finished_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// PatientOutcomes lists the patient rows of a run sorted by patient.
func (s *Store) PatientOutcomes(ctx context.Context, runID string) ([]PatientOutcome, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, patient, status, failed_stage, failure_kind, error_message, recorded_at
		 FROM patient_runs WHERE run_id = ? ORDER BY patient`, runID)
	if err != nil {
		return nil, fmt.Errorf("query patient runs: %w", err)
	}
	defer rows.Close()

	var out []PatientOutcome
	for rows.Next() {
		var o PatientOutcome
		var status string
		var stage, kind, message, stamp sql.NullString
		if err := rows.Scan(&o.RunID, &o.Patient, &status, &stage, &kind, &message, &stamp); err != nil {
			return nil, fmt.Errorf("scan patient run: %w", err)
		}
		o.Status = PatientStatus(status)
		o.FailedStage = stage.String
		o.FailureKind = kind.String
		o.Message = message.String
		o.RecordedAt = parseTime(stamp)
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var forced int
	var status string
	var started, finished sql.NullString
	if err := row.Scan(&run.ID, &run.Variant, &run.Steps, &forced, &status,
		&run.Patients, &run.Failures, &started, &finished); err != nil {
		return Run{}, err
	}
	run.Forced = forced != 0
	run.Status = RunStatus(status)
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return run, nil
}
