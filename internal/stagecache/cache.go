package stagecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"regeval/internal/logging"
	"regeval/internal/services"
)

// Decision is what the cache chose to do with a stage.
type Decision int

const (
	// Run means no prior record existed and the stage ran.
	Run Decision = iota
	// Skip means a complete record existed and the stage was not invoked.
	Skip
	// Recompute means prior artifacts were wiped before the stage ran,
	// either because force was set or the prior attempt never completed.
	Recompute
)

func (d Decision) String() string {
	switch d {
	case Skip:
		return "skip"
	case Recompute:
		return "recompute"
	default:
		return "run"
	}
}

// Stage identifies one cacheable unit of work. Dir holds the status record;
// ExtraDirs are wiped and recreated alongside it.
type Stage struct {
	Name      string
	Patient   string
	Variant   string
	Dir       string
	ExtraDirs []string
}

// Manifest collects the artifacts a stage produces, and the units of work
// that failed without failing the whole stage.
type Manifest struct {
	artifacts []Artifact
	failures  []string
}

// Add records an artifact.
func (m *Manifest) Add(a Artifact) {
	m.artifacts = append(m.artifacts, a)
}

// Artifacts returns the recorded artifacts.
func (m *Manifest) Artifacts() []Artifact {
	return append([]Artifact(nil), m.artifacts...)
}

// Fail notes a unit of work whose artifacts were not produced. The stage
// still completes; the failure is kept on the record.
func (m *Manifest) Fail(unit string, err error) {
	m.failures = append(m.failures, fmt.Sprintf("%s: %v", unit, err))
}

// Failures returns the noted partial failures.
func (m *Manifest) Failures() []string {
	return append([]string(nil), m.failures...)
}

// Func performs a stage, registering every produced artifact on the manifest.
type Func func(ctx context.Context, manifest *Manifest) error

// Result reports what Run decided and the record now on disk.
type Result struct {
	Decision Decision
	Record   Record
}

// Cache gates stages on their persisted status records.
type Cache struct {
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Cache.
func New(logger *slog.Logger) *Cache {
	return &Cache{
		logger: logging.NewComponentLogger(logger, "stagecache"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Decide inspects the stage directory without touching it.
func (c *Cache) Decide(stage Stage, force bool) (Decision, Record, error) {
	rec, exists, err := Load(stage.Dir)
	if err != nil && !exists {
		return Run, Record{}, err
	}
	switch {
	case err != nil:
		// Unreadable record: treat as an incomplete attempt.
		return Recompute, Record{}, nil
	case exists && rec.Status == StatusComplete && !force:
		return Skip, rec, nil
	case exists, force, dirExists(stage.Dir):
		return Recompute, rec, nil
	default:
		return Run, rec, nil
	}
}

// Run executes fn unless the stage already completed. A complete record with
// force unset never invokes fn. Otherwise the stage directories are wiped,
// recreated, and fn runs exactly once; its outcome is persisted as a
// complete or failed record.
func (c *Cache) Run(ctx context.Context, stage Stage, force bool, fn Func) (Result, error) {
	if strings.TrimSpace(stage.Dir) == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "stagecache", stage.Name, "stage directory is empty", nil)
	}
	ctx = services.WithStage(ctx, stage.Name)
	logger := logging.WithContext(ctx, c.logger)

	decision, prior, err := c.Decide(stage, force)
	if err != nil {
		return Result{}, err
	}
	if decision == Skip {
		logger.Info("stage already computed",
			logging.String(logging.FieldEventType, "stage_skip"),
			logging.String("dir", stage.Dir),
			logging.String("finished_at", prior.FinishedAt.Format(time.RFC3339)),
		)
		return Result{Decision: Skip, Record: prior}, nil
	}

	dirs := append([]string{stage.Dir}, stage.ExtraDirs...)
	for _, dir := range dirs {
		if decision == Recompute {
			if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
				return Result{}, fmt.Errorf("stagecache: remove %s: %w", dir, err)
			}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("stagecache: create %s: %w", dir, err)
		}
	}

	rec := Record{
		Patient:   stage.Patient,
		Variant:   stage.Variant,
		Stage:     stage.Name,
		Status:    StatusNotStarted,
		StartedAt: c.now(),
	}
	if err := save(stage.Dir, rec); err != nil {
		return Result{}, err
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("decision", decision.String()),
		logging.String("dir", stage.Dir),
	)

	manifest := &Manifest{}
	runErr := fn(ctx, manifest)
	rec.FinishedAt = c.now()
	rec.Artifacts = manifest.Artifacts()
	rec.Failures = manifest.Failures()
	if runErr != nil {
		rec.Status = StatusFailed
		rec.Error = runErr.Error()
		if err := save(stage.Dir, rec); err != nil {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
		logging.ErrorWithContext(logger, "stage failed", "stage_failure",
			logging.String("dir", stage.Dir),
			logging.Error(runErr),
			logging.String(logging.FieldErrorHint, "rerun the stage; incomplete artifacts are recomputed"),
		)
		return Result{Decision: decision, Record: rec}, runErr
	}

	rec.Status = StatusComplete
	if err := save(stage.Dir, rec); err != nil {
		return Result{Decision: decision, Record: rec}, err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("artifacts", len(rec.Artifacts)),
		logging.Int("partial_failures", len(rec.Failures)),
		logging.Duration("elapsed", rec.FinishedAt.Sub(rec.StartedAt)),
	)
	return Result{Decision: decision, Record: rec}, nil
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
