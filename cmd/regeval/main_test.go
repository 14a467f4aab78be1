package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"regeval/internal/config"
	"regeval/internal/deps"
	"regeval/internal/layout"
	"regeval/internal/logging"
	"regeval/internal/runstore"
	"regeval/internal/scoring"
	"regeval/internal/stagecache"
	"regeval/internal/testsupport"
	"regeval/internal/variant"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	t.Setenv("REGEVAL_PLASTIMATCH", "")
	t.Setenv("REGEVAL_TOTALSEGMENTATOR", "")
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "error"

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	payload, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func requireContains(t *testing.T, haystack string, needles ...string) {
	t.Helper()
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			t.Fatalf("expected output to contain %q\noutput:\n%s", needle, haystack)
		}
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid", env.cfg.Paths.DataDir)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestVariantsListsEveryVariant(t *testing.T) {
	out, err := runCLI(t, []string{"variants"}, "")
	if err != nil {
		t.Fatalf("variants: %v", err)
	}
	requireContains(t, out, "baseline", "extorgans", "genctseg_extorgans", "genctall_extorgans", "SHARES FROM")
}

func TestCheckReportsMissingTools(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Tools.Plastimatch = filepath.Join(testsupport.BaseDir(env.cfg), "missing-plastimatch")
	writeTestConfig(t, env.configPath, env.cfg)

	out, err := runCLI(t, []string{"check"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "plastimatch") {
		t.Fatalf("expected missing plastimatch error, got %v", err)
	}
	requireContains(t, out, "External tools", "[FAIL]", "Run history")
}

func TestCheckPassesWithStubbedTools(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.DataDir, "MGH-002", "CT", "0001.dcm"), "ct")

	out, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "All checks passed", "1 patients (0 with ground truth)")
}

func TestRunValidatesSelection(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLI(t, []string{"run"}, env.configPath); err == nil || !strings.Contains(err.Error(), "no steps selected") {
		t.Fatalf("expected no steps error, got %v", err)
	}
	if _, err := runCLI(t, []string{"run", "--all", "--variant", "bogus"}, env.configPath); err == nil || !strings.Contains(err.Error(), "unknown variant") {
		t.Fatalf("expected unknown variant error, got %v", err)
	}

	env.cfg.Tools.TotalSegmentator = filepath.Join(testsupport.BaseDir(env.cfg), "missing-ts")
	writeTestConfig(t, env.configPath, env.cfg)
	if _, err := runCLI(t, []string{"run", "--seg"}, env.configPath); err == nil || !strings.Contains(err.Error(), "missing required dependencies") {
		t.Fatalf("expected missing dependency error, got %v", err)
	}
}

func TestRunWithEmptyCohortRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	out, err := runCLI(t, []string{"run", "--metric", "--pw-linear", "--variant", "baseline,genctall"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "Variant baseline: completed", "Variant genctall: completed", "No patients matched")

	out, err = runCLI(t, []string{"results"}, env.configPath)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	requireContains(t, out, "baseline", "genctall", "normalize,metric")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.ResultsDir, "genctall", "dice.csv")); err != nil {
		t.Fatalf("expected variant table: %v", err)
	}
}

func TestRunDefaultsToEveryVariant(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	out, err := runCLI(t, []string{"run", "--metric"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, tag := range variant.Tags() {
		requireContains(t, out, "Variant "+tag+": completed")
	}
}

func TestRunContinuesAfterVariantFailure(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.ResultsDir, "baseline"), "not a directory")

	out, err := runCLI(t, []string{"run", "--metric", "--variant", "baseline,genctall"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "variant baseline") {
		t.Fatalf("expected baseline failure, got %v", err)
	}
	if strings.Contains(err.Error(), "variant genctall") {
		t.Fatalf("genctall should succeed, got %v", err)
	}
	requireContains(t, out, "Variant baseline: failed", "Variant genctall: completed")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.ResultsDir, "genctall", "dice.csv")); err != nil {
		t.Fatalf("expected genctall table after baseline failed: %v", err)
	}
}

func TestResultsShowsRunOutcomes(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"results"}, env.configPath)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	store := testsupport.MustOpenRunStore(t, env.cfg)
	ctx := context.Background()
	id, err := store.BeginRun(ctx, "baseline", []string{"seg"}, false)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.RecordPatient(ctx, runstore.PatientOutcome{
		RunID:       id,
		Patient:     "007",
		Status:      runstore.PatientFailed,
		FailedStage: "segment_cbct",
		FailureKind: "external_tool",
		Message:     "exit status 1",
	}); err != nil {
		t.Fatalf("RecordPatient: %v", err)
	}
	if _, err := store.FinishRun(ctx, id, 1, 1); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	out, err = runCLI(t, []string{"results", "--run", id}, env.configPath)
	if err != nil {
		t.Fatalf("results --run: %v", err)
	}
	requireContains(t, out, "failed", "007", "segment_cbct", "external_tool")

	if _, err := runCLI(t, []string{"results", "--run", "nope"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestMergeWritesMergedTables(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenRunStore(t, env.cfg)
	ctx := context.Background()
	id, err := store.BeginRun(ctx, "baseline", []string{"metric"}, false)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	scores := scoring.NewPatientScores("002")
	scores.Dice["W_TS_urinary_bladder"] = "0.77"
	if err := store.RecordScores(ctx, id, "baseline", scores); err != nil {
		t.Fatalf("RecordScores: %v", err)
	}

	out, err := runCLI(t, []string{"merge", "--variant", "baseline"}, env.configPath)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	requireContains(t, out, "merged_dice.csv", "merged_hd.csv", "merged_fd-sep.csv")
	data, err := os.ReadFile(filepath.Join(env.cfg.Paths.ResultsDir, "merged_dice.csv"))
	if err != nil {
		t.Fatalf("read merged table: %v", err)
	}
	requireContains(t, string(data), "0.77")
}

func TestStatusRendersStageRecords(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := filepath.Join(env.cfg.Paths.DataDir, "MGH-012")
	lay := layout.New(dir, "012", "baseline")

	cache := stagecache.New(logging.NewNop())
	_, err := cache.Run(context.Background(), stagecache.Stage{
		Name:    "segment_ct",
		Patient: "012",
		Variant: "baseline",
		Dir:     lay.SegDir(layout.CTDir),
	}, false, func(ctx context.Context, m *stagecache.Manifest) error {
		m.Add(stagecache.Artifact{Kind: "mask", Path: filepath.Join(lay.SegDir(layout.CTDir), "urinary_bladder.nrrd")})
		return nil
	})
	if err != nil {
		t.Fatalf("cache.Run: %v", err)
	}

	out, err := runCLI(t, []string{"status", dir}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== baseline ==", "segment_ct", "complete", "normalize")
	if strings.Contains(out, "== extorgans ==") {
		t.Fatalf("variants without a tree should be omitted:\n%s", out)
	}

	other := filepath.Join(env.cfg.Paths.DataDir, "scratch")
	if err := os.MkdirAll(other, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, []string{"status", other}, env.configPath); err == nil {
		t.Fatal("expected error for a directory without a patient number")
	}
}

func TestToolLinesMarkOptionalAsWarning(t *testing.T) {
	lines := toolLines([]deps.Status{
		{Name: "plastimatch", Available: true, Path: "/usr/bin/plastimatch"},
		{Name: "viewer", Optional: true, Detail: `binary "viewer" not found`},
		{Name: "TotalSegmentator", Detail: "command not configured"},
	})
	want := []string{"[OK] /usr/bin/plastimatch", "[WARN] binary", "[FAIL] command not configured"}
	for i, line := range lines {
		if got := line.render(false); !strings.Contains(got, want[i]) {
			t.Fatalf("line %d = %q, want %q", i, got, want[i])
		}
	}
	if colored := lines[2].render(true); !strings.HasPrefix(colored, ansiRed) {
		t.Fatalf("expected red failure line, got %q", colored)
	}
}
