package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"regeval/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCohort(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithGroundTruth("1"))

	empty := CheckCohort(context.Background(), cfg)
	if empty.Passed {
		t.Fatal("expected failure without patient directories")
	}

	for _, name := range []string{"MGH-001", "MGH-004"} {
		if err := os.MkdirAll(filepath.Join(cfg.Paths.DataDir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	result := CheckCohort(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Detail != "2 patients (1 with ground truth)" {
		t.Fatalf("unexpected detail: %q", result.Detail)
	}
}

func TestCheckHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	result := CheckHistory(cfg)
	if !result.Passed {
		t.Fatalf("expected history database to open, got: %s", result.Detail)
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Paths.DataDir, "MGH-002"), 0o755); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	if RunAll(context.Background(), nil) != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestCheckSystemDeps(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("plastimatch"))
	cfg.Tools.TotalSegmentator = "definitely-missing-totalseg"

	statuses := CheckSystemDeps(cfg)
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Available {
		t.Fatalf("expected stubbed plastimatch available: %+v", statuses[0])
	}
	if statuses[1].Available || !strings.Contains(statuses[1].Detail, "not found") {
		t.Fatalf("expected missing TotalSegmentator: %+v", statuses[1])
	}
}
