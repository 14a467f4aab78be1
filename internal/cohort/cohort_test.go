package cohort_test

import (
	"os"
	"path/filepath"
	"testing"

	"regeval/internal/cohort"
	"regeval/internal/testsupport"
)

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}
}

func TestDiscoverSortsAndMarksCohort(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithGroundTruth("016"))
	mkdirs(t, cfg.Paths.DataDir, "MGH-016", "MGH-002", "MGH_100", "notes", "MGHx")
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DataDir, "MGH-999.txt"), "stray")

	patients, err := cohort.New(cfg).Discover(nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var numbers []string
	for _, p := range patients {
		numbers = append(numbers, p.Number)
	}
	if len(numbers) != 3 || numbers[0] != "002" || numbers[1] != "016" || numbers[2] != "100" {
		t.Fatalf("unexpected patients %v", numbers)
	}
	if patients[0].InCohort || !patients[1].InCohort {
		t.Fatalf("unexpected cohort membership: %+v", patients)
	}
	if patients[1].Label() != "MGH-016" {
		t.Fatalf("unexpected label %q", patients[1].Label())
	}
}

func TestDiscoverFilterIgnoresLeadingZeros(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mkdirs(t, cfg.Paths.DataDir, "MGH-016", "MGH-002")

	patients, err := cohort.New(cfg).Discover([]string{"16"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(patients) != 1 || patients[0].Number != "016" {
		t.Fatalf("unexpected filter result %+v", patients)
	}
}

func TestPatientNumberUsesPrefix(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPrefix("Pelvic-Ref-"))
	c := cohort.New(cfg)
	if num, ok := c.PatientNumber("/data/Pelvic-Ref-007"); !ok || num != "007" {
		t.Fatalf("PatientNumber = %q, %v", num, ok)
	}
	if _, ok := c.PatientNumber("/data/MGH-007"); ok {
		t.Fatal("expected foreign prefix to be rejected")
	}
}
