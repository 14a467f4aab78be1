package cohort

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"regeval/internal/config"
	"regeval/internal/services"
)

// Patient is one case directory discovered under the data root.
type Patient struct {
	Number string
	Dir    string
	// InCohort reports membership in the configured ground-truth cohort.
	InCohort bool
}

// Label renders the patient for logs and tables, e.g. "MGH-016".
func (p Patient) Label() string {
	return filepath.Base(p.Dir)
}

// Cohort discovers patients and answers ground-truth membership questions.
type Cohort struct {
	prefix  string
	dataDir string
	pattern *regexp.Regexp
	gt      map[string]struct{}
}

// New builds a Cohort from configuration.
func New(cfg *config.Config) *Cohort {
	gt := make(map[string]struct{}, len(cfg.Cohort.PatientsWithGT))
	for _, num := range cfg.Cohort.PatientsWithGT {
		gt[canonical(num)] = struct{}{}
	}
	return &Cohort{
		prefix:  cfg.Cohort.PatientPrefix,
		dataDir: cfg.Paths.DataDir,
		pattern: regexp.MustCompile(regexp.QuoteMeta(cfg.Cohort.PatientPrefix) + `[-_]?(\d+)`),
		gt:      gt,
	}
}

// PatientNumber extracts the digits following the prefix in a directory name.
func (c *Cohort) PatientNumber(dir string) (string, bool) {
	match := c.pattern.FindStringSubmatch(filepath.Base(dir))
	if match == nil {
		return "", false
	}
	return match[1], true
}

// InCohort reports whether the patient number carries ground-truth contours.
// Leading zeros are not significant.
func (c *Cohort) InCohort(number string) bool {
	_, ok := c.gt[canonical(number)]
	return ok
}

// Discover lists patient directories under the data root whose names match
// the prefix, sorted by patient number. A non-empty filter keeps only the
// listed patient numbers.
func (c *Cohort) Discover(filter []string) ([]Patient, error) {
	matches, err := filepath.Glob(filepath.Join(c.dataDir, c.prefix+"*"))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cohort", "discover", "glob patient directories", err)
	}
	return c.FromDirs(matches, filter)
}

// FromDirs builds patients from explicit directories. Entries that are not
// directories or do not carry a patient number are ignored.
func (c *Cohort) FromDirs(dirs []string, filter []string) ([]Patient, error) {
	wanted := make(map[string]struct{}, len(filter))
	for _, num := range filter {
		if num = strings.TrimSpace(num); num != "" {
			wanted[canonical(num)] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(dirs))
	patients := make([]Patient, 0, len(dirs))
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		number, ok := c.PatientNumber(dir)
		if !ok {
			continue
		}
		if len(wanted) > 0 {
			if _, keep := wanted[canonical(number)]; !keep {
				continue
			}
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", dir, err)
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		patients = append(patients, Patient{
			Number:   number,
			Dir:      abs,
			InCohort: c.InCohort(number),
		})
	}

	sort.SliceStable(patients, func(i, j int) bool {
		a, b := canonical(patients[i].Number), canonical(patients[j].Number)
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		if a != b {
			return a < b
		}
		return patients[i].Dir < patients[j].Dir
	})
	return patients, nil
}

func canonical(number string) string {
	number = strings.TrimSpace(number)
	if n, err := strconv.Atoi(number); err == nil {
		return strconv.Itoa(n)
	}
	return number
}
