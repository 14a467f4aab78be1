package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCohort()
	c.normalizeTools()
	c.normalizeLogging()
	c.Normalization.PWLinear = strings.TrimSpace(c.Normalization.PWLinear)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.ResultsDir, err = expandPath(c.Paths.ResultsDir); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCohort() {
	c.Cohort.PatientPrefix = strings.TrimSpace(c.Cohort.PatientPrefix)
	seen := make(map[string]struct{}, len(c.Cohort.PatientsWithGT))
	patients := make([]string, 0, len(c.Cohort.PatientsWithGT))
	for _, num := range c.Cohort.PatientsWithGT {
		num = strings.TrimSpace(num)
		if num == "" {
			continue
		}
		if _, ok := seen[num]; ok {
			continue
		}
		seen[num] = struct{}{}
		patients = append(patients, num)
	}
	sort.Strings(patients)
	c.Cohort.PatientsWithGT = patients
}

func (c *Config) normalizeTools() {
	if value, ok := os.LookupEnv("REGEVAL_PLASTIMATCH"); ok && strings.TrimSpace(value) != "" {
		c.Tools.Plastimatch = value
	}
	if value, ok := os.LookupEnv("REGEVAL_TOTALSEGMENTATOR"); ok && strings.TrimSpace(value) != "" {
		c.Tools.TotalSegmentator = value
	}
	c.Tools.Plastimatch = strings.TrimSpace(c.Tools.Plastimatch)
	if c.Tools.Plastimatch == "" {
		c.Tools.Plastimatch = defaultPlastimatch
	}
	c.Tools.TotalSegmentator = strings.TrimSpace(c.Tools.TotalSegmentator)
	if c.Tools.TotalSegmentator == "" {
		c.Tools.TotalSegmentator = defaultTotalSeg
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
