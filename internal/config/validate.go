package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCohort(); err != nil {
		return err
	}
	if err := c.validateRegistration(); err != nil {
		return err
	}
	if err := c.validateNormalization(); err != nil {
		return err
	}
	if err := c.validateAlignment(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.ResultsDir == "" {
		return errors.New("paths.results_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateCohort() error {
	if c.Cohort.PatientPrefix == "" {
		return errors.New("cohort.patient_prefix must be set")
	}
	if strings.ContainsAny(c.Cohort.PatientPrefix, "/\\") {
		return errors.New("cohort.patient_prefix must not contain path separators")
	}
	for _, num := range c.Cohort.PatientsWithGT {
		if _, err := strconv.Atoi(num); err != nil {
			return fmt.Errorf("cohort.patients_with_gt: %q is not a patient number", num)
		}
	}
	return nil
}

func (c *Config) validateRegistration() error {
	if c.Registration.Lambda <= 0 {
		return errors.New("registration.lambda must be positive")
	}
	return nil
}

func (c *Config) validateNormalization() error {
	if c.Normalization.PWLinear == "" {
		return nil
	}
	fields := strings.Split(c.Normalization.PWLinear, ",")
	if len(fields)%2 != 0 {
		return errors.New("normalization.pw_linear must contain input/output pairs")
	}
	for _, field := range fields {
		if _, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
			return fmt.Errorf("normalization.pw_linear: %q is not numeric", strings.TrimSpace(field))
		}
	}
	return nil
}

func (c *Config) validateAlignment() error {
	if c.Alignment.ColonKeepRatio <= 0 || c.Alignment.ColonKeepRatio > 1 {
		return errors.New("alignment.colon_keep_ratio must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
