package config

const (
	defaultDataDir        = "~/data/pelvic-ref"
	defaultResultsDir     = "~/.local/share/regeval/results"
	defaultLogDir         = "~/.local/share/regeval/logs"
	defaultStateDir       = "~/.local/share/regeval/state"
	defaultPatientPrefix  = "MGH"
	defaultLambda         = 10000
	defaultFillValue      = -1000
	defaultColonKeepRatio = 0.5
	defaultPlastimatch    = "plastimatch"
	defaultTotalSeg       = "TotalSegmentator"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"

	// DefaultPWLinear maps raw CBCT intensities onto CT Hounsfield units.
	DefaultPWLinear = "7, -981, 142, -895, 560, -112, 605, -97, 628, -90, 630, 38, 665, 55, 679, 96, 797, 255, 1072, 290, 1345, 902"
)

var defaultPatientsWithGT = []string{"001", "002", "007", "009", "010", "012", "016", "018", "020", "023"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			ResultsDir: defaultResultsDir,
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
		},
		Cohort: Cohort{
			PatientPrefix:  defaultPatientPrefix,
			PatientsWithGT: append([]string(nil), defaultPatientsWithGT...),
		},
		Registration: Registration{
			Lambda:       defaultLambda,
			DefaultValue: defaultFillValue,
		},
		Normalization: Normalization{
			PWLinear: DefaultPWLinear,
		},
		Alignment: Alignment{
			ColonKeepRatio: defaultColonKeepRatio,
			CropColon:      true,
		},
		Tools: Tools{
			Plastimatch:      defaultPlastimatch,
			TotalSegmentator: defaultTotalSeg,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
