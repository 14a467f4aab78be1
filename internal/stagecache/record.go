package stagecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"regeval/internal/fileutil"
	"regeval/internal/organ"
)

const (
	recordVersion  = 1
	recordFileName = ".stage.json"
)

// Status is the persisted completion state of one stage.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Artifact is one file a stage produced, tagged with the structure and
// registration configuration it belongs to.
type Artifact struct {
	Organ  organ.ID `json:"organ,omitzero"`
	Config string   `json:"config,omitempty"`
	Kind   string   `json:"kind,omitempty"`
	Path   string   `json:"path"`
}

// Record is the status file written alongside a stage's artifacts.
type Record struct {
	Version    int        `json:"version"`
	Patient    string     `json:"patient"`
	Variant    string     `json:"variant"`
	Stage      string     `json:"stage"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitzero"`
	Error      string     `json:"error,omitempty"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
	// Failures lists units of a complete stage whose artifacts are absent.
	Failures   []string   `json:"failures,omitempty"`
}

// Filter returns the artifacts matching kind. An empty kind matches all.
func (r Record) Filter(kind string) []Artifact {
	out := make([]Artifact, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		if kind == "" || a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Lookup returns the first artifact for a structure and kind.
func (r Record) Lookup(kind string, id organ.ID) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Kind == kind && a.Organ == id {
			return a, true
		}
	}
	return Artifact{}, false
}

// ConfigArtifact returns the first artifact for a registration configuration and kind.
func (r Record) ConfigArtifact(kind, config string) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Kind == kind && a.Config == config {
			return a, true
		}
	}
	return Artifact{}, false
}

// RecordPath returns the status file location for a stage directory.
func RecordPath(dir string) string {
	return filepath.Join(dir, recordFileName)
}

// Load reads the status record of a stage directory. The boolean reports
// whether a record exists.
func Load(dir string) (Record, bool, error) {
	payload, err := os.ReadFile(RecordPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{Status: StatusNotStarted}, false, nil
		}
		return Record{}, false, fmt.Errorf("stagecache: read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, true, fmt.Errorf("stagecache: decode record: %w", err)
	}
	if rec.Version != recordVersion {
		return Record{}, true, fmt.Errorf("stagecache: unsupported record version %d", rec.Version)
	}
	return rec, true, nil
}

func save(dir string, rec Record) error {
	rec.Version = recordVersion
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("stagecache: encode record: %w", err)
	}
	if err := fileutil.WriteFileAtomic(RecordPath(dir), payload, 0o644); err != nil {
		return fmt.Errorf("stagecache: write record: %w", err)
	}
	return nil
}
