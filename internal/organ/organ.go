package organ

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Source identifies who produced a structure.
type Source string

const (
	// SourceTS marks structures produced by the segmentation model.
	SourceTS Source = "TS"
	// SourceGT marks manually drawn ground-truth contours.
	SourceGT Source = "GT"
)

// Segmentation model structure names.
const (
	Bladder    = "urinary_bladder"
	Prostate   = "prostate"
	Colon      = "colon"
	FemurLeft  = "femur_left"
	FemurRight = "femur_right"
	HipLeft    = "hip_left"
	HipRight   = "hip_right"
)

// Ground-truth contour names.
const (
	GTProstate = "Prostate"
	GTBladder  = "Bladder"
	GTRectum   = "Rectum"
)

// ID is the identity attached to every structure artifact.
type ID struct {
	Source Source `json:"source"`
	Name   string `json:"name"`
}

// TS returns the identifier of a segmentation model structure.
func TS(name string) ID { return ID{Source: SourceTS, Name: name} }

// GT returns the identifier of a ground-truth contour.
func GT(name string) ID { return ID{Source: SourceGT, Name: name} }

// ClassName is the artifact stem, e.g. TS_urinary_bladder or GT_Bladder.
func (id ID) ClassName() string {
	return string(id.Source) + "_" + id.Name
}

func (id ID) String() string { return id.ClassName() }

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool { return id.Name == "" }

// ParseClassName inverts ClassName.
func ParseClassName(value string) (ID, bool) {
	prefix, name, ok := strings.Cut(value, "_")
	if !ok || name == "" {
		return ID{}, false
	}
	switch Source(prefix) {
	case SourceTS, SourceGT:
		return ID{Source: Source(prefix), Name: name}, true
	default:
		return ID{}, false
	}
}

// DisplayName renders a human label such as "Urinary Bladder (TS)".
func (id ID) DisplayName() string {
	title := cases.Title(language.Und).String(strings.ReplaceAll(id.Name, "_", " "))
	return title + " (" + string(id.Source) + ")"
}

// Set is an ordered list of structures.
type Set []ID

// Names returns the bare structure names in order.
func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for _, id := range s {
		out = append(out, id.Name)
	}
	return out
}

// Contains reports whether id is in the set.
func (s Set) Contains(id ID) bool {
	for _, candidate := range s {
		if candidate == id {
			return true
		}
	}
	return false
}

// GroundTruth lists the manually contoured structures in table order.
func GroundTruth() Set {
	return Set{GT(GTProstate), GT(GTBladder), GT(GTRectum)}
}

// Extended lists the structures added by the extended organ feature.
func Extended() Set {
	return Set{TS(Colon), TS(FemurLeft), TS(FemurRight), TS(HipLeft), TS(HipRight)}
}

// Resolve returns the segmentation ROI set for a patient. The base set is
// the bladder alone; extended organs are appended only for patients in the
// ground-truth cohort when the feature is enabled.
func Resolve(inCohort, extended bool) Set {
	set := Set{TS(Bladder)}
	if inCohort && extended {
		set = append(set, Extended()...)
	}
	return set
}

// Universe lists every segmentation structure any patient may carry, in
// table order.
func Universe(extended bool) Set {
	return Resolve(true, extended)
}
