package align

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"regeval/internal/logging"
	"regeval/internal/organ"
	"regeval/internal/services"
	"regeval/internal/volume"
)

// Operation names the alignment rule applied to a structure pair.
type Operation string

const (
	OpEqualize    Operation = "equalize_z_extent"
	OpColon       Operation = "colon_trim_and_crop"
	OpCropBelow   Operation = "crop_below_reference"
	OpCropAbove   Operation = "crop_above_reference"
	OpUnsupported Operation = ""
)

// RuleFor returns the alignment rule for a segmentation structure.
func RuleFor(id organ.ID) Operation {
	if id.Source != organ.SourceTS {
		return OpUnsupported
	}
	switch id.Name {
	case organ.Bladder:
		return OpEqualize
	case organ.Colon:
		return OpColon
	case organ.FemurLeft, organ.FemurRight:
		return OpCropBelow
	case organ.HipLeft, organ.HipRight:
		return OpCropAbove
	default:
		return OpUnsupported
	}
}

// Pair locates the CT-derived and CBCT-derived masks of one structure.
type Pair struct {
	Organ organ.ID
	CT    string
	CBCT  string
}

// Outcome reports what the pass did to one pair.
type Outcome struct {
	Organ     organ.ID
	Operation Operation
	Applied   bool
	Modified  []string
	Reason    string
}

// Aligner rewrites mask files in place so paired CT and CBCT structures
// cover geometrically consistent regions. Missing, unreadable, or empty
// inputs are logged and leave the pair untouched.
type Aligner struct {
	logger    *slog.Logger
	keepRatio float64
}

// New constructs an Aligner. keepRatio is the bottom fraction of the lower
// colon sac retained by trimming.
func New(logger *slog.Logger, keepRatio float64) *Aligner {
	if keepRatio <= 0 || keepRatio > 1 {
		keepRatio = 0.5
	}
	return &Aligner{
		logger:    logging.NewComponentLogger(logger, "aligner"),
		keepRatio: keepRatio,
	}
}

// Run applies the rule of every pair in order. Colon pairs are skipped
// unless cropColon is set. Only write failures are returned as errors.
func (a *Aligner) Run(ctx context.Context, pairs []Pair, cropColon bool) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(pairs))
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		op := RuleFor(pair.Organ)
		var (
			outcome Outcome
			err     error
		)
		switch {
		case op == OpUnsupported:
			outcome = Outcome{Reason: "no alignment rule"}
		case op == OpColon && !cropColon:
			outcome = Outcome{Reason: "colon cropping disabled"}
		case op == OpEqualize:
			outcome, err = a.EqualizeFiles(ctx, pair.CT, pair.CBCT)
		case op == OpColon:
			outcome, err = a.ColonFiles(ctx, pair.CT, pair.CBCT)
		case op == OpCropBelow:
			outcome, err = a.CropBelowFile(ctx, pair.CT, pair.CBCT)
		case op == OpCropAbove:
			outcome, err = a.CropAboveFile(ctx, pair.CT, pair.CBCT)
		}
		outcome.Organ = pair.Organ
		outcome.Operation = op
		outcomes = append(outcomes, outcome)
		if err != nil {
			return outcomes, fmt.Errorf("align %s: %w", pair.Organ, err)
		}
	}
	return outcomes, nil
}

// EqualizeFiles crops whichever of the two masks spans more z to the other.
func (a *Aligner) EqualizeFiles(ctx context.Context, ctPath, cbctPath string) (Outcome, error) {
	ct, ok := a.load(ctx, OpEqualize, ctPath)
	if !ok {
		return skipped("CT mask unavailable"), nil
	}
	cbct, ok := a.load(ctx, OpEqualize, cbctPath)
	if !ok {
		return skipped("CBCT mask unavailable"), nil
	}
	out, side, err := Equalize(ct, cbct)
	if err != nil {
		return a.skip(ctx, OpEqualize, ctPath, err), nil
	}
	target := ctPath
	if side == SideSecond {
		target = cbctPath
	}
	if err := volume.WriteFile(target, out); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "align", string(OpEqualize), "write "+target, err)
	}
	a.applied(ctx, OpEqualize, target)
	return Outcome{Applied: true, Modified: []string{target}}, nil
}

// ColonFiles trims the CBCT colon to its lower sac, then crops the CT colon
// to the trimmed extent.
func (a *Aligner) ColonFiles(ctx context.Context, ctPath, cbctPath string) (Outcome, error) {
	cbct, ok := a.load(ctx, OpColon, cbctPath)
	if !ok {
		return skipped("CBCT colon unavailable"), nil
	}
	trimmed, err := TrimLowerSac(cbct, a.keepRatio)
	if err != nil {
		return a.skip(ctx, OpColon, cbctPath, err), nil
	}
	if err := volume.WriteFile(cbctPath, trimmed); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "align", string(OpColon), "write "+cbctPath, err)
	}
	a.applied(ctx, OpColon, cbctPath)
	modified := []string{cbctPath}

	ct, ok := a.load(ctx, OpColon, ctPath)
	if !ok {
		return Outcome{Applied: true, Modified: modified, Reason: "CT colon unavailable"}, nil
	}
	cropped, err := CropToReference(ct, trimmed)
	if err != nil {
		outcome := a.skip(ctx, OpColon, ctPath, err)
		outcome.Applied = true
		outcome.Modified = modified
		return outcome, nil
	}
	if err := volume.WriteFile(ctPath, cropped); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "align", string(OpColon), "write "+ctPath, err)
	}
	a.applied(ctx, OpColon, ctPath)
	return Outcome{Applied: true, Modified: append(modified, ctPath)}, nil
}

// CropBelowFile zeroes the CT mask below the CBCT mask's lowest slice.
func (a *Aligner) CropBelowFile(ctx context.Context, ctPath, cbctPath string) (Outcome, error) {
	return a.cropFile(ctx, OpCropBelow, CropBelow, ctPath, cbctPath)
}

// CropAboveFile zeroes the CT mask above the CBCT mask's highest slice.
func (a *Aligner) CropAboveFile(ctx context.Context, ctPath, cbctPath string) (Outcome, error) {
	return a.cropFile(ctx, OpCropAbove, CropAbove, ctPath, cbctPath)
}

func (a *Aligner) cropFile(ctx context.Context, op Operation, crop func(target, reference *volume.Volume) (*volume.Volume, error), targetPath, referencePath string) (Outcome, error) {
	target, ok := a.load(ctx, op, targetPath)
	if !ok {
		return skipped("CT mask unavailable"), nil
	}
	reference, ok := a.load(ctx, op, referencePath)
	if !ok {
		return skipped("CBCT mask unavailable"), nil
	}
	out, err := crop(target, reference)
	if err != nil {
		return a.skip(ctx, op, targetPath, err), nil
	}
	if err := volume.WriteFile(targetPath, out); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "align", string(op), "write "+targetPath, err)
	}
	a.applied(ctx, op, targetPath)
	return Outcome{Applied: true, Modified: []string{targetPath}}, nil
}

func (a *Aligner) load(ctx context.Context, op Operation, path string) (*volume.Volume, bool) {
	vol, err := volume.ReadFile(path)
	if err != nil {
		reason := "unreadable mask"
		if errors.Is(err, os.ErrNotExist) {
			reason = "missing mask"
		}
		logging.WarnWithContext(logging.WithContext(ctx, a.logger), "alignment skipped",
			"alignment_skip",
			logging.String("operation", string(op)),
			logging.String("path", path),
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldImpact, "pair left unaligned"),
		)
		return nil, false
	}
	if vol.Empty() {
		logging.WarnWithContext(logging.WithContext(ctx, a.logger), "alignment skipped",
			"alignment_skip",
			logging.String("operation", string(op)),
			logging.String("path", path),
			logging.String("reason", "empty mask"),
			logging.String(logging.FieldImpact, "pair left unaligned"),
		)
		return nil, false
	}
	return vol, true
}

func (a *Aligner) skip(ctx context.Context, op Operation, path string, err error) Outcome {
	logging.WarnWithContext(logging.WithContext(ctx, a.logger), "alignment skipped",
		"alignment_skip",
		logging.String("operation", string(op)),
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldImpact, "pair left unaligned"),
	)
	return skipped(err.Error())
}

func (a *Aligner) applied(ctx context.Context, op Operation, path string) {
	logging.WithContext(ctx, a.logger).Info("alignment applied",
		logging.String(logging.FieldEventType, "alignment_applied"),
		logging.String("operation", string(op)),
		logging.String("path", path),
	)
}

func skipped(reason string) Outcome {
	return Outcome{Reason: reason}
}
