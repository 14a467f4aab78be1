package totalseg_test

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"regeval/internal/organ"
	"regeval/internal/services"
	"regeval/internal/services/totalseg"
)

type fileExecutor struct {
	produce []string
	args    []string
	err     error
}

func (f *fileExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	f.args = append([]string(nil), args...)
	if f.err != nil {
		return f.err
	}
	outDir := args[3]
	for _, name := range f.produce {
		if err := os.WriteFile(outDir+"/"+name+".nii.gz", []byte("nii"), 0o644); err != nil {
			return err
		}
	}
	onOutput("done")
	return nil
}

func TestSegmentReturnsMaskPerStructure(t *testing.T) {
	exec := &fileExecutor{produce: []string{"urinary_bladder", "colon"}}
	client, err := totalseg.New("TotalSegmentator", totalseg.WithExecutor(exec), totalseg.WithExtraArgs("--fast"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := t.TempDir()
	rois := organ.Set{organ.TS(organ.Bladder), organ.TS(organ.Colon)}
	masks, err := client.Segment(context.Background(), "/p/CT", out, rois)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(masks) != 2 || masks[organ.TS(organ.Colon)] != totalseg.MaskPath(out, organ.TS(organ.Colon)) {
		t.Fatalf("unexpected masks %v", masks)
	}
	want := []string{"-i", "/p/CT", "-o", out, "--roi_subset", "urinary_bladder", "colon", "--fast"}
	if !reflect.DeepEqual(exec.args, want) {
		t.Fatalf("unexpected args %v", exec.args)
	}
}

func TestSegmentMissingOutput(t *testing.T) {
	exec := &fileExecutor{produce: []string{"urinary_bladder"}}
	client, _ := totalseg.New("TotalSegmentator", totalseg.WithExecutor(exec))
	_, err := client.Segment(context.Background(), "/p/CT", t.TempDir(), organ.Set{organ.TS(organ.Bladder), organ.TS(organ.Colon)})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestSegmentToolFailure(t *testing.T) {
	client, _ := totalseg.New("TotalSegmentator", totalseg.WithExecutor(&fileExecutor{err: errors.New("exit 1")}))
	_, err := client.Segment(context.Background(), "/p/CT", t.TempDir(), organ.Set{organ.TS(organ.Bladder)})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
