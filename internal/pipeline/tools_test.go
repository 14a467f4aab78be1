package pipeline_test

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"regeval/internal/config"
	"regeval/internal/pipeline"
	"regeval/internal/runstore"
	"regeval/internal/services/plastimatch"
	"regeval/internal/services/totalseg"
	"regeval/internal/testsupport"
	"regeval/internal/volume"
)

// fakeTools stands in for plastimatch and TotalSegmentator, writing the
// files each command would produce.
type fakeTools struct {
	mu    sync.Mutex
	calls []string
	// failOn makes any command of failBinary (or any binary when empty)
	// whose arguments contain the substring fail.
	failOn     string
	failBinary string
}

func (f *fakeTools) Run(_ context.Context, binary string, args []string, onOutput func(string)) error {
	f.mu.Lock()
	f.calls = append(f.calls, binary+" "+strings.Join(args, " "))
	f.mu.Unlock()

	if f.failOn != "" && (f.failBinary == "" || f.failBinary == binary) {
		for _, arg := range args {
			if strings.Contains(arg, f.failOn) {
				return errors.New("exit status 1")
			}
		}
	}

	if binary == "TotalSegmentator" {
		return f.segment(args)
	}
	switch args[0] {
	case "adjust", "dmap":
		return writeStub(argAfter(args, "--output"), "volume")
	case "convert":
		return f.convert(args)
	case "warp":
		if out := argAfter(args, "--output-pointset"); out != "" {
			data, err := os.ReadFile(argAfter(args, "--input"))
			if err != nil {
				return err
			}
			return writeStub(out, string(data))
		}
		return writeStub(argAfter(args, "--output-img"), "warped")
	case "dice":
		onOutput("DICE:   0.91")
		onOutput("Percent (0.95) Hausdorff distance (boundary) = 1.5")
		return nil
	default:
		return f.register(args[0])
	}
}

func (f *fakeTools) segment(args []string) error {
	out := argAfter(args, "-o")
	collecting := false
	for _, arg := range args {
		switch {
		case arg == "--roi_subset":
			collecting = true
		case strings.HasPrefix(arg, "-"):
			collecting = false
		case collecting:
			if err := writeStub(filepath.Join(out, arg+".nii.gz"), "nifti"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *fakeTools) convert(args []string) error {
	if out := argAfter(args, "--output-dicom"); out != "" {
		return writeStub(filepath.Join(out, "0001.dcm"), "dicom")
	}
	if out := argAfter(args, "--output-img"); out != "" {
		mask := testsupport.Mask([3]int{10, 10, 10}, testsupport.Block{Lo: [3]int{2, 2, 2}, Hi: [3]int{7, 7, 7}})
		return volume.WriteFile(out, mask)
	}
	if out := argAfter(args, "--output-cxt"); out != "" {
		return writeStub(out, sampleCXT(60))
	}
	return fmt.Errorf("unsupported convert %v", args)
}

func (f *fakeTools) register(paramsPath string) error {
	file, err := os.Open(paramsPath)
	if err != nil {
		return err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if ok && (key == "img_out" || key == "vf_out") {
			if err := writeStub(value, key); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

func (f *fakeTools) count(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.Contains(call, substr) {
			n++
		}
	}
	return n
}

func (f *fakeTools) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func writeStub(path, content string) error {
	if path == "" {
		return errors.New("missing output path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func sampleCXT(vertices int) string {
	lines := make([]string, 28)
	for i := range lines {
		lines[i] = fmt.Sprintf("HEADER_%d", i)
	}
	lines[7] = "OFFSET -10 -20 -30"
	lines[9] = "SPACING 2 2 3"
	coords := make([]string, 0, vertices*3)
	for i := range vertices {
		coords = append(coords, fmt.Sprintf("%d", i), fmt.Sprintf("%d.5", i), "-6")
	}
	lines = append(lines, "1|"+fmt.Sprint(vertices)+"|0|uid|"+strings.Join(coords, `\`), "")
	return strings.Join(lines, "\n")
}

const fiducials = `# numPoints = 2
# columns = label,x,y,z,sel,vis
0, 1.5, -2.0, 30.0, 1, 1
1, 4.0, 6.0, 33.5, 1, 1
`

// addPatient creates a patient directory. Ground-truth patients also get
// manual contours for both modalities and fiducials.
func addPatient(t *testing.T, cfg *config.Config, name, number string, groundTruth bool) string {
	t.Helper()
	dir := filepath.Join(cfg.Paths.DataDir, name)
	testsupport.WriteFile(t, filepath.Join(dir, "CT", "0001.dcm"), "ct")
	testsupport.WriteFile(t, filepath.Join(dir, "CBCT", "0001.dcm"), "cbct")
	testsupport.WriteFile(t, filepath.Join(dir, "GENERATED_CT", "0001.dcm"), "sct")
	if groundTruth {
		for _, modality := range []string{"CT", "CBCT"} {
			for _, structure := range []string{"Prostate", "Bladder", "Rectum"} {
				testsupport.WriteFile(t, filepath.Join(dir, "GT_contours", modality, structure+".mha"), "contour")
			}
			testsupport.WriteFile(t, filepath.Join(dir, "FDMs", number+"-"+modality+"-fdm.fcsv"), fiducials)
		}
	}
	return dir
}

type harness struct {
	cfg    *config.Config
	tools  *fakeTools
	store  *runstore.Store
	runner *pipeline.Runner
	logs   *bytes.Buffer
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	tools := &fakeTools{}
	store := testsupport.MustOpenRunStore(t, cfg)
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelInfo}))

	imaging := mustPlastimatch(t, tools)
	segmenter, err := totalseg.New("TotalSegmentator", totalseg.WithExecutor(tools))
	if err != nil {
		t.Fatalf("totalseg.New: %v", err)
	}
	runner, err := pipeline.New(cfg, logger,
		pipeline.WithImaging(imaging),
		pipeline.WithSegmenter(segmenter),
		pipeline.WithRunStore(store),
	)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return &harness{cfg: cfg, tools: tools, store: store, runner: runner, logs: logs}
}

func (h *harness) run(t *testing.T, tag string, opts pipeline.Options) pipeline.Summary {
	t.Helper()
	if opts.Steps == nil {
		opts.Steps = pipeline.NewSteps(true)
	}
	summary, err := h.runner.Run(context.Background(), tag, opts)
	if err != nil {
		t.Fatalf("Run(%s): %v", tag, err)
	}
	return summary
}

func mustPlastimatch(t *testing.T, tools *fakeTools) *plastimatch.Client {
	t.Helper()
	client, err := plastimatch.New("plastimatch", plastimatch.WithExecutor(tools))
	if err != nil {
		t.Fatalf("plastimatch.New: %v", err)
	}
	return client
}
