package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"regeval/internal/volume"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Block describes an inclusive voxel box to fill with a label.
type Block struct {
	Lo, Hi [3]int
}

// Mask builds a unit-spacing label volume with every block filled with 1.
func Mask(dims [3]int, blocks ...Block) *volume.Volume {
	v := volume.New(dims, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	for _, block := range blocks {
		for z := block.Lo[2]; z <= block.Hi[2]; z++ {
			for y := block.Lo[1]; y <= block.Hi[1]; y++ {
				for x := block.Lo[0]; x <= block.Hi[0]; x++ {
					v.Set(x, y, z, 1)
				}
			}
		}
	}
	return v
}

// WriteVolume encodes v as NRRD at path, creating parent directories.
func WriteVolume(t testing.TB, path string, v *volume.Volume) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := volume.WriteFile(path, v); err != nil {
		t.Fatalf("write volume %s: %v", path, err)
	}
}

// ReadVolume decodes the NRRD at path.
func ReadVolume(t testing.TB, path string) *volume.Volume {
	t.Helper()

	v, err := volume.ReadFile(path)
	if err != nil {
		t.Fatalf("read volume %s: %v", path, err)
	}
	return v
}
