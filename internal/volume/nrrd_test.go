package volume_test

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"regeval/internal/volume"
)

func sampleVolume() *volume.Volume {
	v := volume.New([3]int{4, 3, 2}, r3.Vec{X: 0.9, Y: 0.9, Z: 2.5}, r3.Vec{X: -120, Y: -80.5, Z: 30})
	v.Set(1, 1, 0, 1)
	v.Set(2, 1, 1, 1)
	v.Set(3, 2, 1, 2)
	return v
}

func TestWriteReadRoundTripKeepsGeometry(t *testing.T) {
	for _, encoding := range []string{volume.EncodingGzip, volume.EncodingRaw} {
		t.Run(encoding, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "organ.nrrd")
			src := sampleVolume()
			src.Encoding = encoding
			if err := volume.WriteFile(path, src); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			got, err := volume.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if !volume.Equal(src, got) {
				t.Fatalf("round trip mismatch: %+v vs %+v", src, got)
			}
			if got.Encoding != encoding {
				t.Fatalf("expected encoding %q, got %q", encoding, got.Encoding)
			}
			if got.Type != volume.TypeUint8 {
				t.Fatalf("expected small labels to be stored as uint8, got %q", got.Type)
			}
		})
	}
}

func TestEncodePromotesTypeWhenLabelsOverflow(t *testing.T) {
	v := sampleVolume()
	v.Type = volume.TypeUint8
	v.Set(0, 0, 0, 300)
	var buf bytes.Buffer
	if err := volume.Encode(&buf, v); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(buf.String(), "type: int32") {
		t.Fatalf("expected int32 promotion in header")
	}
}

func TestDecodeBigEndianShortWithSpacings(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("NRRD0005\n# comment\ntype: short\ndimension: 3\nsizes: 2 1 1\nspacings: 1 2 3\nendian: big\nencoding: raw\nspace origin: (1,2,3)\nkey:=value\n\n")
	_ = binary.Write(&buf, binary.BigEndian, []int16{-5, 7})

	v, err := volume.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Data[0] != -5 || v.Data[1] != 7 {
		t.Fatalf("unexpected samples %v", v.Data)
	}
	if v.Spacing != (r3.Vec{X: 1, Y: 2, Z: 3}) || v.Origin != (r3.Vec{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("unexpected geometry %v %v", v.Spacing, v.Origin)
	}
}

func TestDecodeGzipFloatRoundsLabels(t *testing.T) {
	var payload bytes.Buffer
	_ = binary.Write(&payload, binary.LittleEndian, []float32{0.2, 0.9})
	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	_, _ = gz.Write(payload.Bytes())
	_ = gz.Close()

	var buf bytes.Buffer
	buf.WriteString("NRRD0004\ntype: float\ndimension: 3\nsizes: 1 1 2\nspace directions: (-0.5,0,0) (0,0.5,0) (0,0,2)\nencoding: gzip\n\n")
	buf.Write(compressed.Bytes())

	v, err := volume.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Data[0] != 0 || v.Data[1] != 1 {
		t.Fatalf("unexpected rounded labels %v", v.Data)
	}
	if v.Spacing.X != 0.5 || v.Spacing.Z != 2 {
		t.Fatalf("expected spacing from direction norms, got %v", v.Spacing)
	}
}

func TestDecodeRejectsUnsupportedInputs(t *testing.T) {
	tests := map[string]string{
		"magic":     "P6\n",
		"dimension": "NRRD0004\ntype: uchar\ndimension: 2\nsizes: 1 1\n\n",
		"detached":  "NRRD0004\ntype: uchar\ndimension: 3\nsizes: 1 1 1\ndata file: other.raw\n\n",
		"truncated": "NRRD0004\ntype: uchar\ndimension: 3\nsizes: 2 2 2\nencoding: raw\n\nab",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := volume.Decode(strings.NewReader(input)); err == nil {
				t.Fatal("expected decode error")
			}
		})
	}
}

func TestValidateRejectsMismatchedBuffer(t *testing.T) {
	v := sampleVolume()
	v.Data = v.Data[:3]
	if err := v.Validate(); err == nil {
		t.Fatal("expected validation error for short buffer")
	}
	v = sampleVolume()
	v.Spacing.Z = 0
	if err := v.Validate(); err == nil {
		t.Fatal("expected validation error for zero spacing")
	}
}

func TestCoordsInvertsIndex(t *testing.T) {
	v := sampleVolume()
	for i := range v.Data {
		x, y, z := v.Coords(i)
		if v.Index(x, y, z) != i {
			t.Fatalf("Coords/Index mismatch at %d", i)
		}
	}
}
