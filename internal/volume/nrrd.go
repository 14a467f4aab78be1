package volume

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"regeval/internal/fileutil"
)

// Canonical NRRD element type names.
const (
	TypeInt8    = "int8"
	TypeUint8   = "uint8"
	TypeInt16   = "int16"
	TypeUint16  = "uint16"
	TypeInt32   = "int32"
	TypeUint32  = "uint32"
	TypeFloat32 = "float"
	TypeFloat64 = "double"

	EncodingRaw  = "raw"
	EncodingGzip = "gzip"
)

var typeAliases = map[string]string{
	"signed char": TypeInt8, "int8": TypeInt8, "int8_t": TypeInt8,
	"uchar": TypeUint8, "unsigned char": TypeUint8, "uint8": TypeUint8, "uint8_t": TypeUint8,
	"short": TypeInt16, "short int": TypeInt16, "signed short": TypeInt16, "signed short int": TypeInt16, "int16": TypeInt16, "int16_t": TypeInt16,
	"ushort": TypeUint16, "unsigned short": TypeUint16, "unsigned short int": TypeUint16, "uint16": TypeUint16, "uint16_t": TypeUint16,
	"int": TypeInt32, "signed int": TypeInt32, "int32": TypeInt32, "int32_t": TypeInt32,
	"uint": TypeUint32, "unsigned int": TypeUint32, "uint32": TypeUint32, "uint32_t": TypeUint32,
	"float": TypeFloat32,
	"double": TypeFloat64,
}

func elementSize(typ string) int {
	switch typ {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeFloat64:
		return 8
	default:
		return 4
	}
}

type header struct {
	typ        string
	encoding   string
	byteOrder  binary.ByteOrder
	sizes      [3]int
	spacing    r3.Vec
	origin     r3.Vec
	hasSpacing bool
}

// ReadFile decodes an attached-header NRRD file holding a 3-D scalar volume.
// Floating point samples are rounded to the nearest label.
func ReadFile(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vol, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return vol, nil
}

// Decode reads an NRRD stream.
func Decode(r io.Reader) (*Volume, error) {
	br := bufio.NewReader(r)
	hdr, err := parseHeader(br)
	if err != nil {
		return nil, err
	}

	var payload io.Reader = br
	if hdr.encoding == EncodingGzip {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip payload: %w", err)
		}
		defer gz.Close()
		payload = gz
	}

	vol := New(hdr.sizes, hdr.spacing, hdr.origin)
	vol.Type = hdr.typ
	vol.Encoding = hdr.encoding

	size := elementSize(hdr.typ)
	raw := make([]byte, vol.Len()*size)
	if _, err := io.ReadFull(payload, raw); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	for i := range vol.Data {
		vol.Data[i] = decodeSample(raw[i*size:(i+1)*size], hdr.typ, hdr.byteOrder)
	}
	if err := vol.Validate(); err != nil {
		return nil, err
	}
	return vol, nil
}

func parseHeader(br *bufio.Reader) (header, error) {
	hdr := header{
		encoding:  EncodingRaw,
		byteOrder: binary.LittleEndian,
		spacing:   r3.Vec{X: 1, Y: 1, Z: 1},
	}

	magic, err := br.ReadString('\n')
	if err != nil {
		return hdr, fmt.Errorf("read magic: %w", err)
	}
	if !strings.HasPrefix(magic, "NRRD000") {
		return hdr, errors.New("not an NRRD file")
	}

	dimension := 0
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return hdr, fmt.Errorf("read header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") || strings.Contains(line, ":=") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return hdr, fmt.Errorf("malformed header line %q", line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "type":
			typ, ok := typeAliases[strings.ToLower(value)]
			if !ok {
				return hdr, fmt.Errorf("unsupported type %q", value)
			}
			hdr.typ = typ
		case "dimension":
			dimension, err = strconv.Atoi(value)
			if err != nil {
				return hdr, fmt.Errorf("dimension: %w", err)
			}
		case "sizes":
			fields := strings.Fields(value)
			if len(fields) != 3 {
				return hdr, fmt.Errorf("sizes: expected 3 values, got %d", len(fields))
			}
			for i, field := range fields {
				if hdr.sizes[i], err = strconv.Atoi(field); err != nil {
					return hdr, fmt.Errorf("sizes: %w", err)
				}
			}
		case "spacings":
			values, err := parseFloats(strings.Fields(value))
			if err != nil || len(values) != 3 {
				return hdr, fmt.Errorf("spacings: invalid value %q", value)
			}
			hdr.spacing = r3.Vec{X: values[0], Y: values[1], Z: values[2]}
			hdr.hasSpacing = true
		case "space directions":
			vectors, err := parseVectors(value)
			if err != nil {
				return hdr, fmt.Errorf("space directions: %w", err)
			}
			if len(vectors) != 3 {
				return hdr, fmt.Errorf("space directions: expected 3 vectors, got %d", len(vectors))
			}
			if !hdr.hasSpacing {
				hdr.spacing = r3.Vec{X: axisLength(vectors[0]), Y: axisLength(vectors[1]), Z: axisLength(vectors[2])}
			}
		case "space origin":
			vectors, err := parseVectors(value)
			if err != nil || len(vectors) != 1 {
				return hdr, fmt.Errorf("space origin: invalid value %q", value)
			}
			hdr.origin = vectors[0]
		case "endian":
			switch strings.ToLower(value) {
			case "little":
				hdr.byteOrder = binary.LittleEndian
			case "big":
				hdr.byteOrder = binary.BigEndian
			default:
				return hdr, fmt.Errorf("unsupported endian %q", value)
			}
		case "encoding":
			switch strings.ToLower(value) {
			case "raw":
				hdr.encoding = EncodingRaw
			case "gzip", "gz":
				hdr.encoding = EncodingGzip
			default:
				return hdr, fmt.Errorf("unsupported encoding %q", value)
			}
		case "data file", "datafile":
			return hdr, errors.New("detached data files are not supported")
		}
	}

	if dimension != 3 {
		return hdr, fmt.Errorf("expected a 3-D volume, got dimension %d", dimension)
	}
	if hdr.typ == "" {
		return hdr, errors.New("missing type field")
	}
	return hdr, nil
}

// parseVectors reads NRRD vector lists such as "(1,0,0) (0,1,0) none".
func parseVectors(value string) ([]r3.Vec, error) {
	var out []r3.Vec
	for _, token := range strings.Fields(value) {
		if strings.EqualFold(token, "none") {
			continue
		}
		token = strings.TrimSuffix(strings.TrimPrefix(token, "("), ")")
		values, err := parseFloats(strings.Split(token, ","))
		if err != nil {
			return nil, err
		}
		if len(values) != 3 {
			return nil, fmt.Errorf("vector %q must have 3 components", token)
		}
		out = append(out, r3.Vec{X: values[0], Y: values[1], Z: values[2]})
	}
	return out, nil
}

// axisLength returns the voxel step along a direction vector, exact for
// axis-aligned directions.
func axisLength(v r3.Vec) float64 {
	switch {
	case v.Y == 0 && v.Z == 0:
		return math.Abs(v.X)
	case v.X == 0 && v.Z == 0:
		return math.Abs(v.Y)
	case v.X == 0 && v.Y == 0:
		return math.Abs(v.Z)
	}
	return r3.Norm(v)
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeSample(b []byte, typ string, order binary.ByteOrder) int32 {
	switch typ {
	case TypeInt8:
		return int32(int8(b[0]))
	case TypeUint8:
		return int32(b[0])
	case TypeInt16:
		return int32(int16(order.Uint16(b)))
	case TypeUint16:
		return int32(order.Uint16(b))
	case TypeInt32:
		return int32(order.Uint32(b))
	case TypeUint32:
		return int32(order.Uint32(b))
	case TypeFloat32:
		return int32(math.Round(float64(math.Float32frombits(order.Uint32(b)))))
	default:
		return int32(math.Round(math.Float64frombits(order.Uint64(b))))
	}
}

// WriteFile encodes v as an attached-header NRRD and atomically replaces path.
func WriteFile(path string, v *Volume) error {
	var buf bytes.Buffer
	if err := Encode(&buf, v); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// Encode writes v in little-endian order, keeping its element type and
// encoding when it has them.
func Encode(w io.Writer, v *Volume) error {
	if err := v.Validate(); err != nil {
		return err
	}
	typ := storageType(v)
	encoding := v.Encoding
	if encoding == "" {
		encoding = EncodingGzip
	}

	fmt.Fprintf(w, "NRRD0004\n")
	fmt.Fprintf(w, "type: %s\n", typ)
	fmt.Fprintf(w, "dimension: 3\n")
	fmt.Fprintf(w, "space: left-posterior-superior\n")
	fmt.Fprintf(w, "sizes: %d %d %d\n", v.Dims[0], v.Dims[1], v.Dims[2])
	fmt.Fprintf(w, "space directions: (%s,0,0) (0,%s,0) (0,0,%s)\n", formatFloat(v.Spacing.X), formatFloat(v.Spacing.Y), formatFloat(v.Spacing.Z))
	fmt.Fprintf(w, "kinds: domain domain domain\n")
	fmt.Fprintf(w, "endian: little\n")
	fmt.Fprintf(w, "encoding: %s\n", encoding)
	if _, err := fmt.Fprintf(w, "space origin: (%s,%s,%s)\n\n", formatFloat(v.Origin.X), formatFloat(v.Origin.Y), formatFloat(v.Origin.Z)); err != nil {
		return err
	}

	size := elementSize(typ)
	raw := make([]byte, len(v.Data)*size)
	for i, value := range v.Data {
		encodeSample(raw[i*size:(i+1)*size], typ, value)
	}

	if encoding == EncodingGzip {
		gz := gzip.NewWriter(w)
		if _, err := gz.Write(raw); err != nil {
			return err
		}
		return gz.Close()
	}
	_, err := w.Write(raw)
	return err
}

// storageType keeps the volume's element type unless a label no longer fits.
func storageType(v *Volume) string {
	minValue, maxValue := int64(0), int64(0)
	for _, value := range v.Data {
		minValue = min(minValue, int64(value))
		maxValue = max(maxValue, int64(value))
	}
	fits := func(typ string) bool {
		switch typ {
		case TypeInt8:
			return minValue >= math.MinInt8 && maxValue <= math.MaxInt8
		case TypeUint8:
			return minValue >= 0 && maxValue <= math.MaxUint8
		case TypeInt16:
			return minValue >= math.MinInt16 && maxValue <= math.MaxInt16
		case TypeUint16:
			return minValue >= 0 && maxValue <= math.MaxUint16
		case TypeUint32:
			return minValue >= 0
		default:
			return true
		}
	}
	if v.Type != "" && fits(v.Type) {
		return v.Type
	}
	if v.Type == "" && fits(TypeUint8) {
		return TypeUint8
	}
	return TypeInt32
}

func encodeSample(b []byte, typ string, value int32) {
	order := binary.LittleEndian
	switch typ {
	case TypeInt8, TypeUint8:
		b[0] = byte(value)
	case TypeInt16, TypeUint16:
		order.PutUint16(b, uint16(value))
	case TypeFloat32:
		order.PutUint32(b, math.Float32bits(float32(value)))
	case TypeFloat64:
		order.PutUint64(b, math.Float64bits(float64(value)))
	default:
		order.PutUint32(b, uint32(value))
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
