// Package npy reads and writes NumPy .npy array files holding floating point
// data in C order. Reading accepts float32 and float64 in either byte order
// and format versions 1.0 through 3.0; writing always produces little-endian
// float32 in version 1.0 (2.0 when the header does not fit).
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Sentinel errors. Both mean the bytes on disk are not a usable array.
var (
	ErrFormat      = errors.New("npy: malformed file")
	ErrUnsupported = errors.New("npy: unsupported array layout")
)

var magic = []byte("\x93NUMPY")

// headerAlign is the alignment numpy uses for the preamble plus header.
const headerAlign = 64

// Array is a dense n-dimensional array of float64 values in C order.
type Array struct {
	Shape []int
	Data  []float64
}

// Len returns the element count implied by Shape.
func (a *Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// SameShape reports whether a and b have identical shapes.
func (a *Array) SameShape(b *Array) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of a.
func (a *Array) Clone() *Array {
	return &Array{
		Shape: append([]int(nil), a.Shape...),
		Data:  append([]float64(nil), a.Data...),
	}
}

var (
	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// ReadFile loads the array stored at path.
func ReadFile(path string) (*Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Read decodes one array from r.
func Read(r io.Reader) (*Array, error) {
	pre := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, fmt.Errorf("%w: short preamble", ErrFormat)
	}
	if !bytes.Equal(pre[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: bad magic", ErrFormat)
	}

	var headerLen int
	switch major := pre[len(magic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: short header length", ErrFormat)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: short header length", ErrFormat)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("%w: format version %d", ErrUnsupported, major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrFormat)
	}
	order, width, shape, err := parseHeader(string(header))
	if err != nil {
		return nil, err
	}

	a := &Array{Shape: shape}
	n := a.Len()
	raw := make([]byte, n*width)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: want %d data bytes: %v", ErrFormat, len(raw), err)
	}

	a.Data = make([]float64, n)
	for i := range a.Data {
		b := raw[i*width : (i+1)*width]
		if width == 4 {
			a.Data[i] = float64(math.Float32frombits(order.Uint32(b)))
		} else {
			a.Data[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return a, nil
}

// parseHeader extracts byte order, element width and shape from the Python
// dict literal numpy writes.
func parseHeader(h string) (binary.ByteOrder, int, []int, error) {
	m := reDescr.FindStringSubmatch(h)
	if m == nil {
		return nil, 0, nil, fmt.Errorf("%w: header has no descr", ErrFormat)
	}
	descr := m[1]
	if len(descr) < 3 {
		return nil, 0, nil, fmt.Errorf("%w: descr %q", ErrUnsupported, descr)
	}

	var order binary.ByteOrder
	switch descr[0] {
	case '<', '=', '|':
		order = binary.LittleEndian
	case '>':
		order = binary.BigEndian
	default:
		return nil, 0, nil, fmt.Errorf("%w: descr %q", ErrUnsupported, descr)
	}

	var width int
	switch descr[1:] {
	case "f4":
		width = 4
	case "f8":
		width = 8
	default:
		return nil, 0, nil, fmt.Errorf("%w: dtype %q (want f4 or f8)", ErrUnsupported, descr)
	}

	if m := reFortran.FindStringSubmatch(h); m == nil {
		return nil, 0, nil, fmt.Errorf("%w: header has no fortran_order", ErrFormat)
	} else if m[1] == "True" {
		return nil, 0, nil, fmt.Errorf("%w: fortran order", ErrUnsupported)
	}

	m = reShape.FindStringSubmatch(h)
	if m == nil {
		return nil, 0, nil, fmt.Errorf("%w: header has no shape", ErrFormat)
	}
	var shape []int
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 {
			return nil, 0, nil, fmt.Errorf("%w: shape %q", ErrFormat, m[1])
		}
		shape = append(shape, d)
	}
	return order, width, shape, nil
}

// Write encodes a as little-endian float32. Values outside float32 range
// become ±Inf, as with numpy's astype(np.float32).
func Write(w io.Writer, a *Array) error {
	if a.Len() != len(a.Data) {
		return fmt.Errorf("npy: shape %v holds %d values, data has %d", a.Shape, a.Len(), len(a.Data))
	}

	dims := make([]string, len(a.Shape))
	for i, d := range a.Shape {
		dims[i] = strconv.Itoa(d)
	}
	shape := strings.Join(dims, ", ")
	if len(a.Shape) == 1 {
		shape += ","
	}
	dict := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%s), }", shape)

	// v1 preamble is magic + 2 version bytes + uint16 length; v2 uses uint32.
	preamble := len(magic) + 2 + 2
	major := byte(1)
	total := padTo(preamble+len(dict)+1, headerAlign)
	if total-preamble > math.MaxUint16 {
		major, preamble = 2, len(magic)+2+4
		total = padTo(preamble+len(dict)+1, headerAlign)
	}
	header := dict + strings.Repeat(" ", total-preamble-len(dict)-1) + "\n"

	bw := bufio.NewWriter(w)
	bw.Write(magic)
	bw.Write([]byte{major, 0})
	if major == 1 {
		binary.Write(bw, binary.LittleEndian, uint16(len(header)))
	} else {
		binary.Write(bw, binary.LittleEndian, uint32(len(header)))
	}
	bw.WriteString(header)

	buf := make([]byte, 4)
	for _, v := range a.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func padTo(n, align int) int {
	if r := n % align; r != 0 {
		return n + align - r
	}
	return n
}
