// Package calib parses KITTI object-detection calibration files.
//
// Each non-blank line is "KEY: v1 v2 ...". The corrector needs the left
// color camera projection P2 (3x4), the rectifying rotation R0_rect (3x3) and
// the velodyne-to-camera transform Tr_velo_to_cam (3x4); every other key is
// kept verbatim in Raw.
package calib

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrFormat is returned for files that are readable but not a calibration record.
var ErrFormat = errors.New("calib: malformed calibration")

// Keys from the KITTI tracking devkit that mean the same as the object ones.
var aliases = map[string]string{
	"R_rect":      "R0_rect",
	"Tr_velo_cam": "Tr_velo_to_cam",
}

var required = []struct {
	key string
	n   int
}{
	{"P2", 12},
	{"R0_rect", 9},
	{"Tr_velo_to_cam", 12},
}

// Calibration is one scene's sensor geometry, row-major.
type Calibration struct {
	P2        [12]float64
	R0Rect    [9]float64
	VeloToCam [12]float64
	Raw       map[string][]float64
}

// ReadFile parses the calibration file at path.
func ReadFile(path string) (*Calibration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse reads a calibration record from r.
func Parse(r io.Reader) (*Calibration, error) {
	c := &Calibration{Raw: make(map[string][]float64)}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: line %d has no key", ErrFormat, lineNo)
		}
		key = strings.TrimSpace(key)
		if canon, ok := aliases[key]; ok {
			key = canon
		}
		fields := strings.Fields(rest)
		vals := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d (%s): %q is not a number", ErrFormat, lineNo, key, f)
			}
			vals[i] = v
		}
		c.Raw[key] = vals
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for _, req := range required {
		vals, ok := c.Raw[req.key]
		if !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrFormat, req.key)
		}
		if len(vals) != req.n {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrFormat, req.key, len(vals), req.n)
		}
	}
	copy(c.P2[:], c.Raw["P2"])
	copy(c.R0Rect[:], c.Raw["R0_rect"])
	copy(c.VeloToCam[:], c.Raw["Tr_velo_to_cam"])
	return c, nil
}
