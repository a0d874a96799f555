package artifact

import (
	"fmt"
	"path/filepath"
)

// File extensions for depth arrays and calibration records.
const (
	DepthExt = ".npy"
	CalibExt = ".txt"
)

// Roots are the four dataset directories.
type Roots struct {
	Predicted   string
	GroundTruth string
	Calib       string
	Output      string
}

// Paths are the three input files of one scene.
type Paths struct {
	Predicted   string
	GroundTruth string
	Calib       string
}

// Stem returns the file stem for index ("000042").
func Stem(index int) string {
	return fmt.Sprintf("%06d", index)
}

// InputPaths returns the input file paths for index.
func (r Roots) InputPaths(index int) Paths {
	stem := Stem(index)
	return Paths{
		Predicted:   filepath.Join(r.Predicted, stem+DepthExt),
		GroundTruth: filepath.Join(r.GroundTruth, stem+DepthExt),
		Calib:       filepath.Join(r.Calib, stem+CalibExt),
	}
}

// OutputPath returns the output file path for index.
func (r Roots) OutputPath(index int) string {
	return filepath.Join(r.Output, Stem(index)+DepthExt)
}
