// Package check provides pre-flight diagnostics (--check mode) and the
// pre-run dependency validation (CheckDeps) for the correction program and
// the dataset roots.
package check

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/backmassage/gdcbatch/internal/artifact"
	"github.com/backmassage/gdcbatch/internal/config"
	"github.com/backmassage/gdcbatch/internal/pipeline"
)

// Sentinel errors returned by CheckDeps.
var (
	ErrCorrectorNotFound = errors.New("correction program not found on PATH")
	ErrRootMissing       = errors.New("dataset directory missing")
)

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// Inventory counts what is on disk for a split.
type Inventory struct {
	Indices         int
	InputsComplete  int
	InputsMissing   int
	OutputsComplete int
	FirstMissing    []pipeline.SceneIndex // at most maxListed
}

const maxListed = 10

// RunCheck runs the interactive --check flow: corrector availability, the
// dataset roots, the split file and an inventory of inputs and outputs.
// It is informational only and returns false if anything needs attention.
func RunCheck(cfg *config.Config, log Logger) bool {
	log.Info("=== System Check ===")
	ok := true

	if !checkCorrector(cfg, log) {
		ok = false
	}
	roots := rootsFrom(cfg)
	if !checkRoots(roots, log) {
		ok = false
	}
	if cfg.SplitFile == "" {
		log.Warn("No split file given; skipping inventory")
		return ok
	}
	indices, err := pipeline.ReadSplit(cfg.SplitFile)
	if err != nil {
		log.Error("Split file: %v", err)
		return false
	}
	log.Success("Split file: %d indices", len(indices))

	inv := TakeInventory(artifact.NewStore(roots), indices)
	log.Info("Inputs complete: %d, missing: %d", inv.InputsComplete, inv.InputsMissing)
	log.Info("Outputs already done: %d (would be skipped)", inv.OutputsComplete)
	if inv.InputsMissing > 0 {
		ok = false
		for _, idx := range inv.FirstMissing {
			log.Warn("  missing input for %s", idx.Name())
		}
		if inv.InputsMissing > len(inv.FirstMissing) {
			log.Warn("  ... and %d more", inv.InputsMissing-len(inv.FirstMissing))
		}
	}
	return ok
}

// checkCorrector reports which correction routine would be used.
func checkCorrector(cfg *config.Config, log Logger) bool {
	switch {
	case len(cfg.Corrector) == 0:
		log.Warn("No corrector configured")
		return false
	case cfg.Corrector.IsIdentity():
		log.Success("Corrector: built-in identity")
		return true
	}
	path, err := exec.LookPath(cfg.Corrector[0])
	if err != nil {
		log.Error("Corrector %q not found", cfg.Corrector[0])
		return false
	}
	log.Success("Corrector: %s", path)
	return true
}

// checkRoots reports each configured dataset directory.
func checkRoots(roots artifact.Roots, log Logger) bool {
	ok := true
	for _, r := range []struct{ name, dir string }{
		{"Predicted", roots.Predicted},
		{"Ground truth", roots.GroundTruth},
		{"Calibration", roots.Calib},
	} {
		if r.dir == "" {
			log.Warn("%s directory: not set", r.name)
			ok = false
			continue
		}
		if !isDir(r.dir) {
			log.Error("%s directory: %s does not exist", r.name, r.dir)
			ok = false
			continue
		}
		log.Success("%s directory: %s", r.name, r.dir)
	}
	switch {
	case roots.Output == "":
		log.Warn("Output directory: not set")
	case isDir(roots.Output):
		log.Success("Output directory: %s", roots.Output)
	default:
		log.Info("Output directory: %s (will be created)", roots.Output)
	}
	return ok
}

// TakeInventory counts complete inputs and existing outputs for indices.
func TakeInventory(store *artifact.Store, indices []pipeline.SceneIndex) Inventory {
	inv := Inventory{Indices: len(indices)}
	roots := store.Roots()
	for _, idx := range indices {
		if store.OutputExists(int(idx)) {
			inv.OutputsComplete++
		}
		p := roots.InputPaths(int(idx))
		if isFile(p.Predicted) && isFile(p.GroundTruth) && isFile(p.Calib) {
			inv.InputsComplete++
			continue
		}
		inv.InputsMissing++
		if len(inv.FirstMissing) < maxListed {
			inv.FirstMissing = append(inv.FirstMissing, idx)
		}
	}
	return inv
}

// CheckDeps is the pre-run validation: the correction program must be on
// PATH and the input roots must exist. Returns a sentinel error on failure.
func CheckDeps(cfg *config.Config) error {
	if len(cfg.Corrector) > 0 && !cfg.Corrector.IsIdentity() {
		if _, err := exec.LookPath(cfg.Corrector[0]); err != nil {
			return fmt.Errorf("%w: %s", ErrCorrectorNotFound, cfg.Corrector[0])
		}
	}
	for _, dir := range []string{cfg.PredictedDir, cfg.GroundTruthDir, cfg.CalibDir} {
		if !isDir(dir) {
			return fmt.Errorf("%w: %s", ErrRootMissing, dir)
		}
	}
	return nil
}

func rootsFrom(cfg *config.Config) artifact.Roots {
	return artifact.Roots{
		Predicted:   cfg.PredictedDir,
		GroundTruth: cfg.GroundTruthDir,
		Calib:       cfg.CalibDir,
		Output:      cfg.OutputDir,
	}
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
