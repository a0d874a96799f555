package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/backmassage/gdcbatch/internal/calib"
	"github.com/backmassage/gdcbatch/internal/npy"
)

// Sentinel errors returned by ResolveInputs. Both are per-scene failures.
var (
	ErrMissing = errors.New("input artifact missing or unreadable")
	ErrCorrupt = errors.New("input artifact corrupt")
)

// Inputs is everything one job needs, loaded from disk. It is owned by the
// job that loaded it and never modified afterwards.
type Inputs struct {
	Index       int
	Paths       Paths
	Predicted   *npy.Array
	GroundTruth *npy.Array
	Calib       *calib.Calibration
}

// Name returns the scene's file stem.
func (in *Inputs) Name() string { return Stem(in.Index) }

// WriteResult describes a persisted output.
type WriteResult struct {
	Path  string
	Bytes int64
}

// Store resolves and persists scene artifacts under a fixed set of roots.
// All methods are safe for concurrent use; concurrent writers must target
// different indices.
type Store struct {
	roots Roots
}

// NewStore returns a store over roots.
func NewStore(roots Roots) *Store {
	return &Store{roots: roots}
}

// Roots returns the directories the store was built with.
func (s *Store) Roots() Roots { return s.roots }

// OutputPath returns the output file path for index.
func (s *Store) OutputPath(index int) string { return s.roots.OutputPath(index) }

// EnsureOutputDir creates the output root if it does not exist.
func (s *Store) EnsureOutputDir() error {
	return os.MkdirAll(s.roots.Output, 0o755)
}

// OutputExists reports whether a completed output exists for index.
func (s *Store) OutputExists(index int) bool {
	fi, err := os.Stat(s.roots.OutputPath(index))
	return err == nil && fi.Mode().IsRegular()
}

// ResolveInputs loads the three inputs of index. Absent or unreadable files
// yield ErrMissing; files that exist but do not parse yield ErrCorrupt.
func (s *Store) ResolveInputs(index int) (*Inputs, error) {
	paths := s.roots.InputPaths(index)
	in := &Inputs{Index: index, Paths: paths}

	var err error
	if in.Predicted, err = loadDepth(paths.Predicted); err != nil {
		return nil, err
	}
	if in.GroundTruth, err = loadDepth(paths.GroundTruth); err != nil {
		return nil, err
	}
	c, err := calib.ReadFile(paths.Calib)
	if err != nil {
		return nil, classifyLoad(paths.Calib, err)
	}
	in.Calib = c
	return in, nil
}

func loadDepth(path string) (*npy.Array, error) {
	a, err := npy.ReadFile(path)
	if err != nil {
		return nil, classifyLoad(path, err)
	}
	return a, nil
}

func classifyLoad(path string, err error) error {
	switch {
	case errors.Is(err, npy.ErrFormat), errors.Is(err, npy.ErrUnsupported), errors.Is(err, calib.ErrFormat):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s does not exist", ErrMissing, path)
	default:
		return fmt.Errorf("%w: %w", ErrMissing, err)
	}
}

// WriteOutput stores a as float32 at the output path for index. The data is
// written to a temp file in the same directory, synced, then renamed, so
// readers never see a partial file. The output root is created on first use.
func (s *Store) WriteOutput(index int, a *npy.Array) (WriteResult, error) {
	final := s.roots.OutputPath(index)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WriteResult{}, fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+Stem(index)+".tmp-*")
	if err != nil {
		return WriteResult{}, fmt.Errorf("create temp output: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := npy.Write(tmp, a); err != nil {
		cleanup()
		return WriteResult{}, fmt.Errorf("encode %s: %w", final, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return WriteResult{}, fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	fi, err := tmp.Stat()
	if err != nil {
		cleanup()
		return WriteResult{}, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return WriteResult{}, fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return WriteResult{}, err
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return WriteResult{}, fmt.Errorf("rename into %s: %w", final, err)
	}
	return WriteResult{Path: final, Bytes: fi.Size()}, nil
}
