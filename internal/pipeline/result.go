package pipeline

import (
	"time"

	"github.com/backmassage/gdcbatch/internal/artifact"
)

// SceneIndex identifies one scene. It is the unit of idempotence,
// scheduling and reporting.
type SceneIndex int

// Name returns the zero-padded file stem for i.
func (i SceneIndex) Name() string { return artifact.Stem(int(i)) }

// Outcome is the result of one submitted job. Exactly one of the success or
// failure groups is populated, selected by OK.
type Outcome struct {
	Index   SceneIndex
	OK      bool
	Elapsed time.Duration

	// Success.
	Path  string
	Bytes int64
	Shape []int

	// Failure.
	Kind   FailureKind
	Detail string // corrector failure class, when known
	Err    error
	Trace  string

	// MirrorErr is set when the output was written but the upload failed.
	// It does not turn a success into a failure.
	MirrorErr error
}

func success(index SceneIndex, wr artifact.WriteResult, shape []int) Outcome {
	return Outcome{Index: index, OK: true, Path: wr.Path, Bytes: wr.Bytes, Shape: shape}
}

func failure(index SceneIndex, err error, trace string) Outcome {
	if trace == "" {
		trace = err.Error()
	}
	return Outcome{Index: index, Kind: KindOf(err), Err: err, Trace: trace}
}

// RunResult collects every outcome of a run. Outcomes is keyed by index;
// when an index occurs more than once in the split file the last completed
// occurrence wins there, while Completed keeps one entry per occurrence.
type RunResult struct {
	Total      int // indices in the input list
	Outcomes   map[SceneIndex]Outcome
	Submitted  []SceneIndex // submission order
	Completed  []SceneIndex // completion order
	Skipped    []SceneIndex // output already present
	NotStarted []SceneIndex // never submitted because the run was cancelled
	Planned    []SceneIndex // dry run only
	DryRun     bool
	Started    time.Time
	Elapsed    time.Duration
}

func newRunResult(total int, dryRun bool) *RunResult {
	return &RunResult{
		Total:    total,
		Outcomes: make(map[SceneIndex]Outcome),
		DryRun:   dryRun,
		Started:  time.Now(),
	}
}

// Phase is the scheduler's lifecycle state.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseDispatching
	PhaseDraining
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseDispatching:
		return "dispatching"
	case PhaseDraining:
		return "draining"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}
