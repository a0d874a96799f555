package corrector

import (
	"context"

	"github.com/backmassage/gdcbatch/internal/artifact"
	"github.com/backmassage/gdcbatch/internal/npy"
)

// Method selects the sparse linear solver.
type Method string

const (
	MethodCG    Method = "cg"    // Conjugate gradient (default).
	MethodGMRES Method = "gmres" // Generalized minimal residual.
)

// Options are the numeric and algorithmic knobs passed to every call. The
// value is shared read-only by all workers.
type Options struct {
	NeighborCount   int
	ReconTolerance  float64
	Method          Method
	Subsample       bool
	ConsiderRange   [2]float64
	WeightTolerance float64
	Verbose         bool
}

// Corrector adjusts a predicted depth map toward the ground truth. It must
// not mutate in, and must return a non-nil error on non-convergence or
// malformed input.
type Corrector interface {
	Correct(ctx context.Context, in *artifact.Inputs, opts Options) (*npy.Array, error)
}

// Func adapts an ordinary function to [Corrector].
type Func func(ctx context.Context, in *artifact.Inputs, opts Options) (*npy.Array, error)

// Correct calls f.
func (f Func) Correct(ctx context.Context, in *artifact.Inputs, opts Options) (*npy.Array, error) {
	return f(ctx, in, opts)
}

// Identity returns a copy of the predicted map.
type Identity struct{}

// Correct returns in.Predicted unchanged.
func (Identity) Correct(_ context.Context, in *artifact.Inputs, _ Options) (*npy.Array, error) {
	return in.Predicted.Clone(), nil
}
