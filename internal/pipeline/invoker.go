package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-stack/stack"

	"github.com/backmassage/gdcbatch/internal/artifact"
	"github.com/backmassage/gdcbatch/internal/corrector"
)

// maxStderrLines bounds how much corrector stderr goes into a trace.
const maxStderrLines = 40

// Invoker runs the corrector for one scene and persists its result. It never
// returns an error or lets a panic escape: every problem becomes a Failure
// outcome.
type Invoker struct {
	store     *artifact.Store
	corrector corrector.Corrector
	opts      corrector.Options
}

// NewInvoker returns an invoker writing through store.
func NewInvoker(store *artifact.Store, c corrector.Corrector, opts corrector.Options) *Invoker {
	return &Invoker{store: store, corrector: c, opts: opts}
}

// Run corrects in and writes the output. Nothing is written on failure.
func (iv *Invoker) Run(ctx context.Context, in *artifact.Inputs) (out Outcome) {
	index := SceneIndex(in.Index)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic: %v", ErrCorrection, r)
			out = failure(index, err, buildTrace(err, stack.Trace().TrimRuntime()))
		}
		out.Elapsed = time.Since(start)
	}()

	result, err := iv.corrector.Correct(ctx, in, iv.opts)
	if err != nil {
		return iv.fail(index, fmt.Errorf("%w: %w", ErrCorrection, err))
	}
	if result == nil {
		return iv.fail(index, fmt.Errorf("%w: corrector returned no depth map", ErrCorrection))
	}
	if !result.SameShape(in.Predicted) {
		return iv.fail(index, fmt.Errorf("%w: result shape %v, predicted shape %v",
			ErrCorrection, result.Shape, in.Predicted.Shape))
	}

	wr, err := iv.store.WriteOutput(in.Index, result)
	if err != nil {
		return iv.fail(index, fmt.Errorf("%w: %w", ErrWrite, err))
	}
	return success(index, wr, result.Shape)
}

func (iv *Invoker) fail(index SceneIndex, err error) Outcome {
	o := failure(index, err, buildTrace(err, stack.Trace().TrimRuntime()))
	var cf *corrector.Failure
	if errors.As(err, &cf) {
		o.Detail = string(cf.Kind)
	}
	return o
}

// buildTrace renders the error, any captured corrector stderr and the call
// stack as one multi-line string.
func buildTrace(err error, cs stack.CallStack) string {
	var b strings.Builder
	fmt.Fprintf(&b, "error: %v\n", err)

	var cf *corrector.Failure
	if errors.As(err, &cf) && strings.TrimSpace(cf.Stderr) != "" {
		b.WriteString("corrector stderr:\n")
		for _, l := range tailLines(cf.Stderr, maxStderrLines) {
			b.WriteString("  " + l + "\n")
		}
	}

	b.WriteString("stack:\n")
	for _, c := range cs {
		fmt.Fprintf(&b, "  %+v %n\n", c, c)
	}
	return strings.TrimRight(b.String(), "\n")
}

// tailLines returns at most the last n lines of s.
func tailLines(s string, n int) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
