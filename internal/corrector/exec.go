package corrector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/backmassage/gdcbatch/internal/artifact"
	"github.com/backmassage/gdcbatch/internal/npy"
)

// Exec runs an external correction program once per scene. The program
// writes its result to the --output path it is given; Exec reads it back and
// removes its scratch directory.
type Exec struct {
	// Command is the program and its leading arguments.
	Command []string
	// TempDir holds per-call scratch directories. Empty means os.TempDir().
	TempDir string
	// Tee, when set, receives a live copy of the program's stderr.
	Tee io.Writer
}

// Correct runs the program for in. A non-zero exit, a missing or unreadable
// output, or an output whose shape differs from the predicted map is
// reported as a *Failure.
func (e *Exec) Correct(ctx context.Context, in *artifact.Inputs, opts Options) (*npy.Array, error) {
	if len(e.Command) == 0 {
		return nil, errors.New("corrector command is empty")
	}

	scratch, err := os.MkdirTemp(e.TempDir, "gdc-"+in.Name()+"-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)
	outPath := filepath.Join(scratch, in.Name()+artifact.DepthExt)

	args := BuildArgs(e.Command, in, outPath, opts)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stderrBuf bytes.Buffer
	if e.Tee != nil {
		cmd.Stderr = io.MultiWriter(&stderrBuf, e.Tee)
	} else {
		cmd.Stderr = &stderrBuf
	}

	if err := cmd.Run(); err != nil {
		stderr := stderrBuf.String()
		return nil, &Failure{Kind: Classify(stderr), Stderr: stderr, Err: err}
	}

	out, err := npy.ReadFile(outPath)
	if err != nil {
		return nil, &Failure{Kind: KindBadOutput, Stderr: stderrBuf.String(), Err: err}
	}
	if !out.SameShape(in.Predicted) {
		return nil, &Failure{
			Kind:   KindShape,
			Stderr: stderrBuf.String(),
			Err:    fmt.Errorf("output shape %v, predicted shape %v", out.Shape, in.Predicted.Shape),
		}
	}
	return out, nil
}
