package corrector

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/backmassage/gdcbatch/internal/artifact"
	"github.com/backmassage/gdcbatch/internal/npy"
)

func defaultOptions() Options {
	return Options{
		NeighborCount:   10,
		ReconTolerance:  5e-4,
		Method:          MethodCG,
		Subsample:       true,
		ConsiderRange:   [2]float64{-0.1, 3.0},
		WeightTolerance: 1e-5,
	}
}

func TestBuildArgs(t *testing.T) {
	in := &artifact.Inputs{
		Index: 12,
		Paths: artifact.Paths{Predicted: "/p/000012.npy", GroundTruth: "/g/000012.npy", Calib: "/c/000012.txt"},
	}
	opts := defaultOptions()
	opts.Method = MethodGMRES
	opts.Subsample = false
	opts.Verbose = true

	got := BuildArgs([]string{"python3", "gdc.py"}, in, "/tmp/out.npy", opts)
	want := []string{
		"python3", "gdc.py",
		"--predicted", "/p/000012.npy",
		"--groundtruth", "/g/000012.npy",
		"--calib", "/c/000012.txt",
		"--output", "/tmp/out.npy",
		"--k", "10",
		"--recon-tol", "0.0005",
		"--method", "gmres",
		"--subsample=false",
		"--consider-range", "-0.1,3",
		"--w-tol", "1e-05",
		"--verbose",
	}
	if !slices.Equal(got, want) {
		t.Errorf("BuildArgs:\n got %q\nwant %q", got, want)
	}
}

func TestBuildArgs_NoVerbose(t *testing.T) {
	in := &artifact.Inputs{Index: 1}
	got := BuildArgs([]string{"gdc"}, in, "o", defaultOptions())
	if slices.Contains(got, "--verbose") {
		t.Error("--verbose should only be passed when enabled")
	}
	if !slices.Contains(got, "--subsample=true") {
		t.Errorf("missing --subsample=true in %q", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		stderr string
		want   FailureKind
	}{
		{"Traceback...\nMemoryError: Unable to allocate 3.2 GiB", KindResources},
		{"Killed", KindResources},
		{"scipy.sparse.linalg: CG did not converge after 1000 iterations", KindNonConvergence},
		{"ArpackNoConvergence: ARPACK error -1", KindNonConvergence},
		{"KeyError: 'Tr_velo_to_cam'", KindCalibration},
		{"ValueError: malformed calibration record", KindCalibration},
		{"ValueError: operands could not be broadcast together with shapes (375,1242) (370,1224)", KindShape},
		{"ValueError: cannot reshape array of size 10 into shape (3,3)", KindShape},
		{"ZeroDivisionError: float division by zero", KindUnknown},
		{"", KindUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.stderr); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.stderr, got, tt.want)
		}
	}
}

func TestIdentity_DoesNotMutateInput(t *testing.T) {
	pred := &npy.Array{Shape: []int{2}, Data: []float64{1, 2}}
	in := &artifact.Inputs{Predicted: pred}

	out, err := Identity{}.Correct(context.Background(), in, defaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	out.Data[0] = 99
	if pred.Data[0] != 1 {
		t.Error("Identity output aliases the input")
	}
}

func TestFunc(t *testing.T) {
	sentinel := errors.New("boom")
	f := Func(func(context.Context, *artifact.Inputs, Options) (*npy.Array, error) {
		return nil, sentinel
	})
	if _, err := f.Correct(context.Background(), &artifact.Inputs{}, Options{}); !errors.Is(err, sentinel) {
		t.Errorf("err = %v", err)
	}
}

// writeScript writes a shell script that emulates a correction program:
// it copies --predicted to --output after running body.
func writeScript(t *testing.T, body string) []string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	script := `
while [ $# -gt 0 ]; do
  case "$1" in
    --predicted) pred="$2"; shift ;;
    --output) out="$2"; shift ;;
  esac
  shift
done
` + body + `
cp "$pred" "$out"
`
	path := filepath.Join(t.TempDir(), "gdc.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return []string{"sh", path}
}

func sceneInputs(t *testing.T, pred *npy.Array) *artifact.Inputs {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "000003.npy")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := npy.Write(f, pred); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return &artifact.Inputs{
		Index:     3,
		Paths:     artifact.Paths{Predicted: p, GroundTruth: p, Calib: filepath.Join(dir, "000003.txt")},
		Predicted: pred,
	}
}

func TestExec_Success(t *testing.T) {
	cmd := writeScript(t, "")
	pred := &npy.Array{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}
	in := sceneInputs(t, pred)

	var tee strings.Builder
	tmp := t.TempDir()
	e := &Exec{Command: cmd, TempDir: tmp, Tee: &tee}
	out, err := e.Correct(context.Background(), in, defaultOptions())
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if !slices.Equal(out.Data, pred.Data) {
		t.Errorf("out = %v", out.Data)
	}
	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("scratch dir not removed: %d entries", len(entries))
	}
}

func TestExec_NonZeroExit(t *testing.T) {
	cmd := writeScript(t, `echo "CG did not converge" >&2; exit 3`)
	in := sceneInputs(t, &npy.Array{Shape: []int{1}, Data: []float64{1}})

	_, err := (&Exec{Command: cmd}).Correct(context.Background(), in, defaultOptions())
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("err = %v, want *Failure", err)
	}
	if f.Kind != KindNonConvergence {
		t.Errorf("Kind = %s", f.Kind)
	}
	if !strings.Contains(f.Stderr, "did not converge") {
		t.Errorf("Stderr = %q", f.Stderr)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("exit error not preserved: %v", err)
	}
}

func TestExec_NoOutput(t *testing.T) {
	cmd := writeScript(t, "exit 0")
	in := sceneInputs(t, &npy.Array{Shape: []int{1}, Data: []float64{1}})

	_, err := (&Exec{Command: cmd}).Correct(context.Background(), in, defaultOptions())
	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindBadOutput {
		t.Fatalf("err = %v, want bad-output failure", err)
	}
}

func TestExec_ShapeMismatch(t *testing.T) {
	cmd := writeScript(t, "")
	in := sceneInputs(t, &npy.Array{Shape: []int{1, 2}, Data: []float64{1, 2}})
	// The program copies the file on disk; make the in-memory map disagree.
	in.Predicted = &npy.Array{Shape: []int{2, 1}, Data: []float64{1, 2}}

	_, err := (&Exec{Command: cmd}).Correct(context.Background(), in, defaultOptions())
	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindShape {
		t.Fatalf("err = %v, want shape failure", err)
	}
}

func TestExec_EmptyCommand(t *testing.T) {
	if _, err := (&Exec{}).Correct(context.Background(), &artifact.Inputs{}, Options{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}
