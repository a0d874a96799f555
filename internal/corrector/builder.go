package corrector

import (
	"strconv"

	"github.com/backmassage/gdcbatch/internal/artifact"
)

// BuildArgs returns the full argv for one correction program call: the
// configured command followed by the input paths, the output path and every
// option.
func BuildArgs(command []string, in *artifact.Inputs, outPath string, opts Options) []string {
	args := make([]string, 0, len(command)+24)
	args = append(args, command...)

	// --- Files ---
	args = append(args,
		"--predicted", in.Paths.Predicted,
		"--groundtruth", in.Paths.GroundTruth,
		"--calib", in.Paths.Calib,
		"--output", outPath,
	)

	// --- Options ---
	args = append(args,
		"--k", strconv.Itoa(opts.NeighborCount),
		"--recon-tol", formatFloat(opts.ReconTolerance),
		"--method", string(opts.Method),
		"--subsample="+strconv.FormatBool(opts.Subsample),
		"--consider-range", formatFloat(opts.ConsiderRange[0])+","+formatFloat(opts.ConsiderRange[1]),
		"--w-tol", formatFloat(opts.WeightTolerance),
	)
	if opts.Verbose {
		args = append(args, "--verbose")
	}
	return args
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
