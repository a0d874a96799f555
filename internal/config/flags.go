package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into dataset, correction, scheduling, outputs, display, and utility.
// Negated flags (e.g. --disable-subsample) are applied after Parse so file/env values hold unless set.

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/backmassage/gdcbatch/internal/corrector"
)

// ParseFlags builds cfg from args (without the program name). Precedence,
// lowest first: cfg as passed in, the --config YAML file, the environment,
// then flags. On --help or --version it prints and exits. On error it
// returns non-nil (e.g. unknown flag, unexpected positional args).
func ParseFlags(cfg *Config, args []string, version string) error {
	if path := configFileArg(args); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return err
	}

	fs := flag.NewFlagSet("gdcbatch", flag.ContinueOnError)
	fs.Usage = func() { printUsage(version) }

	// Negated/override flags: we capture bools then apply to cfg after Parse,
	// so that earlier layers hold unless the user passes the flag.
	var negated negatedFlags

	defineDatasetFlags(fs, cfg)
	defineCorrectionFlags(fs, cfg, &negated)
	defineSchedulingFlags(fs, cfg)
	defineOutputFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, &negated)
	defineUtilityFlags(fs, cfg, &negated)

	if err := fs.Parse(args); err != nil {
		return err
	}

	applyNegatedFlags(cfg, &negated)

	if negated.showHelp {
		printUsage(version)
		os.Exit(0)
	}
	if negated.showVersion {
		fmt.Fprintln(os.Stdout, "gdcbatch v"+version)
		os.Exit(0)
	}

	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	normalizeDirs(cfg)
	return nil
}

// negatedFlags holds boolean flags that are applied after Parse.
type negatedFlags struct {
	disableSubsample bool
	forceColor       bool
	noColor          bool
	showVersion      bool
	showHelp         bool
}

// defineDatasetFlags registers the four roots and the split file.
func defineDatasetFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.PredictedDir, "predicted", cfg.PredictedDir, "Directory of predicted depth maps (<index>.npy)")
	fs.StringVar(&cfg.PredictedDir, "input", cfg.PredictedDir, "Same as --predicted")
	fs.StringVar(&cfg.GroundTruthDir, "groundtruth", cfg.GroundTruthDir, "Directory of ground-truth depth maps (<index>.npy)")
	fs.StringVar(&cfg.GroundTruthDir, "gt", cfg.GroundTruthDir, "Same as --groundtruth")
	fs.StringVar(&cfg.CalibDir, "calib", cfg.CalibDir, "Directory of calibration files (<index>.txt)")
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "Directory for corrected depth maps")
	fs.StringVar(&cfg.OutputDir, "o", cfg.OutputDir, "Same as --output")
	fs.StringVar(&cfg.SplitFile, "split", cfg.SplitFile, "Split file: one scene index per line")
	fs.StringVar(&cfg.SplitFile, "s", cfg.SplitFile, "Same as --split")
}

// defineCorrectionFlags registers the options passed to the correction routine.
func defineCorrectionFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.IntVar(&cfg.NeighborCount, "k", cfg.NeighborCount, "k for KNN")
	fs.Float64Var(&cfg.ReconTolerance, "recon-tol", cfg.ReconTolerance, "Reconstruction tolerance")
	fs.Var(&methodValue{&cfg.Method}, "method", "Solver: cg | gmres")
	fs.BoolVar(&n.disableSubsample, "disable-subsample", false, "Do not subsample points")
	fs.Var(&rangeValue{&cfg.ConsiderRange}, "consider-range", "Depth range considered, as lo,hi")
	fs.Float64Var(&cfg.WeightTolerance, "w-tol", cfg.WeightTolerance, "Convergence weight tolerance")
	fs.Var(&commandValue{&cfg.Corrector}, "corrector", "Correction program and leading args, or 'identity'")
}

// defineSchedulingFlags registers -j/--workers (and the legacy --threads).
func defineSchedulingFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Worker pool size (<=1 runs sequentially)")
	fs.IntVar(&cfg.Workers, "j", cfg.Workers, "Same as --workers")
	fs.IntVar(&cfg.Workers, "threads", cfg.Workers, "Same as --workers")
}

// defineOutputFlags registers dry-run, fail-on-error, ledger, and the S3 mirror.
func defineOutputFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "List pending indices; do not correct or write")
	fs.BoolVar(&cfg.DryRun, "d", cfg.DryRun, "Same as --dry-run")
	fs.BoolVar(&cfg.FailOnError, "fail-on-error", cfg.FailOnError, "Exit 1 when any index failed")
	fs.StringVar(&cfg.LedgerPath, "ledger", cfg.LedgerPath, "Record runs and outcomes in this SQLite file")
	fs.StringVar(&cfg.S3.Endpoint, "s3-endpoint", cfg.S3.Endpoint, "Mirror outputs to this S3-compatible endpoint")
	fs.StringVar(&cfg.S3.Bucket, "s3-bucket", cfg.S3.Bucket, "Mirror bucket")
	fs.StringVar(&cfg.S3.Prefix, "s3-prefix", cfg.S3.Prefix, "Key prefix inside the mirror bucket")
	fs.StringVar(&cfg.S3.Region, "s3-region", cfg.S3.Region, "Mirror bucket region")
	fs.BoolVar(&cfg.S3.UseSSL, "s3-ssl", cfg.S3.UseSSL, "Use TLS for the mirror endpoint")
}

// defineDisplayFlags registers --color, --no-color, verbose, --check, --log.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Verbose output (also passed to the corrector)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Same as --verbose")
	fs.BoolVar(&cfg.CheckOnly, "check", false, "Run pre-flight diagnostics and exit")
	fs.BoolVar(&cfg.CheckOnly, "c", false, "Same as --check")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "Append logs to file")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "Same as --log")
}

// defineUtilityFlags registers --config, --history, --version and --help.
func defineUtilityFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	// --config is consumed by configFileArg before parsing; registered so Parse accepts it.
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file")
	fs.IntVar(&cfg.HistoryCount, "history", 0, "Print the last N runs from --ledger and exit")
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyNegatedFlags copies negated and override flag values into cfg.
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.disableSubsample {
		cfg.Subsample = false
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

func normalizeDirs(cfg *Config) {
	cfg.PredictedDir = NormalizeDirArg(cfg.PredictedDir)
	cfg.GroundTruthDir = NormalizeDirArg(cfg.GroundTruthDir)
	cfg.CalibDir = NormalizeDirArg(cfg.CalibDir)
	cfg.OutputDir = NormalizeDirArg(cfg.OutputDir)
}

// configFileArg finds the --config value without a full parse, accepting
// "-config x", "--config x" and the "=" forms.
func configFileArg(args []string) string {
	for i, a := range args {
		if a == "--" {
			return ""
		}
		name, val, hasVal := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasVal {
			return val
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// printUsage writes the help text to stderr. Column-aligned for readability.
func printUsage(version string) {
	const col1 = 30
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "gdcbatch v" + version + " - batch graph-based depth correction"},
		{"", ""},
		{"  gdcbatch [OPTIONS] --predicted DIR --groundtruth DIR --calib DIR --output DIR --split FILE", ""},
		{"", ""},
		{"Dataset", ""},
		{"  --predicted <dir>", "Predicted depth maps (<index>.npy)"},
		{"  --groundtruth <dir>", "Ground-truth depth maps (<index>.npy)"},
		{"  --calib <dir>", "Calibration files (<index>.txt)"},
		{"  -o, --output <dir>", "Corrected depth maps are written here"},
		{"  -s, --split <file>", "Scene indices, one per line"},
		{"", ""},
		{"Correction", ""},
		{"  --corrector <cmd>", "Correction program, or 'identity'"},
		{"  -k <n>", "k for KNN (default: 10)"},
		{"  --recon-tol <f>", "Reconstruction tolerance (default: 5e-4)"},
		{"  --method <cg|gmres>", "Sparse solver (default: cg)"},
		{"  --disable-subsample", "Do not subsample points"},
		{"  --consider-range <lo,hi>", "Depth range considered (default: -0.1,3)"},
		{"  --w-tol <f>", "Convergence weight tolerance (default: 1e-5)"},
		{"", ""},
		{"Scheduling & output", ""},
		{"  -j, --workers <n>", "Worker pool size; <=1 is sequential (default: 4)"},
		{"  -d, --dry-run", "List pending indices only"},
		{"  --fail-on-error", "Exit 1 when any index failed"},
		{"  --ledger <file>", "Record runs in a SQLite ledger"},
		{"  --s3-endpoint <host>", "Mirror outputs to S3-compatible storage"},
		{"  --s3-bucket <name>", "Mirror bucket"},
		{"  --s3-prefix <prefix>", "Mirror key prefix"},
		{"  --s3-region <region>", "Mirror bucket region"},
		{"  --s3-ssl", "Use TLS for the mirror"},
		{"", ""},
		{"Display", ""},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"", ""},
		{"Utility", ""},
		{"  --config <file>", "YAML config file (flags override it)"},
		{"  -l, --log <path>", "Append logs to file"},
		{"  -c, --check", "Pre-flight diagnostics"},
		{"  --history <n>", "Print the last n runs from --ledger"},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(os.Stderr)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(os.Stderr, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(os.Stderr, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(os.Stderr, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}

// flag.Value adapters so we can use typed fields with flag.Var.

type methodValue struct{ p *corrector.Method }

func (m *methodValue) String() string {
	if m.p == nil {
		return ""
	}
	return string(*m.p)
}
func (m *methodValue) Set(s string) error {
	switch strings.ToLower(s) {
	case "cg":
		*m.p = corrector.MethodCG
	case "gmres":
		*m.p = corrector.MethodGMRES
	default:
		return fmt.Errorf("invalid method %q (use 'cg' or 'gmres')", s)
	}
	return nil
}

type rangeValue struct{ p *Range }

func (r *rangeValue) String() string {
	if r.p == nil {
		return ""
	}
	return r.p.String()
}
func (r *rangeValue) Set(s string) error {
	parts := strings.FieldsFunc(s, func(c rune) bool { return c == ',' || c == ' ' })
	if len(parts) != 2 {
		return fmt.Errorf("consider-range needs lo,hi (got %q)", s)
	}
	lo, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return fmt.Errorf("consider-range lo: %w", err)
	}
	hi, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return fmt.Errorf("consider-range hi: %w", err)
	}
	*r.p = Range{Lo: lo, Hi: hi}
	return nil
}

type commandValue struct{ p *Command }

func (c *commandValue) String() string {
	if c.p == nil {
		return ""
	}
	return strings.Join(*c.p, " ")
}
func (c *commandValue) Set(s string) error {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return fmt.Errorf("corrector must not be empty")
	}
	*c.p = fields
	return nil
}
