// Package config holds runtime configuration: defaults, YAML config file
// loading, environment overrides, CLI flag parsing, and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/backmassage/gdcbatch/internal/corrector"
	"github.com/backmassage/gdcbatch/internal/objectstore"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// IdentityCorrector is the corrector name that selects the built-in
// pass-through routine instead of an external program.
const IdentityCorrector = "identity"

// Config holds all runtime settings. It is populated by [DefaultConfig],
// optionally overlaid by [LoadFile] and [ApplyEnv], then mutated by
// [ParseFlags]. After validation it is treated as read-only and handed by
// value to the scheduler.
type Config struct {
	// Dataset roots.
	PredictedDir   string `yaml:"predicted_dir"`
	GroundTruthDir string `yaml:"groundtruth_dir"`
	CalibDir       string `yaml:"calib_dir"`
	OutputDir      string `yaml:"output_dir"`
	SplitFile      string `yaml:"split_file"`

	// Correction options shared read-only by every job.
	NeighborCount   int              `yaml:"k"`         // Default: 10.
	ReconTolerance  float64          `yaml:"recon_tol"` // Default: 5e-4.
	Method          corrector.Method `yaml:"method"`    // Default: "cg".
	Subsample       bool             `yaml:"subsample"` // Default: true. Cleared by --disable-subsample.
	ConsiderRange   Range            `yaml:"consider_range"`
	WeightTolerance float64          `yaml:"w_tol"` // Default: 1e-5.

	// Scheduling.
	Workers int `yaml:"workers"` // Default: 4. <= 1 runs sequentially.

	// Corrector is the external correction program and its leading
	// arguments, or [IdentityCorrector].
	Corrector Command `yaml:"corrector"`

	// Behavior flags.
	DryRun      bool `yaml:"dry_run"`
	FailOnError bool `yaml:"fail_on_error"`

	// Run ledger and output mirror (both optional).
	LedgerPath   string             `yaml:"ledger"`
	HistoryCount int                `yaml:"-"` // --history N prints recent runs and exits.
	S3           objectstore.Config `yaml:"s3"`

	// Display and logging.
	Verbose    bool      `yaml:"verbose"`
	ColorMode  ColorMode `yaml:"color"`
	LogFile    string    `yaml:"log"`
	CheckOnly  bool      `yaml:"-"`
	ConfigFile string    `yaml:"-"`
}

// Range is a closed [Lo, Hi] interval. In YAML it is written as a two-item
// sequence: consider_range: [-0.1, 3.0].
type Range struct {
	Lo float64
	Hi float64
}

// UnmarshalYAML decodes a two-item sequence into r.
func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	var vals []float64
	if err := node.Decode(&vals); err != nil {
		return fmt.Errorf("consider_range: %w", err)
	}
	if len(vals) != 2 {
		return fmt.Errorf("consider_range needs exactly 2 values, got %d", len(vals))
	}
	r.Lo, r.Hi = vals[0], vals[1]
	return nil
}

// String formats r the way --consider-range accepts it.
func (r Range) String() string {
	return fmt.Sprintf("%g,%g", r.Lo, r.Hi)
}

// Command is an external program plus leading arguments. In YAML it may be a
// single whitespace-separated string or a list.
type Command []string

// UnmarshalYAML accepts either a scalar or a sequence.
func (c *Command) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*c = strings.Fields(node.Value)
		return nil
	}
	var parts []string
	if err := node.Decode(&parts); err != nil {
		return fmt.Errorf("corrector: %w", err)
	}
	*c = parts
	return nil
}

// IsIdentity reports whether the built-in identity corrector was selected.
func (c Command) IsIdentity() bool {
	return len(c) == 1 && strings.EqualFold(c[0], IdentityCorrector)
}

// DefaultConfig returns a Config with the stock GDC solver defaults.
func DefaultConfig() Config {
	return Config{
		NeighborCount:   10,
		ReconTolerance:  5e-4,
		Method:          corrector.MethodCG,
		Subsample:       true,
		ConsiderRange:   Range{Lo: -0.1, Hi: 3.0},
		WeightTolerance: 1e-5,
		Workers:         4,
		ColorMode:       ColorAuto,
		S3:              objectstore.DefaultConfig(),
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the file
// keep their current values.
func LoadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

// Options returns the correction options every job receives.
func (c *Config) Options() corrector.Options {
	return corrector.Options{
		NeighborCount:   c.NeighborCount,
		ReconTolerance:  c.ReconTolerance,
		Method:          c.Method,
		Subsample:       c.Subsample,
		ConsiderRange:   [2]float64{c.ConsiderRange.Lo, c.ConsiderRange.Hi},
		WeightTolerance: c.WeightTolerance,
		Verbose:         c.Verbose,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks enum and numeric fields. When not in CheckOnly or history
// mode, it also requires the dataset roots, the split file, and a corrector.
func (c *Config) Validate() error {
	switch c.Method {
	case corrector.MethodCG, corrector.MethodGMRES:
		// valid
	default:
		return errors.New("invalid method (use 'cg' or 'gmres')")
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	if c.NeighborCount <= 0 {
		return fmt.Errorf("k must be positive (got %d)", c.NeighborCount)
	}
	if c.ReconTolerance <= 0 {
		return fmt.Errorf("recon-tol must be positive (got %g)", c.ReconTolerance)
	}
	if c.WeightTolerance <= 0 {
		return fmt.Errorf("w-tol must be positive (got %g)", c.WeightTolerance)
	}
	if c.ConsiderRange.Lo >= c.ConsiderRange.Hi {
		return fmt.Errorf("consider-range must be increasing (got %s)", c.ConsiderRange)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative (got %d)", c.Workers)
	}
	if c.S3.Enabled() {
		if err := c.S3.Validate(); err != nil {
			return err
		}
	}

	if c.HistoryCount > 0 {
		if c.LedgerPath == "" {
			return errors.New("--history needs --ledger")
		}
		return nil
	}
	if c.CheckOnly {
		return nil
	}

	var missing []string
	for _, p := range []struct{ name, val string }{
		{"--predicted", c.PredictedDir},
		{"--groundtruth", c.GroundTruthDir},
		{"--calib", c.CalibDir},
		{"--output", c.OutputDir},
		{"--split", c.SplitFile},
	} {
		if p.val == "" {
			missing = append(missing, p.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required %s", strings.Join(missing, ", "))
	}
	if len(c.Corrector) == 0 && !c.DryRun {
		return errors.New("need --corrector (external program or 'identity')")
	}
	return nil
}

// ValidatePaths ensures the resolved output directory is not one of the
// input depth map directories. Outputs share the <index>.npy naming with the
// inputs, so writing there would overwrite them. Arguments must be absolute,
// symlink-resolved paths.
func (c *Config) ValidatePaths(outputAbs string, inputAbs ...string) error {
	for _, in := range inputAbs {
		if outputAbs == in {
			return fmt.Errorf("output directory must differ from input directory %s", in)
		}
	}
	return nil
}
