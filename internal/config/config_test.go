package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/backmassage/gdcbatch/internal/corrector"
)

func TestNormalizeDirArg(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no trailing slash", "/data/kitti/depth", "/data/kitti/depth"},
		{"single trailing slash", "/data/kitti/depth/", "/data/kitti/depth"},
		{"multiple trailing slashes", "/data/kitti/depth///", "/data/kitti/depth"},
		{"root path", "/", "/"},
		{"relative path", "output", "output"},
		{"relative with slash", "output/", "output"},
		{"empty string", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDirArg(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeDirArg(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.PredictedDir = "/in/pred"
	cfg.GroundTruthDir = "/in/gt"
	cfg.CalibDir = "/in/calib"
	cfg.OutputDir = "/out"
	cfg.SplitFile = "/in/val.txt"
	cfg.Corrector = Command{IdentityCorrector}
	return cfg
}

func TestValidate_Method(t *testing.T) {
	tests := []struct {
		name    string
		method  corrector.Method
		wantErr bool
	}{
		{"cg is valid", corrector.MethodCG, false},
		{"gmres is valid", corrector.MethodGMRES, false},
		{"empty is invalid", "", true},
		{"unknown is invalid", "bicgstab", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Method = tt.method
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Numeric(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero k", func(c *Config) { c.NeighborCount = 0 }, true},
		{"negative recon tol", func(c *Config) { c.ReconTolerance = -1 }, true},
		{"zero w tol", func(c *Config) { c.WeightTolerance = 0 }, true},
		{"inverted range", func(c *Config) { c.ConsiderRange = Range{Lo: 3, Hi: -0.1} }, true},
		{"empty range", func(c *Config) { c.ConsiderRange = Range{Lo: 1, Hi: 1} }, true},
		{"negative workers", func(c *Config) { c.Workers = -2 }, true},
		{"zero workers is sequential", func(c *Config) { c.Workers = 0 }, false},
		{"bad color mode", func(c *Config) { c.ColorMode = "sometimes" }, true},
		{"s3 endpoint without bucket", func(c *Config) { c.S3.Endpoint = "localhost:9000"; c.S3.Bucket = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_RequiresPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Corrector = Command{IdentityCorrector}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail when paths are empty and CheckOnly is false")
	}

	cfg = validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_RequiresCorrectorUnlessDryRun(t *testing.T) {
	cfg := validConfig()
	cfg.Corrector = nil
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without a corrector")
	}
	cfg.DryRun = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("dry run should not need a corrector, got: %v", err)
	}
}

func TestValidate_CheckOnlySkipsPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CheckOnly = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() should pass with empty paths when CheckOnly is true, got: %v", err)
	}
}

func TestValidate_HistoryNeedsLedger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryCount = 5
	if err := cfg.Validate(); err == nil {
		t.Error("--history without --ledger should fail")
	}
	cfg.LedgerPath = "runs.db"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidatePaths(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		inputs  []string
		wantErr bool
	}{
		{"separate directories", "/data/out", []string{"/data/pred", "/data/gt"}, false},
		{"output equals predicted", "/data/pred", []string{"/data/pred", "/data/gt"}, true},
		{"output equals groundtruth", "/data/gt", []string{"/data/pred", "/data/gt"}, true},
		{"output inside predicted", "/data/pred/gdc", []string{"/data/pred", "/data/gt"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.ValidatePaths(tt.output, tt.inputs...)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePaths(%q, %v) error = %v, wantErr %v",
					tt.output, tt.inputs, err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig_SaneDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.NeighborCount != 10 {
		t.Errorf("default k = %d, want 10", cfg.NeighborCount)
	}
	if cfg.ReconTolerance != 5e-4 {
		t.Errorf("default recon tol = %g, want 5e-4", cfg.ReconTolerance)
	}
	if cfg.Method != corrector.MethodCG {
		t.Errorf("default method = %q, want %q", cfg.Method, corrector.MethodCG)
	}
	if !cfg.Subsample {
		t.Error("default Subsample should be true")
	}
	if cfg.ConsiderRange != (Range{Lo: -0.1, Hi: 3.0}) {
		t.Errorf("default consider range = %v", cfg.ConsiderRange)
	}
	if cfg.Workers != 4 {
		t.Errorf("default workers = %d, want 4", cfg.Workers)
	}
	if cfg.DryRun {
		t.Error("default DryRun should be false")
	}
}

func TestParseFlags(t *testing.T) {
	cfg := DefaultConfig()
	args := []string{
		"--predicted", "/data/pred/",
		"--gt", "/data/gt",
		"--calib", "/data/calib",
		"-o", "/data/out/",
		"-s", "/data/val.txt",
		"-k", "12",
		"--method", "GMRES",
		"--disable-subsample",
		"--consider-range", "0.5,2.5",
		"--threads", "8",
		"--corrector", "python3 run_gdc.py --quiet",
		"--no-color",
	}
	if err := ParseFlags(&cfg, args, "test"); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	if cfg.PredictedDir != "/data/pred" || cfg.OutputDir != "/data/out" {
		t.Errorf("dirs not normalized: %q %q", cfg.PredictedDir, cfg.OutputDir)
	}
	if cfg.GroundTruthDir != "/data/gt" || cfg.CalibDir != "/data/calib" || cfg.SplitFile != "/data/val.txt" {
		t.Errorf("dataset paths wrong: %+v", cfg)
	}
	if cfg.NeighborCount != 12 {
		t.Errorf("k = %d, want 12", cfg.NeighborCount)
	}
	if cfg.Method != corrector.MethodGMRES {
		t.Errorf("method = %q, want gmres", cfg.Method)
	}
	if cfg.Subsample {
		t.Error("--disable-subsample should clear Subsample")
	}
	if cfg.ConsiderRange != (Range{Lo: 0.5, Hi: 2.5}) {
		t.Errorf("consider range = %v", cfg.ConsiderRange)
	}
	if cfg.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Workers)
	}
	if want := (Command{"python3", "run_gdc.py", "--quiet"}); !reflect.DeepEqual(cfg.Corrector, want) {
		t.Errorf("corrector = %v, want %v", cfg.Corrector, want)
	}
	if cfg.ColorMode != ColorNever {
		t.Errorf("color mode = %q, want never", cfg.ColorMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad method", []string{"--method", "lu"}},
		{"bad range", []string{"--consider-range", "1"}},
		{"bad range value", []string{"--consider-range", "a,b"}},
		{"positional args", []string{"extra"}},
		{"unknown flag", []string{"--frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if err := ParseFlags(&cfg, tt.args, "test"); err == nil {
				t.Errorf("ParseFlags(%v) should fail", tt.args)
			}
		})
	}
}

func TestParseFlags_ConfigFileThenFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gdc.yaml")
	yaml := `predicted_dir: /file/pred
groundtruth_dir: /file/gt
calib_dir: /file/calib
output_dir: /file/out
split_file: /file/split.txt
k: 7
method: gmres
consider_range: [0.0, 2.0]
workers: 2
corrector: [python3, run_gdc.py]
s3:
  endpoint: localhost:9000
  bucket: gdc-out
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := ParseFlags(&cfg, []string{"--config", path, "-k", "15"}, "test"); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if cfg.NeighborCount != 15 {
		t.Errorf("flag should override file: k = %d, want 15", cfg.NeighborCount)
	}
	if cfg.Method != corrector.MethodGMRES {
		t.Errorf("method from file = %q, want gmres", cfg.Method)
	}
	if cfg.ConsiderRange != (Range{Lo: 0, Hi: 2}) {
		t.Errorf("consider range from file = %v", cfg.ConsiderRange)
	}
	if cfg.Workers != 2 {
		t.Errorf("workers from file = %d, want 2", cfg.Workers)
	}
	if cfg.OutputDir != "/file/out" {
		t.Errorf("output dir from file = %q", cfg.OutputDir)
	}
	if cfg.S3.Endpoint != "localhost:9000" || cfg.S3.Bucket != "gdc-out" {
		t.Errorf("s3 from file = %+v", cfg.S3)
	}
	if !cfg.Subsample {
		t.Error("subsample default should survive a file that does not mention it")
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestParseFlags_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gdc.yaml")
	if err := os.WriteFile(path, []byte("workers: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvWorkers, "6")
	t.Setenv(EnvS3AccessKey, "AKIA")
	t.Setenv(EnvS3SecretKey, "secret")

	cfg := DefaultConfig()
	if err := ParseFlags(&cfg, []string{"--config=" + path}, "test"); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if cfg.Workers != 6 {
		t.Errorf("workers = %d, want 6 from env", cfg.Workers)
	}
	if cfg.S3.AccessKey != "AKIA" || cfg.S3.SecretKey != "secret" {
		t.Errorf("credentials not taken from env: %+v", cfg.S3)
	}
}

func TestParseFlags_BadEnv(t *testing.T) {
	t.Setenv(EnvWorkers, "many")
	cfg := DefaultConfig()
	if err := ParseFlags(&cfg, nil, "test"); err == nil {
		t.Error("non-numeric GDC_WORKERS should fail")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	if err := LoadFile(filepath.Join(dir, "missing.yaml"), &cfg); err == nil {
		t.Error("missing file should fail")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("consider_range: [1, 2, 3]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := LoadFile(bad, &cfg); err == nil {
		t.Error("three-item consider_range should fail")
	}
}

func TestCommand_ScalarYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gdc.yaml")
	if err := os.WriteFile(path, []byte("corrector: python3 run_gdc.py\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatal(err)
	}
	if want := (Command{"python3", "run_gdc.py"}); !reflect.DeepEqual(cfg.Corrector, want) {
		t.Errorf("corrector = %v, want %v", cfg.Corrector, want)
	}
	if cfg.Corrector.IsIdentity() {
		t.Error("external command reported as identity")
	}
	if !(Command{"Identity"}).IsIdentity() {
		t.Error("identity selection should be case-insensitive")
	}
}

func TestConfigFileArg(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--config", "a.yaml"}, "a.yaml"},
		{[]string{"-config", "b.yaml"}, "b.yaml"},
		{[]string{"-v", "--config=c.yaml"}, "c.yaml"},
		{[]string{"--configure", "x"}, ""},
		{[]string{"--", "--config", "d.yaml"}, ""},
		{[]string{"--config"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := configFileArg(tt.args); got != tt.want {
			t.Errorf("configFileArg(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Verbose = true
	opts := cfg.Options()
	if opts.NeighborCount != 10 || opts.Method != corrector.MethodCG || !opts.Subsample || !opts.Verbose {
		t.Errorf("Options() = %+v", opts)
	}
	if opts.ConsiderRange != [2]float64{-0.1, 3.0} {
		t.Errorf("ConsiderRange = %v", opts.ConsiderRange)
	}
}
