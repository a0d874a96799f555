// Command gdcbatch is the CLI entrypoint for the GDC depth-correction batch
// runner.
//
// It parses flags, validates configuration and paths, and either runs system
// diagnostics (--check), prints run history (--history) or processes every
// index of a split file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/backmassage/gdcbatch/internal/artifact"
	"github.com/backmassage/gdcbatch/internal/check"
	"github.com/backmassage/gdcbatch/internal/config"
	"github.com/backmassage/gdcbatch/internal/corrector"
	"github.com/backmassage/gdcbatch/internal/display"
	"github.com/backmassage/gdcbatch/internal/ledger"
	"github.com/backmassage/gdcbatch/internal/logging"
	"github.com/backmassage/gdcbatch/internal/objectstore"
	"github.com/backmassage/gdcbatch/internal/pipeline"
	"github.com/backmassage/gdcbatch/internal/term"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr via fmt.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, os.Args[1:], version); err != nil {
		fmt.Fprintf(os.Stderr, "gdcbatch: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "gdcbatch: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gdcbatch: %v\n", err)
		return 1
	}
	defer log.Close()

	// Phase 2: Logger available. All output goes through log from here on.
	display.PrintBanner(log.Writer(), version)

	if cfg.HistoryCount > 0 {
		return printHistory(&cfg, log)
	}
	if cfg.CheckOnly {
		if !check.RunCheck(&cfg, log) {
			return 1
		}
		return 0
	}

	// The output directory shares <index>.npy names with the depth map
	// inputs, so it must not be one of them.
	outputAbs := resolvePath(cfg.OutputDir)
	if err := cfg.ValidatePaths(outputAbs, resolvePath(cfg.PredictedDir), resolvePath(cfg.GroundTruthDir)); err != nil {
		log.Error("%v", err)
		return 1
	}
	if err := check.CheckDeps(&cfg); err != nil {
		log.Error("%v", err)
		return 1
	}

	runID := uuid.New()
	log.Info("=== gdcbatch v%s (%s) ===", version, commit)
	log.Info("Run:         %s", runID)
	log.Info("Predicted:   %s", cfg.PredictedDir)
	log.Info("Groundtruth: %s", cfg.GroundTruthDir)
	log.Info("Calib:       %s", cfg.CalibDir)
	log.Info("Out:         %s", cfg.OutputDir)
	log.Info("Options: k=%d recon-tol=%g method=%s subsample=%t consider-range=%s w-tol=%g workers=%d",
		cfg.NeighborCount, cfg.ReconTolerance, cfg.Method, cfg.Subsample, cfg.ConsiderRange,
		cfg.WeightTolerance, cfg.Workers)
	if cfg.DryRun {
		log.Warn("DRY RUN: no correction will run and no files will be written")
	}

	// Phase 3: Signal handling. Cancel on SIGINT/SIGTERM so the scheduler
	// stops submitting; jobs already running finish and are recorded.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("Received interrupt, finishing running jobs…")
		cancel()
	}()

	// Phase 4: Wire the scheduler and its optional collaborators.
	store := artifact.NewStore(artifact.Roots{
		Predicted:   cfg.PredictedDir,
		GroundTruth: cfg.GroundTruthDir,
		Calib:       cfg.CalibDir,
		Output:      cfg.OutputDir,
	})
	settings := pipeline.Settings{
		Workers: cfg.Workers,
		DryRun:  cfg.DryRun,
		Verbose: cfg.Verbose,
		Options: cfg.Options(),
	}
	sched := pipeline.NewScheduler(settings, store, newCorrector(&cfg), log)

	progress := display.NewProgress(log.Writer(), term.IsTerminal(os.Stdout))
	sched.Progress = progress

	var ledgerRun *ledger.Run
	if cfg.LedgerPath != "" {
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			log.Error("%v", err)
			return 1
		}
		defer l.Close()
		ledgerRun, err = l.BeginRun(ctx, ledger.RunInfo{
			ID:        runID,
			SplitFile: cfg.SplitFile,
			Workers:   cfg.Workers,
			DryRun:    cfg.DryRun,
		})
		if err != nil {
			log.Error("%v", err)
			return 1
		}
		sched.Recorder = ledgerRun
		log.Info("Ledger: %s", cfg.LedgerPath)
	}

	if cfg.S3.Enabled() && !cfg.DryRun {
		mirror, err := objectstore.NewMirror(ctx, cfg.S3)
		if err != nil {
			log.Error("Output mirror: %v", err)
			return 1
		}
		sched.Mirror = mirror
		log.Info("Mirror: %s", mirror.Target())
	}
	log.Info("")

	// Phase 5: Run.
	res, err := sched.Run(ctx, cfg.SplitFile)
	progress.Finish()
	if err != nil {
		log.Error("%v", err)
		return 1
	}

	rep := pipeline.Summarize(res)
	rep.Log(log, cfg.Verbose)
	if ledgerRun != nil {
		// The run context may already be cancelled; the summary still
		// belongs in the ledger.
		if err := ledgerRun.Finish(context.WithoutCancel(ctx), rep); err != nil {
			log.Warn("Ledger: %v", err)
		}
	}

	if cfg.FailOnError && rep.HasFailures() {
		return 1
	}
	return 0
}

// newCorrector selects the built-in identity routine or the external program.
func newCorrector(cfg *config.Config) corrector.Corrector {
	if cfg.Corrector.IsIdentity() || (cfg.DryRun && len(cfg.Corrector) == 0) {
		return corrector.Identity{}
	}
	e := &corrector.Exec{Command: cfg.Corrector}
	if cfg.Verbose {
		e.Tee = os.Stderr
	}
	return e
}

// printHistory lists the most recent runs from the ledger.
func printHistory(cfg *config.Config, log *logging.Logger) int {
	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	defer l.Close()

	ctx := context.Background()
	runs, err := l.RecentRuns(ctx, cfg.HistoryCount)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	if len(runs) == 0 {
		log.Info("No runs recorded in %s", cfg.LedgerPath)
		return 0
	}
	for _, r := range runs {
		state := "finished " + display.FormatRelative(r.Finished)
		if r.Finished.IsZero() {
			state = "did not finish"
		}
		dry := ""
		if r.DryRun {
			dry = " [dry run]"
		}
		log.Info("%s  %s  %s%s", r.ID, r.Started.Local().Format("2006-01-02 15:04"), state, dry)
		log.Info("    %s: %s total, %d ok, %d failed, %d skipped, %d not started, %s written",
			r.SplitFile, display.FormatCount(r.Total), r.Succeeded, r.Failed, r.Skipped,
			r.NotStarted, display.FormatBytes(r.Bytes))

		if r.Failed == 0 {
			continue
		}
		fails, err := l.Failures(ctx, r.ID)
		if err != nil && !errors.Is(err, ledger.ErrUnknownRun) {
			log.Warn("    %v", err)
			continue
		}
		for _, f := range fails {
			log.Warn("    %s [%s] %s", f.Index.Name(), f.Kind, f.Error)
		}
	}
	return 0
}

// resolvePath returns the absolute, symlink-resolved form of path. Paths
// that do not exist yet are made absolute without resolving symlinks.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
