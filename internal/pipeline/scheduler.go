package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/backmassage/gdcbatch/internal/artifact"
	"github.com/backmassage/gdcbatch/internal/corrector"
)

// Logger is the logging surface the scheduler needs.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// Progress is told about every completed job, in completion order.
type Progress interface {
	Advance(done, total int, o Outcome)
}

// Recorder persists outcomes. It is only called from the collector, never
// concurrently.
type Recorder interface {
	RecordOutcome(o Outcome) error
}

// Mirror copies a written output elsewhere. It is called from workers and
// must be safe for concurrent use.
type Mirror interface {
	Upload(ctx context.Context, name, localPath string) error
}

// Settings are the read-only run parameters.
type Settings struct {
	Workers int // <= 1 runs jobs sequentially in the calling goroutine
	DryRun  bool
	Verbose bool
	Options corrector.Options
}

// Scheduler runs one job per scene index. Optional collaborators are set as
// fields before calling Run.
type Scheduler struct {
	settings Settings
	store    *artifact.Store
	invoker  *Invoker
	log      Logger

	Progress Progress
	Recorder Recorder
	Mirror   Mirror
	OnPhase  func(Phase)
}

// NewScheduler returns a scheduler over store using c. A nil log discards
// messages.
func NewScheduler(settings Settings, store *artifact.Store, c corrector.Corrector, log Logger) *Scheduler {
	if log == nil {
		log = nopLogger{}
	}
	return &Scheduler{
		settings: settings,
		store:    store,
		invoker:  NewInvoker(store, c, settings.Options),
		log:      log,
	}
}

// Run reads the split file, prepares the output root and processes every
// index. The returned error is always an ErrConfiguration; per-index
// problems are reported in the RunResult.
func (s *Scheduler) Run(ctx context.Context, splitFile string) (*RunResult, error) {
	s.phase(PhaseInitializing)
	indices, err := ReadSplit(splitFile)
	if err != nil {
		return nil, err
	}
	if !s.settings.DryRun {
		if err := s.store.EnsureOutputDir(); err != nil {
			return nil, fmt.Errorf("%w: output directory: %w", ErrConfiguration, err)
		}
	}
	s.log.Info("Found %d indices in %s", len(indices), splitFile)
	return s.RunIndices(ctx, indices), nil
}

// RunIndices processes indices. Indices whose output already exists are
// skipped. Cancelling ctx stops further submissions; jobs already started
// run to completion.
func (s *Scheduler) RunIndices(ctx context.Context, indices []SceneIndex) *RunResult {
	res := newRunResult(len(indices), s.settings.DryRun)
	defer func() {
		res.Elapsed = time.Since(res.Started)
		s.phase(PhaseDone)
	}()
	if len(indices) == 0 {
		return res
	}

	pending := s.partition(indices, res)
	if s.settings.DryRun {
		s.phase(PhaseDispatching)
		for _, idx := range pending {
			s.log.Info("[DRY] Would correct %s", idx.Name())
		}
		res.Planned = pending
		s.phase(PhaseDraining)
		return res
	}
	if len(pending) == 0 {
		s.phase(PhaseDispatching)
		s.phase(PhaseDraining)
		return res
	}

	// Started jobs must finish even after cancellation.
	jobCtx := context.WithoutCancel(ctx)

	if s.settings.Workers <= 1 {
		s.runSequential(ctx, jobCtx, pending, res)
	} else {
		s.runParallel(ctx, jobCtx, pending, res)
	}
	return res
}

// partition splits indices into those still to do and those already done.
func (s *Scheduler) partition(indices []SceneIndex, res *RunResult) []SceneIndex {
	pending := make([]SceneIndex, 0, len(indices))
	for _, idx := range indices {
		if s.store.OutputExists(int(idx)) {
			s.log.Debug(s.settings.Verbose, "Skip (exists): %s", idx.Name())
			res.Skipped = append(res.Skipped, idx)
			continue
		}
		pending = append(pending, idx)
	}
	if len(res.Skipped) > 0 {
		s.log.Info("Skipping %d indices with existing output", len(res.Skipped))
	}
	return pending
}

func (s *Scheduler) runSequential(ctx, jobCtx context.Context, pending []SceneIndex, res *RunResult) {
	s.phase(PhaseDispatching)
	c := s.newCollector(res, len(pending))
	for i, idx := range pending {
		if ctx.Err() != nil {
			s.stopped(res, pending[i:])
			break
		}
		res.Submitted = append(res.Submitted, idx)
		c.collect(s.process(jobCtx, idx))
	}
	s.phase(PhaseDraining)
}

func (s *Scheduler) runParallel(ctx, jobCtx context.Context, pending []SceneIndex, res *RunResult) {
	workers := s.settings.Workers
	if workers > len(pending) {
		workers = len(pending)
	}
	jobs := make(chan SceneIndex, workers)
	results := make(chan Outcome, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- s.process(jobCtx, idx)
			}
		}()
	}

	c := s.newCollector(res, len(pending))
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range results {
			c.collect(o)
		}
	}()

	s.phase(PhaseDispatching)
dispatch:
	for i, idx := range pending {
		if ctx.Err() != nil {
			s.stopped(res, pending[i:])
			break
		}
		select {
		case jobs <- idx:
			res.Submitted = append(res.Submitted, idx)
		case <-ctx.Done():
			s.stopped(res, pending[i:])
			break dispatch
		}
	}

	s.phase(PhaseDraining)
	close(jobs)
	wg.Wait()
	close(results)
	<-collected
}

func (s *Scheduler) stopped(res *RunResult, rest []SceneIndex) {
	res.NotStarted = append(res.NotStarted, rest...)
	s.log.Warn("Interrupted: %d indices not started", len(rest))
}

// process runs one job: load inputs, correct, write, mirror.
func (s *Scheduler) process(ctx context.Context, idx SceneIndex) Outcome {
	in, err := s.store.ResolveInputs(int(idx))
	if err != nil {
		return failure(idx, err, "")
	}
	o := s.invoker.Run(ctx, in)
	if o.OK && s.Mirror != nil {
		if err := s.Mirror.Upload(ctx, idx.Name()+artifact.DepthExt, o.Path); err != nil {
			o.MirrorErr = err
		}
	}
	return o
}

func (s *Scheduler) phase(p Phase) {
	s.log.Debug(s.settings.Verbose, "Phase: %s", p)
	if s.OnPhase != nil {
		s.OnPhase(p)
	}
}

// collector owns the RunResult while jobs are in flight. Only one goroutine
// calls collect.
type collector struct {
	s     *Scheduler
	res   *RunResult
	total int
	done  int
}

func (s *Scheduler) newCollector(res *RunResult, total int) *collector {
	return &collector{s: s, res: res, total: total}
}

func (c *collector) collect(o Outcome) {
	c.done++
	c.res.Outcomes[o.Index] = o
	c.res.Completed = append(c.res.Completed, o.Index)

	log := c.s.log
	if o.OK {
		log.Debug(c.s.settings.Verbose, "Corrected %s in %s", o.Index.Name(), o.Elapsed.Round(time.Millisecond))
	} else {
		log.Error("Failed %s (%s): %v", o.Index.Name(), o.Kind, o.Err)
	}
	if o.MirrorErr != nil {
		log.Warn("Mirror upload failed for %s: %v", o.Index.Name(), o.MirrorErr)
	}

	if c.s.Progress != nil {
		c.s.Progress.Advance(c.done, c.total, o)
	}
	if c.s.Recorder != nil {
		if err := c.s.Recorder.RecordOutcome(o); err != nil {
			log.Warn("Ledger write failed for %s: %v", o.Index.Name(), err)
		}
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})        {}
func (nopLogger) Success(string, ...interface{})     {}
func (nopLogger) Warn(string, ...interface{})        {}
func (nopLogger) Error(string, ...interface{})       {}
func (nopLogger) Debug(bool, string, ...interface{}) {}
