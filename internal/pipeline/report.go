package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FailedEntry is one failed index in a Report.
type FailedEntry struct {
	Index  SceneIndex
	Kind   FailureKind
	Detail string
	Error  string
	Trace  string
}

// Report is the end-of-run summary.
type Report struct {
	Total        int
	Processed    int
	Succeeded    int
	Failed       int
	Skipped      int
	NotStarted   int
	Planned      int
	MirrorErrors int
	BytesWritten int64
	Elapsed      time.Duration
	DryRun       bool
	Failures     []FailedEntry // sorted by index
}

// Summarize builds a Report from res. The per-index counts use the
// Completed list so duplicated indices count once per occurrence.
func Summarize(res *RunResult) Report {
	rep := Report{
		Total:      res.Total,
		Skipped:    len(res.Skipped),
		NotStarted: len(res.NotStarted),
		Planned:    len(res.Planned),
		Elapsed:    res.Elapsed,
		DryRun:     res.DryRun,
	}
	rep.Processed = len(res.Completed)

	seen := make(map[SceneIndex]bool)
	for _, idx := range res.Completed {
		o := res.Outcomes[idx]
		if o.OK {
			rep.Succeeded++
			rep.BytesWritten += o.Bytes
		} else {
			rep.Failed++
		}
		if o.MirrorErr != nil {
			rep.MirrorErrors++
		}
		if !o.OK && !seen[idx] {
			seen[idx] = true
			entry := FailedEntry{Index: idx, Kind: o.Kind, Detail: o.Detail, Trace: o.Trace}
			if o.Err != nil {
				entry.Error = o.Err.Error()
			}
			rep.Failures = append(rep.Failures, entry)
		}
	}
	sort.Slice(rep.Failures, func(i, j int) bool {
		return rep.Failures[i].Index < rep.Failures[j].Index
	})
	return rep
}

// HasFailures reports whether any job failed.
func (r Report) HasFailures() bool { return r.Failed > 0 }

// maxTraceLines bounds each failure's trace in non-verbose logs.
const maxTraceLines = 20

// Log writes the summary. With verbose set, traces are printed in full.
func (r Report) Log(log Logger, verbose bool) {
	log.Info("==============================")
	if r.DryRun {
		log.Info("Dry run: %d planned, %d skipped (of %d)", r.Planned, r.Skipped, r.Total)
		return
	}
	log.Info("Done: %d corrected, %d skipped, %d failed", r.Succeeded, r.Skipped, r.Failed)
	log.Info("Summary report:")
	log.Info("  Indices in split: %d", r.Total)
	log.Info("  Processed: %d in %s", r.Processed, r.Elapsed.Round(time.Second))
	log.Info("  Output written: %s", humanize.IBytes(uint64(r.BytesWritten)))
	if r.NotStarted > 0 {
		log.Warn("  Not started (interrupted): %d", r.NotStarted)
	}
	if r.MirrorErrors > 0 {
		log.Warn("  Mirror upload failures: %d", r.MirrorErrors)
	}

	if len(r.Failures) == 0 {
		if r.Processed > 0 {
			log.Success("All %d jobs succeeded", r.Processed)
		}
		return
	}

	log.Error("Failed indices (%d):", len(r.Failures))
	for _, f := range r.Failures {
		kind := string(f.Kind)
		if f.Detail != "" {
			kind += "/" + f.Detail
		}
		log.Error("  %s [%s] %s", f.Index.Name(), kind, f.Error)
		lines := strings.Split(f.Trace, "\n")
		if !verbose && len(lines) > maxTraceLines {
			lines = lines[:maxTraceLines]
			lines = append(lines, "...")
		}
		for _, l := range lines {
			log.Error("      %s", l)
		}
	}
}
