package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/gdcbatch/internal/pipeline"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	run, err := l.BeginRun(ctx, RunInfo{SplitFile: "val.txt", Workers: 4})
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if run.ID() == uuid.Nil {
		t.Fatal("BeginRun should assign an ID")
	}

	outcomes := []pipeline.Outcome{
		{Index: 3, OK: true, Bytes: 2048, Elapsed: 1500 * time.Millisecond},
		{Index: 9, Kind: pipeline.KindCorrection, Detail: "non-convergence",
			Err: fmt.Errorf("%w: exit status 1", pipeline.ErrCorrection), Trace: "error: ...\nstack:"},
		{Index: 1, Kind: pipeline.KindArtifactMissing, Err: pipeline.ErrArtifactMissing},
	}
	for _, o := range outcomes {
		if err := run.RecordOutcome(o); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}
	rep := pipeline.Report{Total: 4, Succeeded: 1, Failed: 2, Skipped: 1, BytesWritten: 2048}
	if err := run.Finish(ctx, rep); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	runs, err := l.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs", len(runs))
	}
	r := runs[0]
	if r.ID != run.ID() || r.SplitFile != "val.txt" || r.Workers != 4 || r.DryRun {
		t.Errorf("run = %+v", r)
	}
	if r.Total != 4 || r.Succeeded != 1 || r.Failed != 2 || r.Skipped != 1 || r.Bytes != 2048 {
		t.Errorf("counts = %+v", r)
	}
	if r.Finished.IsZero() || r.Finished.Before(r.Started) {
		t.Errorf("Started %v Finished %v", r.Started, r.Finished)
	}

	fails, err := l.Failures(ctx, run.ID())
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(fails) != 2 || fails[0].Index != 1 || fails[1].Index != 9 {
		t.Fatalf("failures = %+v", fails)
	}
	if fails[1].Kind != pipeline.KindCorrection || fails[1].Detail != "non-convergence" || fails[1].Trace == "" {
		t.Errorf("failure 9 = %+v", fails[1])
	}
}

func TestRecentRuns_NewestFirstAndLimit(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		run, err := l.BeginRun(ctx, RunInfo{ID: uuid.New(), Started: base.Add(time.Duration(i) * time.Hour), SplitFile: "s"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.ID())
	}

	runs, err := l.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("runs = %+v", runs)
	}
	if !runs[0].Finished.IsZero() {
		t.Error("unfinished run should have zero Finished")
	}
}

func TestFailures_UnknownRun(t *testing.T) {
	l := openTestLedger(t)
	_, err := l.Failures(context.Background(), uuid.New())
	if !errors.Is(err, ErrUnknownRun) {
		t.Errorf("err = %v, want ErrUnknownRun", err)
	}
}

func TestFinish_UnknownRun(t *testing.T) {
	l := openTestLedger(t)
	r := &Run{l: l, id: uuid.New()}
	if err := r.Finish(context.Background(), pipeline.Report{}); err == nil {
		t.Error("Finish on a missing run should fail")
	}
}

func TestOpen_FileReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	run, err := l.BeginRun(ctx, RunInfo{SplitFile: "a", DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	l.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	runs, err := l2.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID() || !runs[0].DryRun {
		t.Errorf("runs after reopen = %+v", runs)
	}
}
