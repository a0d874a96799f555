// Package ledger records batch runs and their per-index outcomes in a SQLite
// database, so a dataset's processing history survives across runs.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/backmassage/gdcbatch/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	split_file  TEXT NOT NULL,
	workers     INTEGER NOT NULL,
	dry_run     INTEGER NOT NULL DEFAULT 0,
	total       INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	not_started INTEGER NOT NULL DEFAULT 0,
	bytes       INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	scene      INTEGER NOT NULL,
	ok         INTEGER NOT NULL,
	kind       TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	trace      TEXT NOT NULL DEFAULT '',
	bytes      INTEGER NOT NULL DEFAULT 0,
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_outcomes_scene ON outcomes(scene);
`

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger is an open run database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path. ":memory:"
// gives a throwaway in-memory ledger.
func Open(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// RunInfo describes a run at start.
type RunInfo struct {
	ID        uuid.UUID
	Started   time.Time
	SplitFile string
	Workers   int
	DryRun    bool
}

// Run is an open ledger entry for one batch run. It implements
// pipeline.Recorder.
type Run struct {
	l  *Ledger
	id uuid.UUID
}

// BeginRun inserts a run row. A zero ID is replaced with a new random one.
func (l *Ledger) BeginRun(ctx context.Context, info RunInfo) (*Run, error) {
	if info.ID == uuid.Nil {
		info.ID = uuid.New()
	}
	if info.Started.IsZero() {
		info.Started = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, split_file, workers, dry_run) VALUES (?, ?, ?, ?, ?)`,
		info.ID.String(), info.Started.UTC().Format(timeLayout), info.SplitFile, info.Workers, info.DryRun)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return &Run{l: l, id: info.ID}, nil
}

// ID returns the run's identifier.
func (r *Run) ID() uuid.UUID { return r.id }

// RecordOutcome stores one job outcome.
func (r *Run) RecordOutcome(o pipeline.Outcome) error {
	var errText string
	if o.Err != nil {
		errText = o.Err.Error()
	}
	_, err := r.l.db.Exec(
		`INSERT INTO outcomes (run_id, scene, ok, kind, detail, error, trace, bytes, elapsed_ms, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.id.String(), int(o.Index), o.OK, string(o.Kind), o.Detail, errText, o.Trace,
		o.Bytes, o.Elapsed.Milliseconds(), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", o.Index.Name(), err)
	}
	return nil
}

// Finish stores the run's final counts and end time.
func (r *Run) Finish(ctx context.Context, rep pipeline.Report) error {
	res, err := r.l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, total = ?, succeeded = ?, failed = ?, skipped = ?,
		 not_started = ?, bytes = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), rep.Total, rep.Succeeded, rep.Failed, rep.Skipped,
		rep.NotStarted, rep.BytesWritten, r.id.String())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: no such run", r.id)
	}
	return nil
}

// RunSummary is one row of RecentRuns.
type RunSummary struct {
	ID         uuid.UUID
	Started    time.Time
	Finished   time.Time // zero if the run never finished
	SplitFile  string
	Workers    int
	DryRun     bool
	Total      int
	Succeeded  int
	Failed     int
	Skipped    int
	NotStarted int
	Bytes      int64
}

// RecentRuns returns up to n runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, n int) ([]RunSummary, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, split_file, workers, dry_run, total, succeeded,
		        failed, skipped, not_started, bytes
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s        RunSummary
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&s.ID, &started, &finished, &s.SplitFile, &s.Workers, &s.DryRun,
			&s.Total, &s.Succeeded, &s.Failed, &s.Skipped, &s.NotStarted, &s.Bytes); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if s.Started, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s: bad start time: %w", s.ID, err)
		}
		if finished.Valid {
			if s.Finished, err = time.Parse(timeLayout, finished.String); err != nil {
				return nil, fmt.Errorf("run %s: bad finish time: %w", s.ID, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FailureRecord is one failed outcome of a run.
type FailureRecord struct {
	Index  pipeline.SceneIndex
	Kind   pipeline.FailureKind
	Detail string
	Error  string
	Trace  string
}

// ErrUnknownRun is returned by Failures for a run ID not in the ledger.
var ErrUnknownRun = errors.New("unknown run")

// Failures returns the failed outcomes of a run, ordered by index.
func (l *Ledger) Failures(ctx context.Context, runID uuid.UUID) ([]FailureRecord, error) {
	var exists int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID.String()).Scan(&exists); err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT scene, kind, detail, error, trace FROM outcomes
		 WHERE run_id = ? AND ok = 0 ORDER BY scene`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []FailureRecord
	for rows.Next() {
		var f FailureRecord
		var scene int
		var kind string
		if err := rows.Scan(&scene, &kind, &f.Detail, &f.Error, &f.Trace); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.Index = pipeline.SceneIndex(scene)
		f.Kind = pipeline.FailureKind(kind)
		out = append(out, f)
	}
	return out, rows.Err()
}
