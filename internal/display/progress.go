package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/backmassage/gdcbatch/internal/pipeline"
	"github.com/backmassage/gdcbatch/internal/term"
)

// Progress prints one "[n/total]" line per completed job. On a terminal the
// line is redrawn in place and only failures are kept on screen.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	redraw  bool
	start   time.Time
	pending bool // an in-place line is on screen
}

// NewProgress returns a progress display writing to w. redraw should be true
// only when w is a terminal.
func NewProgress(w io.Writer, redraw bool) *Progress {
	return &Progress{w: w, redraw: redraw, start: time.Now()}
}

// Advance implements pipeline.Progress.
func (p *Progress) Advance(done, total int, o pipeline.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := term.Green + "ok" + term.NC
	if !o.OK {
		status = term.Red + "FAILED" + term.NC + " (" + string(o.Kind) + ")"
	}
	pct := 100 * float64(done) / float64(max(total, 1))
	line := fmt.Sprintf("[%*d/%d] %5.1f%%  %s  %s  %s",
		digits(total), done, total, pct, o.Index.Name(), status, eta(time.Since(p.start), done, total))

	if !p.redraw {
		fmt.Fprintln(p.w, line)
		return
	}
	fmt.Fprint(p.w, term.ClearLine+line)
	p.pending = true
	if !o.OK || done == total {
		fmt.Fprintln(p.w)
		p.pending = false
	}
}

// Finish ends an in-place line so later output starts on a fresh line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending {
		fmt.Fprintln(p.w)
		p.pending = false
	}
}

func eta(elapsed time.Duration, done, total int) string {
	if done == 0 || done >= total {
		return "elapsed " + FormatDuration(elapsed)
	}
	remaining := time.Duration(float64(elapsed) / float64(done) * float64(total-done))
	return "eta " + FormatDuration(remaining)
}

func digits(n int) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}
