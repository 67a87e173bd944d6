// Package prettyterm renders live export progress and job history on the
// terminal with go-pretty.
package prettyterm

import (
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"

	"github.com/user/framegrab/pkg/ports"
)

// Progress shows one bar per running job. It implements ports.JobObserver.
type Progress struct {
	pw progress.Writer

	mu       sync.Mutex
	trackers map[string]*progress.Tracker
	started  bool
}

// NewProgress creates a progress display writing to out.
func NewProgress(out io.Writer) *Progress {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetMessageLength(40)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true

	return &Progress{pw: pw, trackers: make(map[string]*progress.Tracker)}
}

// JobChanged implements ports.JobObserver.
func (p *Progress) JobChanged(ev ports.JobEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.started = true
		go p.pw.Render()
	}

	tr, ok := p.trackers[ev.ID]
	if !ok {
		tr = &progress.Tracker{Message: ev.Description, Total: int64(ev.Max), Units: progress.UnitsDefault}
		p.trackers[ev.ID] = tr
		p.pw.AppendTracker(tr)
	}

	switch ev.State {
	case ports.JobRunning:
		tr.SetValue(int64(ev.Progress))
	case ports.JobFinished:
		tr.SetValue(int64(ev.Progress))
		tr.MarkAsDone()
		delete(p.trackers, ev.ID)
	case ports.JobFailed:
		tr.MarkAsErrored()
		delete(p.trackers, ev.ID)
	}
}

// Stop flushes the last frame and stops rendering.
func (p *Progress) Stop() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return
	}
	// Let the renderer draw the final state before stopping.
	time.Sleep(150 * time.Millisecond)
	p.pw.Stop()
}

var _ ports.JobObserver = (*Progress)(nil)
