// Package jobs keeps the list of running exports the UI shows as progress
// bars, and records each job's outcome when it leaves the list.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
)

// Outcome summarizes a job for the ledger.
type Outcome struct {
	Kind        string
	ArchiveName string
	Entries     int
	Skipped     int
	Conflicts   int
	Bytes       int64
}

// Tracker owns the live job list. Progress never decreases and never
// exceeds a job's Max; finished and failed jobs are removed immediately.
type Tracker struct {
	mu        sync.Mutex
	jobs      map[string]*pipeline.ExportJob
	order     []string
	observers []ports.JobObserver

	ledger ports.JobLedger
	logger ports.Logger
	now    func() time.Time
}

// NewTracker creates a tracker. ledger may be nil.
func NewTracker(ledger ports.JobLedger, logger ports.Logger) *Tracker {
	return &Tracker{
		jobs:   make(map[string]*pipeline.ExportJob),
		ledger: ledger,
		logger: logger.WithComponent("jobs"),
		now:    time.Now,
	}
}

// Observe registers o for lifecycle events.
func (t *Tracker) Observe(o ports.JobObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Start adds a job with zero progress.
func (t *Tracker) Start(description string, max int) pipeline.ExportJob {
	if max < 0 {
		max = 0
	}
	job := &pipeline.ExportJob{
		ID:          uuid.NewString(),
		Description: description,
		Max:         max,
		StartedAt:   t.now(),
	}

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.order = append(t.order, job.ID)
	snapshot := *job
	t.mu.Unlock()

	t.emit(snapshot, ports.JobRunning, nil)
	return snapshot
}

// Advance adds delta to the job's progress, clamped to [current, Max].
func (t *Tracker) Advance(id string, delta int) (pipeline.ExportJob, bool) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return pipeline.ExportJob{}, false
	}
	if delta > 0 {
		job.Progress += delta
		if job.Progress > job.Max {
			job.Progress = job.Max
		}
	}
	snapshot := *job
	t.mu.Unlock()

	t.emit(snapshot, ports.JobRunning, nil)
	return snapshot, true
}

// Finish removes a successful job and records it.
func (t *Tracker) Finish(ctx context.Context, id string, out Outcome) {
	t.end(ctx, id, out, nil)
}

// Fail removes a failed job and records the error.
func (t *Tracker) Fail(ctx context.Context, id string, out Outcome, err error) {
	t.end(ctx, id, out, err)
}

func (t *Tracker) end(ctx context.Context, id string, out Outcome, cause error) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.jobs, id)
	for i, jid := range t.order {
		if jid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	snapshot := *job
	t.mu.Unlock()

	state := ports.JobFinished
	if cause != nil {
		state = ports.JobFailed
	}
	t.emit(snapshot, state, cause)

	if t.ledger == nil {
		return
	}
	rec := ports.JobRecord{
		ID:          snapshot.ID,
		Description: snapshot.Description,
		Kind:        out.Kind,
		ArchiveName: out.ArchiveName,
		Entries:     out.Entries,
		Skipped:     out.Skipped,
		Conflicts:   out.Conflicts,
		Bytes:       out.Bytes,
		State:       state,
		StartedAt:   snapshot.StartedAt,
		FinishedAt:  t.now(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	// The job context may already be cancelled; the record is still wanted.
	if err := t.ledger.Record(context.WithoutCancel(ctx), rec); err != nil {
		t.logger.Warn("Could not record job %s: %v", id, err)
	}
}

// Snapshot returns the live jobs in start order.
func (t *Tracker) Snapshot() []pipeline.ExportJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]pipeline.ExportJob, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.jobs[id])
	}
	return out
}

// Get returns the live job with id.
func (t *Tracker) Get(id string) (pipeline.ExportJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return pipeline.ExportJob{}, false
	}
	return *job, true
}

func (t *Tracker) emit(job pipeline.ExportJob, state ports.JobState, err error) {
	t.mu.Lock()
	observers := append([]ports.JobObserver(nil), t.observers...)
	t.mu.Unlock()

	ev := ports.JobEvent{
		ID:          job.ID,
		Description: job.Description,
		Progress:    job.Progress,
		Max:         job.Max,
		State:       state,
		Err:         err,
		At:          t.now(),
	}
	for _, o := range observers {
		o.JobChanged(ev)
	}
}
