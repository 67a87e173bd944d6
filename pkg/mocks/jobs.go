package mocks

import (
	"context"
	"sync"

	"github.com/user/framegrab/pkg/ports"
)

// JobObserver records job events.
type JobObserver struct {
	mu     sync.Mutex
	Events []ports.JobEvent
}

func (m *JobObserver) JobChanged(ev ports.JobEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
}

// Snapshot returns a copy of the recorded events.
func (m *JobObserver) Snapshot() []ports.JobEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.JobEvent(nil), m.Events...)
}

var _ ports.JobObserver = (*JobObserver)(nil)

// JobLedger keeps records in memory.
type JobLedger struct {
	mu      sync.Mutex
	Records []ports.JobRecord

	RecordFunc func(ctx context.Context, rec ports.JobRecord) error
}

func (m *JobLedger) Record(ctx context.Context, rec ports.JobRecord) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, rec)
	return nil
}

func (m *JobLedger) Recent(ctx context.Context, limit int) ([]ports.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.JobRecord, 0, limit)
	for i := len(m.Records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Records[i])
	}
	return out, nil
}

var _ ports.JobLedger = (*JobLedger)(nil)
