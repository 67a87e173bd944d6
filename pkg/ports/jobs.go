package ports

import (
	"context"
	"time"
)

// JobState is the lifecycle state of an export job.
type JobState string

const (
	JobRunning  JobState = "running"
	JobFinished JobState = "finished"
	JobFailed   JobState = "failed"
)

// JobEvent is published whenever a job starts, advances or ends.
type JobEvent struct {
	ID          string
	Description string
	Progress    int
	Max         int
	State       JobState
	Err         error
	At          time.Time
}

// JobObserver receives job lifecycle events. Implementations must not block.
type JobObserver interface {
	JobChanged(ev JobEvent)
}

// JobRecord is the persisted outcome of a finished or failed job.
type JobRecord struct {
	ID          string
	Description string
	Kind        string
	ArchiveName string
	Entries     int
	Skipped     int
	Conflicts   int
	Bytes       int64
	State       JobState
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// JobLedger stores job history.
type JobLedger interface {
	Record(ctx context.Context, rec JobRecord) error
	Recent(ctx context.Context, limit int) ([]JobRecord, error)
}
