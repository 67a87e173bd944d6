package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/mocks"
	"github.com/user/framegrab/pkg/ports"
)

func TestTracker_Lifecycle(t *testing.T) {
	ledger := &mocks.JobLedger{}
	obs := &mocks.JobObserver{}
	tr := NewTracker(ledger, logger.NewNoop())
	tr.Observe(obs)

	job := tr.Start("clip [0.00-1.00]", 3)
	if job.ID == "" || job.Progress != 0 || job.Max != 3 {
		t.Fatalf("unexpected job %+v", job)
	}

	for i := 0; i < 5; i++ {
		tr.Advance(job.ID, 1)
	}
	got, ok := tr.Get(job.ID)
	if !ok || got.Progress != 3 {
		t.Errorf("expected progress clamped at 3, got %+v", got)
	}

	tr.Finish(context.Background(), job.ID, Outcome{Kind: "zip", Entries: 3})

	if len(tr.Snapshot()) != 0 {
		t.Error("finished job should leave the list")
	}
	if len(ledger.Records) != 1 || ledger.Records[0].State != ports.JobFinished || ledger.Records[0].Entries != 3 {
		t.Errorf("unexpected ledger %+v", ledger.Records)
	}

	events := obs.Snapshot()
	last := -1
	for _, ev := range events[:len(events)-1] {
		if ev.Progress < last || ev.Progress > ev.Max {
			t.Errorf("progress not monotonic within bounds: %+v", ev)
		}
		last = ev.Progress
	}
	if events[len(events)-1].State != ports.JobFinished {
		t.Errorf("expected final finished event, got %+v", events[len(events)-1])
	}
}

func TestTracker_Fail(t *testing.T) {
	ledger := &mocks.JobLedger{}
	tr := NewTracker(ledger, logger.NewNoop())

	a := tr.Start("a", 10)
	b := tr.Start("b", 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr.Fail(ctx, a.ID, Outcome{}, errors.New("ack timeout"))

	snap := tr.Snapshot()
	if len(snap) != 1 || snap[0].ID != b.ID {
		t.Errorf("expected only b left, got %+v", snap)
	}
	if len(ledger.Records) != 1 || ledger.Records[0].Error != "ack timeout" {
		t.Errorf("failure should be recorded even with a cancelled context: %+v", ledger.Records)
	}

	// Ending an unknown or already ended job is a no-op.
	tr.Finish(context.Background(), a.ID, Outcome{})
	if len(ledger.Records) != 1 {
		t.Error("job recorded twice")
	}
	if _, ok := tr.Advance(a.ID, 1); ok {
		t.Error("advance on removed job should report false")
	}
}

func TestTracker_LedgerErrorIsNotFatal(t *testing.T) {
	ledger := &mocks.JobLedger{RecordFunc: func(context.Context, ports.JobRecord) error { return errors.New("disk full") }}
	tr := NewTracker(ledger, logger.NewNoop())
	job := tr.Start("x", 1)
	tr.Finish(context.Background(), job.ID, Outcome{})
	if len(tr.Snapshot()) != 0 {
		t.Error("job should be removed regardless of ledger errors")
	}
}
