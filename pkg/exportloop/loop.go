// Package exportloop drives the source, the sampler and one archive sink
// per job through single-frame, queued and interval exports.
package exportloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/framegrab/pkg/archivesink"
	"github.com/user/framegrab/pkg/framequeue"
	"github.com/user/framegrab/pkg/framerate"
	"github.com/user/framegrab/pkg/jobs"
	"github.com/user/framegrab/pkg/pipeline"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/sampler"
	"github.com/user/framegrab/pkg/seeksync"
)

var (
	// ErrInvalidInterval is returned when End is not after Start.
	ErrInvalidInterval = errors.New("interval end must be after start")
	// ErrInvalidRate is returned for a non-positive frame rate with no estimator.
	ErrInvalidRate = errors.New("frame rate must be positive")
	// ErrEmptyQueue is returned when a queue export has nothing to export.
	ErrEmptyQueue = errors.New("queue is empty")
	// ErrNoSource is returned when frames must be captured but no source was given.
	ErrNoSource = errors.New("no video source to capture from")
	// ErrPanic wraps a panic recovered inside a job.
	ErrPanic = errors.New("export panicked")
)

// SinkOpener opens the sink of a job. archivesink.Coordinator implements it.
type SinkOpener interface {
	Open(ctx context.Context, kind archivesink.Kind, name string) (archivesink.Sink, error)
}

// FrameOptions shape every captured frame.
type FrameOptions struct {
	Format  ports.ImageFormat
	Quality float64
	Resize  sampler.Resize
	// BaseName prefixes generated entry names. Empty means the source name
	// without its extension.
	BaseName string
}

// IntervalRequest exports [Start, End) at Rate frames per second.
type IntervalRequest struct {
	Source ports.VideoSource
	Start  time.Duration
	End    time.Duration
	// Rate is the confirmed frame rate. Zero asks the loop's estimator.
	Rate        int
	Kind        archivesink.Kind
	Frame       FrameOptions
	ArchiveName string
	Mode        seeksync.Mode
}

// QueueRequest exports queued items in order. Items without a captured
// frame are captured from Source at their position.
type QueueRequest struct {
	Source      ports.VideoSource
	Items       []framequeue.Item
	Kind        archivesink.Kind
	Frame       FrameOptions
	ArchiveName string
	Mode        seeksync.Mode
}

// Result reports what a job produced.
type Result struct {
	JobID       string
	Kind        archivesink.Kind
	ArchiveName string
	Rate        int
	RateMethod  string
	Entries     int
	Skipped     int
	Conflicts   int
	Bytes       int64
	Location    string
	Duration    time.Duration
}

// Loop runs export jobs.
type Loop struct {
	capture   pipeline.Stage[pipeline.CaptureInput, pipeline.CapturedFrame]
	sinks     SinkOpener
	tracker   *jobs.Tracker
	estimator framerate.Estimator
	seekOpts  seeksync.Options
	logger    ports.Logger
	now       func() time.Time
}

// New creates a loop. estimator may be nil when callers always pass a rate.
func New(
	capture pipeline.Stage[pipeline.CaptureInput, pipeline.CapturedFrame],
	sinks SinkOpener,
	tracker *jobs.Tracker,
	estimator framerate.Estimator,
	seekOpts seeksync.Options,
	logger ports.Logger,
) *Loop {
	return &Loop{
		capture:   capture,
		sinks:     sinks,
		tracker:   tracker,
		estimator: estimator,
		seekOpts:  seekOpts,
		logger:    logger.WithComponent("export"),
		now:       time.Now,
	}
}

// FrameCount returns ceil((end-start) * rate), the number of frames an
// interval export produces.
func FrameCount(start, end time.Duration, rate int) int {
	if end <= start || rate <= 0 {
		return 0
	}
	span := int64(end-start) * int64(rate)
	sec := int64(time.Second)
	return int((span + sec - 1) / sec)
}

// FramePosition returns the position of frame i, computed from the index
// so that rounding never accumulates across steps.
func FramePosition(start time.Duration, i, rate int) time.Duration {
	r := int64(rate)
	return start + time.Duration((int64(i)*int64(time.Second)+r/2)/r)
}

// CaptureFrame captures the frame src presents now, without seeking.
func (l *Loop) CaptureFrame(ctx context.Context, src ports.VideoSource, opts FrameOptions) (pipeline.CapturedFrame, error) {
	return l.capture.Execute(ctx, pipeline.CaptureInput{Source: src, Request: frameRequest(src, opts, src.Position())})
}

// ExportFrame captures the current frame and delivers it through a link
// or share sink.
func (l *Loop) ExportFrame(ctx context.Context, src ports.VideoSource, opts FrameOptions, kind archivesink.Kind) (Result, error) {
	res := Result{Kind: kind}
	frame, err := l.CaptureFrame(ctx, src, opts)
	if err != nil {
		return res, err
	}

	sink, err := l.sinks.Open(ctx, kind, "")
	if err != nil {
		return res, fmt.Errorf("open %s sink: %w", kind, err)
	}
	name := sampler.FrameName(baseName(src, opts), frame.Position, frame.Format)
	if err := sink.AddEntry(ctx, pipeline.ArchiveEntry{Name: name, Frame: frame}); err != nil {
		sink.Abort()
		return res, err
	}
	if err := sink.Finalize(ctx, name); err != nil {
		return res, err
	}
	stats := sink.Stats()
	res.Entries, res.Bytes, res.Location = stats.Entries, stats.Bytes, stats.Location
	return res, nil
}

// ExportInterval exports every frame step in [Start, End). An End past
// the source duration is clamped to it.
func (l *Loop) ExportInterval(ctx context.Context, req IntervalRequest) (Result, error) {
	if req.Source == nil {
		return Result{}, ErrNoSource
	}
	if d := req.Source.Info().Duration; d > 0 && req.End > d {
		req.End = d
	}
	if req.End <= req.Start {
		return Result{}, ErrInvalidInterval
	}

	rate, method := req.Rate, "given"
	if rate <= 0 {
		if l.estimator == nil {
			return Result{}, ErrInvalidRate
		}
		est, err := l.estimator.Estimate(ctx, req.Source)
		if err != nil {
			return Result{}, fmt.Errorf("detect frame rate: %w", err)
		}
		rate, method = est.Rate, est.Method
	}

	name := req.ArchiveName
	if name == "" {
		name = archivesink.IntervalArchiveName(baseName(req.Source, req.Frame), req.Start, req.End)
	}

	count := FrameCount(req.Start, req.End, rate)
	steps := make([]step, 0, count)
	for i := 0; i < count; i++ {
		pos := FramePosition(req.Start, i, rate)
		if pos >= req.End {
			break
		}
		steps = append(steps, step{position: pos})
	}

	l.logger.Info("Exporting %s (%d frames at %d fps)", name, len(steps), rate)
	res, err := l.run(ctx, job{
		source:  req.Source,
		mode:    req.Mode,
		kind:    req.Kind,
		name:    name,
		frame:   req.Frame,
		steps:   steps,
		seeking: true,
	})
	res.Rate, res.RateMethod = rate, method
	return res, err
}

// ExportQueue exports queued items in order.
func (l *Loop) ExportQueue(ctx context.Context, req QueueRequest) (Result, error) {
	if len(req.Items) == 0 {
		return Result{}, ErrEmptyQueue
	}

	name := req.ArchiveName
	if name == "" {
		name = archivesink.QueueArchiveName(baseName(req.Source, req.Frame), l.now())
	}

	seeking := false
	steps := make([]step, len(req.Items))
	for i, item := range req.Items {
		steps[i] = step{position: item.Position, name: item.Name, frame: item.Frame}
		if item.Frame == nil {
			seeking = true
		}
	}

	if seeking && req.Source == nil {
		return Result{}, ErrNoSource
	}

	l.logger.Info("Exporting %s (%d frames)", name, len(steps))
	return l.run(ctx, job{
		source:  req.Source,
		mode:    req.Mode,
		kind:    req.Kind,
		name:    name,
		frame:   req.Frame,
		steps:   steps,
		seeking: seeking,
	})
}

type step struct {
	position time.Duration
	name     string
	frame    *pipeline.CapturedFrame
}

type job struct {
	source  ports.VideoSource
	mode    seeksync.Mode
	kind    archivesink.Kind
	name    string
	frame   FrameOptions
	steps   []step
	seeking bool
}

// run is the engine shared by interval and queue exports. Whatever
// happens, the synchronizer is released and the job leaves the tracker.
func (l *Loop) run(ctx context.Context, j job) (res Result, err error) {
	started := l.now()
	tracked := l.tracker.Start(j.name, len(j.steps))
	res = Result{JobID: tracked.ID, Kind: j.kind, ArchiveName: j.name}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Export %s panicked: %v", tracked.ID, r)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		res.Duration = l.now().Sub(started)
		out := jobs.Outcome{
			Kind:        string(j.kind),
			ArchiveName: j.name,
			Entries:     res.Entries,
			Skipped:     res.Skipped,
			Conflicts:   res.Conflicts,
			Bytes:       res.Bytes,
		}
		if err != nil {
			l.logger.Error("Export %s failed: %v", j.name, err)
			l.tracker.Fail(ctx, tracked.ID, out, err)
			return
		}
		l.tracker.Finish(ctx, tracked.ID, out)
	}()

	var syncer *seeksync.Synchronizer
	if j.seeking {
		syncer, err = seeksync.Acquire(ctx, j.source, j.mode, l.seekOpts, l.logger)
		if err != nil {
			return res, err
		}
		defer syncer.Release()
	}

	sink, err := l.sinks.Open(ctx, j.kind, j.name)
	if err != nil {
		return res, err
	}

	if err := l.drive(ctx, j, tracked.ID, syncer, sink, &res); err != nil {
		sink.Abort()
		return res, err
	}

	if err := sink.Finalize(ctx, j.name); err != nil {
		return res, err
	}
	stats := sink.Stats()
	res.Bytes, res.Location = stats.Bytes, stats.Location
	return res, nil
}

func (l *Loop) drive(ctx context.Context, j job, jobID string, syncer *seeksync.Synchronizer, sink archivesink.Sink, res *Result) error {
	base := baseName(j.source, j.frame)

	for _, st := range j.steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		var frame pipeline.CapturedFrame
		if st.frame != nil {
			frame = *st.frame
		} else {
			captured, err := l.captureAt(ctx, syncer, j.frame, st.position)
			var capErr *pipeline.CaptureError
			if errors.As(err, &capErr) && ctx.Err() == nil {
				// One bad frame does not sink the batch.
				l.logger.Warn("Skipping frame at %.3fs: %s", st.position.Seconds(), capErr.Err)
				res.Skipped++
				l.tracker.Advance(jobID, 1)
				continue
			}
			if err != nil {
				return err
			}
			frame = captured
		}

		name := st.name
		if name == "" {
			name = sampler.FrameName(base, frame.Position, frame.Format)
		}

		err := sink.AddEntry(ctx, pipeline.ArchiveEntry{Name: name, Frame: frame})
		var conflict *pipeline.ArchiveEntryConflict
		switch {
		case errors.As(err, &conflict):
			res.Conflicts++
		case err != nil:
			return err
		default:
			res.Entries++
		}
		l.tracker.Advance(jobID, 1)
	}
	return nil
}

// captureAt seeks to pos and captures the frame there. A position the
// source could not decode comes back as a *pipeline.CaptureError.
func (l *Loop) captureAt(ctx context.Context, syncer *seeksync.Synchronizer, opts FrameOptions, pos time.Duration) (pipeline.CapturedFrame, error) {
	if _, err := syncer.Advance(ctx, pos); err != nil {
		return pipeline.CapturedFrame{}, err
	}
	src := syncer.Source()
	return l.capture.Execute(ctx, pipeline.CaptureInput{
		Source:  src,
		Request: frameRequest(src, opts, pos),
	})
}

func frameRequest(src ports.VideoSource, opts FrameOptions, pos time.Duration) pipeline.FrameRequest {
	req := pipeline.FrameRequest{Position: pos, Format: opts.Format, Quality: opts.Quality}
	if opts.Resize.Mode != "" {
		info := src.Info()
		req.Width, req.Height = opts.Resize.Apply(info.Width, info.Height)
	}
	return req
}

func baseName(src ports.VideoSource, opts FrameOptions) string {
	if opts.BaseName != "" {
		return opts.BaseName
	}
	if src != nil {
		if name := src.Info().Name; name != "" {
			return archivesink.BaseName(name)
		}
	}
	return "frame"
}
