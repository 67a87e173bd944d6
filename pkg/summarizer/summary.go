// Package summarizer writes a human-readable summary of an export job.
package summarizer

import "time"

// Summary contains everything reported about one export.
type Summary struct {
	GeneratedAt time.Time

	Source   SourceInfo
	Export   ExportInfo
	Settings Settings
}

// SourceInfo describes the exported video.
type SourceInfo struct {
	Name      string
	Container string
	Codec     string
	Width     int
	Height    int
	Duration  time.Duration
}

// ExportInfo describes what the job produced.
type ExportInfo struct {
	JobID       string
	Kind        string
	ArchiveName string
	Location    string

	// Interval bounds; both zero for queue and single-frame exports.
	Start time.Duration
	End   time.Duration

	Rate       int
	RateMethod string

	Entries   int
	Skipped   int
	Conflicts int
	Bytes     int64
	Elapsed   time.Duration
}

// Settings records the capture options.
type Settings struct {
	Format  string
	Quality float64
	Resize  string
	Mode    string
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{GeneratedAt: time.Now()}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{summary: NewSummary()}
}

// WithSource sets the source description.
func (b *Builder) WithSource(src SourceInfo) *Builder {
	b.summary.Source = src
	return b
}

// WithExport sets the export outcome.
func (b *Builder) WithExport(ex ExportInfo) *Builder {
	b.summary.Export = ex
	return b
}

// WithInterval sets the exported interval and frame rate.
func (b *Builder) WithInterval(start, end time.Duration, rate int, method string) *Builder {
	b.summary.Export.Start = start
	b.summary.Export.End = end
	b.summary.Export.Rate = rate
	b.summary.Export.RateMethod = method
	return b
}

// WithSettings sets the capture options.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
