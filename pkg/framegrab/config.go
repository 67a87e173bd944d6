// Package framegrab turns file and command-line settings into the options
// the export loop, the sinks and the transport are built from.
package framegrab

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/user/framegrab/pkg/archivesink"
	"github.com/user/framegrab/pkg/config"
	"github.com/user/framegrab/pkg/exportloop"
	"github.com/user/framegrab/pkg/framerate"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/sampler"
	"github.com/user/framegrab/pkg/seeksync"
	"github.com/user/framegrab/pkg/transport"
)

// QualityPreset names a frame quality level.
type QualityPreset string

const (
	QualityLow    QualityPreset = "low"
	QualityMedium QualityPreset = "medium"
	QualityHigh   QualityPreset = "high"
)

// QualityValue returns the encoder quality in [0,1] for a preset.
func QualityValue(preset QualityPreset) float64 {
	switch preset {
	case QualityLow:
		return 0.6
	case QualityHigh:
		return 0.95
	default: // medium
		return 0.85
	}
}

// Settings is the resolved configuration of one export.
type Settings struct {
	Format  ports.ImageFormat
	Quality float64
	Resize  sampler.Resize

	Kind         archivesink.Kind
	Streaming    bool
	UseDuplicate bool
	ClearQueue   bool

	// FPS zero means detect.
	FPS      int
	TieBreak framerate.TieBreak

	AckTimeout    time.Duration
	ChunkSize     int
	SettleTimeout time.Duration

	OutputDir string
	BaseName  string
}

// ConfigBuilder provides a fluent interface for building Settings.
type ConfigBuilder struct {
	settings Settings
	errs     []error
}

// NewConfigBuilder creates a builder with default settings.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{settings: defaults()}
}

func defaults() Settings {
	return Settings{
		Format:  ports.FormatJPEG,
		Quality: QualityValue(QualityMedium),

		Kind:         archivesink.KindZip,
		Streaming:    true,
		UseDuplicate: true,

		TieBreak: framerate.TieFirstSeen,

		AckTimeout:    transport.DefaultAckTimeout,
		ChunkSize:     transport.DefaultChunkSize,
		SettleTimeout: seeksync.DefaultSettleTimeout,
	}
}

// FromConfig starts a builder from a loaded config file. Invalid values are
// reported by Build.
func FromConfig(cfg config.Config) *ConfigBuilder {
	b := NewConfigBuilder()
	b.WithOutputDir(cfg.OutputDir).
		WithStreaming(cfg.Streaming).
		WithUseDuplicate(cfg.UseDuplicate).
		WithClearQueue(cfg.ClearQueue).
		WithFPS(cfg.FPS)

	if cfg.Format != "" {
		b.WithFormatName(cfg.Format)
	}
	if cfg.Quality != "" {
		b.WithQualityName(cfg.Quality)
	}
	if cfg.Resize != "" {
		b.WithResizeSpec(cfg.Resize)
	}
	if cfg.Archive != "" {
		b.WithKindName(cfg.Archive)
	}
	if cfg.TieBreak != "" {
		b.WithTieBreakName(cfg.TieBreak)
	}
	if cfg.AckTimeoutMs > 0 {
		b.WithAckTimeout(time.Duration(cfg.AckTimeoutMs) * time.Millisecond)
	}
	if cfg.ChunkSize > 0 {
		b.WithChunkSize(cfg.ChunkSize)
	}
	if cfg.SettleTimeoutMs > 0 {
		b.WithSettleTimeout(time.Duration(cfg.SettleTimeoutMs) * time.Millisecond)
	}
	return b
}

// Build validates and returns the final Settings.
func (b *ConfigBuilder) Build() (Settings, error) {
	s := b.settings
	errs := append([]error(nil), b.errs...)

	if s.FPS < 0 {
		errs = append(errs, fmt.Errorf("fps must not be negative: %d", s.FPS))
	}
	if s.Quality < 0 || s.Quality > 1 {
		errs = append(errs, fmt.Errorf("quality must be in [0,1]: %g", s.Quality))
	}
	if s.ChunkSize < 1 {
		s.ChunkSize = transport.DefaultChunkSize
	}
	if s.AckTimeout <= 0 {
		s.AckTimeout = transport.DefaultAckTimeout
	}
	if s.SettleTimeout <= 0 {
		s.SettleTimeout = seeksync.DefaultSettleTimeout
	}

	return s, errors.Join(errs...)
}

// WithFormat sets the image format of captured frames.
func (b *ConfigBuilder) WithFormat(f ports.ImageFormat) *ConfigBuilder {
	b.settings.Format = f
	return b
}

// WithFormatName parses and sets the image format.
func (b *ConfigBuilder) WithFormatName(name string) *ConfigBuilder {
	f, ok := ports.ParseImageFormat(name)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("unknown image format %q", name))
		return b
	}
	return b.WithFormat(f)
}

// WithQuality sets the encoder quality in [0,1].
func (b *ConfigBuilder) WithQuality(q float64) *ConfigBuilder {
	b.settings.Quality = q
	return b
}

// WithQualityPreset applies a quality preset (low, medium, high).
func (b *ConfigBuilder) WithQualityPreset(preset QualityPreset) *ConfigBuilder {
	b.settings.Quality = QualityValue(preset)
	return b
}

// WithQualityName accepts a preset name or a number. Numbers above 1 are
// read as percentages.
func (b *ConfigBuilder) WithQualityName(name string) *ConfigBuilder {
	switch p := QualityPreset(strings.ToLower(strings.TrimSpace(name))); p {
	case QualityLow, QualityMedium, QualityHigh:
		return b.WithQualityPreset(p)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(name, "%"), 64)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("invalid quality %q", name))
		return b
	}
	if v > 1 {
		v /= 100
	}
	return b.WithQuality(v)
}

// WithResize sets the resize rule.
func (b *ConfigBuilder) WithResize(r sampler.Resize) *ConfigBuilder {
	b.settings.Resize = r
	return b
}

// WithResizeSpec parses "50%", "w640" or "h480".
func (b *ConfigBuilder) WithResizeSpec(spec string) *ConfigBuilder {
	r, err := sampler.ParseResize(spec)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	return b.WithResize(r)
}

// WithKind sets the archive sink kind.
func (b *ConfigBuilder) WithKind(k archivesink.Kind) *ConfigBuilder {
	b.settings.Kind = k
	return b
}

// WithKindName parses and sets the archive sink kind.
func (b *ConfigBuilder) WithKindName(name string) *ConfigBuilder {
	k, err := archivesink.ParseKind(name)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	return b.WithKind(k)
}

// WithStreaming enables streamed zip delivery when the transport is up.
func (b *ConfigBuilder) WithStreaming(on bool) *ConfigBuilder {
	b.settings.Streaming = on
	return b
}

// WithUseDuplicate makes interval exports drive a private duplicate.
func (b *ConfigBuilder) WithUseDuplicate(on bool) *ConfigBuilder {
	b.settings.UseDuplicate = on
	return b
}

// WithClearQueue empties the frame queue after a successful export.
func (b *ConfigBuilder) WithClearQueue(on bool) *ConfigBuilder {
	b.settings.ClearQueue = on
	return b
}

// WithFPS sets a confirmed frame rate. Zero means detect.
func (b *ConfigBuilder) WithFPS(fps int) *ConfigBuilder {
	b.settings.FPS = fps
	return b
}

// WithTieBreakName parses the histogram tie-break rule.
func (b *ConfigBuilder) WithTieBreakName(name string) *ConfigBuilder {
	tb, ok := framerate.ParseTieBreak(name)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("unknown tie-break %q", name))
		return b
	}
	b.settings.TieBreak = tb
	return b
}

// WithAckTimeout bounds each transport call.
func (b *ConfigBuilder) WithAckTimeout(d time.Duration) *ConfigBuilder {
	b.settings.AckTimeout = d
	return b
}

// WithChunkSize sets the largest WriteFile payload.
func (b *ConfigBuilder) WithChunkSize(n int) *ConfigBuilder {
	b.settings.ChunkSize = n
	return b
}

// WithSettleTimeout bounds each seek.
func (b *ConfigBuilder) WithSettleTimeout(d time.Duration) *ConfigBuilder {
	b.settings.SettleTimeout = d
	return b
}

// WithOutputDir sets where saved files land.
func (b *ConfigBuilder) WithOutputDir(dir string) *ConfigBuilder {
	b.settings.OutputDir = dir
	return b
}

// WithBaseName overrides the source-derived entry prefix.
func (b *ConfigBuilder) WithBaseName(name string) *ConfigBuilder {
	b.settings.BaseName = name
	return b
}

// FrameOptions returns the capture options of the export loop.
func (s Settings) FrameOptions() exportloop.FrameOptions {
	return exportloop.FrameOptions{Format: s.Format, Quality: s.Quality, Resize: s.Resize, BaseName: s.BaseName}
}

// ArchiveKind returns the sink kind to open, upgrading zip to zipstream
// when streaming is enabled and a transport is available.
func (s Settings) ArchiveKind(transportUp bool) archivesink.Kind {
	return archivesink.ResolveKind(s.Kind, s.Streaming && transportUp)
}

// SeekMode returns the synchronizer mode for interval exports.
func (s Settings) SeekMode() seeksync.Mode {
	if s.UseDuplicate {
		return seeksync.ModePrivate
	}
	return seeksync.ModePrimary
}

// SeekOptions returns the synchronizer options.
func (s Settings) SeekOptions() seeksync.Options {
	return seeksync.Options{SettleTimeout: s.SettleTimeout}
}

// ClientOptions returns the transport client options.
func (s Settings) ClientOptions() transport.ClientOptions {
	return transport.ClientOptions{AckTimeout: s.AckTimeout, ChunkSize: s.ChunkSize}
}
