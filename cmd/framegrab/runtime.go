package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	goruntime "runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/user/framegrab/pkg/adapters/broadcast"
	"github.com/user/framegrab/pkg/adapters/chromeopener"
	"github.com/user/framegrab/pkg/adapters/consolealert"
	"github.com/user/framegrab/pkg/adapters/dirsharer"
	"github.com/user/framegrab/pkg/adapters/fetchopener"
	"github.com/user/framegrab/pkg/adapters/ffmpegsource"
	"github.com/user/framegrab/pkg/adapters/filesink"
	"github.com/user/framegrab/pkg/adapters/ggrenderer"
	"github.com/user/framegrab/pkg/adapters/logger"
	"github.com/user/framegrab/pkg/adapters/nullsink"
	"github.com/user/framegrab/pkg/adapters/osfilesystem"
	"github.com/user/framegrab/pkg/adapters/prettyterm"
	"github.com/user/framegrab/pkg/adapters/probe"
	"github.com/user/framegrab/pkg/adapters/sqliteledger"
	"github.com/user/framegrab/pkg/adapters/sysopener"
	"github.com/user/framegrab/pkg/adapters/webkitopener"
	"github.com/user/framegrab/pkg/adapters/wsport"
	"github.com/user/framegrab/pkg/adapters/zaplogger"
	"github.com/user/framegrab/pkg/adapters/zipencoder"
	"github.com/user/framegrab/pkg/archivesink"
	"github.com/user/framegrab/pkg/cachepolicy"
	"github.com/user/framegrab/pkg/config"
	"github.com/user/framegrab/pkg/downloader"
	"github.com/user/framegrab/pkg/exportloop"
	"github.com/user/framegrab/pkg/framegrab"
	"github.com/user/framegrab/pkg/framerate"
	"github.com/user/framegrab/pkg/jobs"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/sampler"
	"github.com/user/framegrab/pkg/transport"
)

// env is what every command builds on: the merged configuration, the
// logger and a stack of cleanups run in reverse order.
type env struct {
	cfg      config.Config
	settings framegrab.Settings
	log      ports.Logger
	fs       *osfilesystem.FileSystem
	cleanups []func()
}

func newEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	overrideConfig(c, &cfg)

	e := &env{cfg: cfg, fs: osfilesystem.New()}
	if e.log, err = newLogger(c, cfg); err != nil {
		return nil, err
	}

	b := framegrab.FromConfig(cfg)
	if c.IsSet("name") {
		b.WithBaseName(c.String("name"))
	}
	if e.settings, err = b.Build(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return e, nil
}

// overrideConfig applies command-line flags over the file values.
func overrideConfig(c *cli.Context, cfg *config.Config) {
	str := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("output-dir", &cfg.OutputDir)
	str("format", &cfg.Format)
	str("quality", &cfg.Quality)
	str("resize", &cfg.Resize)
	str("archive", &cfg.Archive)
	str("opener", &cfg.Opener)
	str("chrome-path", &cfg.ChromePath)
	str("redis", &cfg.Redis.Addr)
	str("ffmpeg", &cfg.FFmpegPath)
	str("ledger", &cfg.LedgerPath)

	if c.Bool("no-stream") {
		cfg.Streaming = false
	}
	if c.Bool("no-headless") {
		cfg.Headless = false
	}
	if c.IsSet("ack-timeout") {
		cfg.AckTimeoutMs = int(c.Duration("ack-timeout") / time.Millisecond)
	}
	if c.Bool("quiet") {
		cfg.LogLevel = ports.LevelQuiet.String()
	}
}

func newLogger(c *cli.Context, cfg config.Config) (ports.Logger, error) {
	level := ports.ParseLogLevel(cfg.LogLevel)
	if level == ports.LevelQuiet {
		return logger.NewNoop(), nil
	}
	if cfg.LogFormat == "json" {
		z, err := zaplogger.New(level)
		if err != nil {
			return nil, err
		}
		return z, nil
	}
	return logger.NewWriter(level, c.App.ErrWriter), nil
}

func (e *env) onClose(f func()) {
	e.cleanups = append(e.cleanups, f)
}

func (e *env) close() {
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
	if z, ok := e.log.(*zaplogger.Logger); ok {
		z.Sync()
	}
}

func (e *env) redisClient() *redis.Client {
	if e.cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     e.cfg.Redis.Addr,
		Password: e.cfg.Redis.Password,
		DB:       e.cfg.Redis.DB,
	})
	e.onClose(func() { client.Close() })
	return client
}

// background is the streaming side of an export: the client that posts
// messages and the address the download route is served at.
type background struct {
	client      *transport.Client
	server      *downloader.Server // nil when streaming through a remote worker
	downloadURL func(id string) string
}

// startBackground connects to a remote worker when --worker is given and
// otherwise runs the worker and the download route in this process.
func (e *env) startBackground(ctx context.Context, remote string) (*background, error) {
	opts := e.settings.ClientOptions()

	if remote != "" {
		base, err := url.Parse(remote)
		if err != nil {
			return nil, fmt.Errorf("parse worker URL: %w", err)
		}
		downloadURL := func(id string) string {
			return base.JoinPath("downloader").String() + "?id=" + url.QueryEscape(id)
		}

		var poster transport.Poster
		var acks transport.AckSource
		if rc := e.redisClient(); rc != nil {
			bus := broadcast.NewRedis(rc, e.cfg.Redis.Prefix, e.log)
			poster, acks = bus, bus
		} else {
			conn, err := wsport.Dial(ctx, remote, e.log)
			if err != nil {
				return nil, err
			}
			e.onClose(func() { conn.Close() })
			poster, acks = conn, conn
		}

		client, err := transport.NewClient(ctx, poster, acks, opts, e.log)
		if err != nil {
			return nil, err
		}
		e.onClose(func() { client.Close() })
		return &background{client: client, downloadURL: downloadURL}, nil
	}

	bus := broadcast.NewLocal()
	worker := transport.NewWorker(bus, e.log)
	srv := downloader.NewServer(downloader.Config{Addr: e.cfg.Listen, Worker: worker, Acks: bus, Logger: e.log})
	if _, err := srv.Start(ctx); err != nil {
		return nil, err
	}

	client, err := transport.NewClient(ctx, worker, bus, opts, e.log)
	if err != nil {
		return nil, err
	}
	e.onClose(func() { client.Close() })
	return &background{client: client, server: srv, downloadURL: srv.DownloadURL}, nil
}

// autoChannel picks the download channel for the platform once at start:
// macOS gets the WebKit frame channel of its platform browser, other
// systems a Chrome popup when Chrome is installed and a plain fetch
// otherwise.
func autoChannel(goos string, chromeFound bool) string {
	switch {
	case goos == "darwin":
		return "frame"
	case chromeFound:
		return "popup"
	default:
		return "fetch"
	}
}

func (e *env) newOpener(files *filesink.Sink, bg *background) (ports.DownloadOpener, error) {
	channel := e.cfg.Opener
	if channel == "auto" {
		channel = autoChannel(goruntime.GOOS, chromeopener.ResolveChromePath(e.cfg.ChromePath) != "")
		e.log.Info("Download channel: %s", channel)
	}

	switch channel {
	case "", "fetch":
		return fetchopener.New(files, archivesink.DefaultArchiveName(time.Now()), e.log), nil
	case "popup", "chrome":
		return chromeopener.New(chromeopener.Options{
			ChromePath:  e.cfg.ChromePath,
			Headless:    e.cfg.Headless,
			DownloadDir: files.Dir(),
			AutoInstall: true,
		}, e.log), nil
	case "frame":
		return webkitopener.New(files, webkitopener.Options{
			Headless:    e.cfg.Headless,
			AutoInstall: true,
		}, e.log), nil
	case "system":
		var watch sysopener.Watcher
		if bg != nil && bg.server != nil {
			watch = bg.server.WatchDelivery
		}
		return sysopener.New(watch, e.log), nil
	}
	return nil, fmt.Errorf("unknown opener %q", e.cfg.Opener)
}

// exporter is the assembled export pipeline.
type exporter struct {
	loop    *exportloop.Loop
	prober  *probe.Prober
	decoder ffmpegsource.Decoder
	tracker *jobs.Tracker
	bg      *background
}

func (e *env) newExporter(ctx context.Context, c *cli.Context) (*exporter, error) {
	files := filesink.New(e.settings.OutputDir, e.fs, e.log)
	var saver dirsharer.Saver = files
	dryRun := c.Bool("dry-run")
	if dryRun {
		discard := nullsink.New()
		saver = discard
		e.onClose(func() {
			n, size := discard.Totals()
			e.log.Info("Dry run: discarded %d files (%s)", n, humanize.Bytes(uint64(size)))
		})
	}

	var bg *background
	streams := e.settings.Kind == archivesink.KindZipStream || (e.settings.Kind == archivesink.KindZip && e.settings.Streaming)
	if streams && !dryRun {
		var err error
		if bg, err = e.startBackground(ctx, c.String("worker")); err != nil {
			return nil, fmt.Errorf("start transport: %w", err)
		}
	}

	deps := archivesink.Deps{
		Encoder:  zipencoder.New(),
		Saver:    saver,
		Sharer:   dirsharer.New(saver, c.Bool("reveal") && !dryRun, e.log),
		Notifier: consolealert.New(e.log),
		Logger:   e.log,
	}
	if bg != nil {
		opener, err := e.newOpener(files, bg)
		if err != nil {
			return nil, err
		}
		e.onClose(func() { opener.Close() })
		deps.Streamer, deps.Opener, deps.DownloadURL = bg.client, opener, bg.downloadURL
	}

	tracker := jobs.NewTracker(e.openLedger(), e.log)
	if e.cfg.LogFormat != "json" && isatty.IsTerminal(os.Stderr.Fd()) && e.cfg.LogLevel != ports.LevelQuiet.String() {
		bars := prettyterm.NewProgress(os.Stderr)
		tracker.Observe(bars)
		e.onClose(bars.Stop)
	}

	decoder, err := ffmpegsource.NewFFmpeg(e.cfg.FFmpegPath)
	if err != nil {
		return nil, err
	}

	prober := probe.New(e.log)
	playback := framerate.NewPlaybackEstimator(e.log)
	playback.TieBreak = e.settings.TieBreak
	estimator := framerate.Chain{
		&framerate.ContainerEstimator{Prober: prober, TieBreak: e.settings.TieBreak},
		playback,
	}

	loop := exportloop.New(
		sampler.New(ggrenderer.New(), e.log),
		archivesink.NewCoordinator(deps),
		tracker,
		estimator,
		e.settings.SeekOptions(),
		e.log,
	)
	return &exporter{loop: loop, prober: prober, decoder: decoder, tracker: tracker, bg: bg}, nil
}

// openLedger returns nil when the history database cannot be opened; the
// export still runs.
func (e *env) openLedger() ports.JobLedger {
	if e.cfg.LedgerPath == "" {
		return nil
	}
	ledger, err := sqliteledger.Open(e.cfg.LedgerPath, e.log)
	if err != nil {
		e.log.Warn("History disabled: %v", err)
		return nil
	}
	e.onClose(func() { ledger.Close() })
	return ledger
}

func (x *exporter) openSource(ctx context.Context, path string, log ports.Logger) (*ffmpegsource.Source, error) {
	src, err := ffmpegsource.Open(ctx, path, x.prober, x.decoder, log)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return src, nil
}

// kind is the sink kind to open for zip jobs. Without a transport a
// streamed zip is built in memory instead.
func (x *exporter) kind(s framegrab.Settings) archivesink.Kind {
	k := s.ArchiveKind(x.bg != nil)
	if k == archivesink.KindZipStream && x.bg == nil {
		return archivesink.KindZip
	}
	return k
}

// newCacheFallback builds the network-first handler for non-download paths.
func newCacheFallback(upstream string, rc *redis.Client, prefix string, ttl time.Duration, log ports.Logger) (*cachepolicy.Handler, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse cache upstream: %w", err)
	}
	var store cachepolicy.Store = cachepolicy.NewMemoryStore()
	if rc != nil {
		store = cachepolicy.NewRedisStore(rc, prefix+":cache:", ttl)
	}
	return cachepolicy.NewHandler(u, store, log), nil
}

var errMissingFile = errors.New("a video file is required")
