package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/framegrab/pkg/adapters/broadcast"
	"github.com/user/framegrab/pkg/adapters/prettyterm"
	"github.com/user/framegrab/pkg/adapters/probe"
	"github.com/user/framegrab/pkg/adapters/sqliteledger"
	"github.com/user/framegrab/pkg/archivesink"
	"github.com/user/framegrab/pkg/downloader"
	"github.com/user/framegrab/pkg/exportloop"
	"github.com/user/framegrab/pkg/framequeue"
	"github.com/user/framegrab/pkg/framerate"
	"github.com/user/framegrab/pkg/ports"
	"github.com/user/framegrab/pkg/seeksync"
	"github.com/user/framegrab/pkg/summarizer"
	"github.com/user/framegrab/pkg/transport"
)

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     l10n.T("Show container details and the detected frame rate"),
		ArgsUsage: "<video>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return errMissingFile
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			info, err := probe.New(e.log).Probe(path)
			if err != nil {
				return err
			}
			est, err := framerate.FromSampleTimes(info.SampleTimes, info.DeclaredFPS, e.settings.TieBreak)
			if err != nil {
				e.log.Warn("Frame rate unknown: %v", err)
			}
			prettyterm.WriteContainer(c.App.Writer, path, info, est.Rate, est.Method)
			return nil
		},
	}
}

func frameCommand() *cli.Command {
	return &cli.Command{
		Name:      "frame",
		Usage:     l10n.T("Export the frame at one position"),
		ArgsUsage: "<video>",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "at", Usage: l10n.T("Position in seconds")},
		},
		Action: func(c *cli.Context) error {
			return withExporter(c, func(ctx context.Context, e *env, x *exporter, src ports.VideoSource) error {
				if err := seekPrimary(ctx, e, src, seconds(c.Float64("at"))); err != nil {
					return err
				}

				kind := e.settings.Kind
				if kind != archivesink.KindShare {
					kind = archivesink.KindLink
				}
				res, err := x.loop.ExportFrame(ctx, src, e.settings.FrameOptions(), kind)
				if err != nil {
					return err
				}
				return e.writeSummary(c, src, res, 0, 0)
			})
		},
	}
}

func intervalCommand() *cli.Command {
	return &cli.Command{
		Name:      "interval",
		Usage:     l10n.T("Export every frame between two positions"),
		ArgsUsage: "<video>",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "start", Aliases: []string{"s"}, Usage: l10n.T("Start position in seconds")},
			&cli.Float64Flag{Name: "end", Aliases: []string{"e"}, Usage: l10n.T("End position in seconds (default: the end of the video)")},
			&cli.IntFlag{Name: "fps", Usage: l10n.T("Frame rate (default: detect)")},
			&cli.BoolFlag{Name: "no-duplicate", Usage: l10n.T("Seek the opened video itself instead of a private copy")},
		},
		Action: func(c *cli.Context) error {
			return withExporter(c, func(ctx context.Context, e *env, x *exporter, src ports.VideoSource) error {
				start, end := seconds(c.Float64("start")), seconds(c.Float64("end"))
				if !c.IsSet("end") {
					end = src.Info().Duration
				}
				fps := e.settings.FPS
				if c.IsSet("fps") {
					fps = c.Int("fps")
				}
				mode := e.settings.SeekMode()
				if c.Bool("no-duplicate") {
					mode = seeksync.ModePrimary
				}

				res, err := x.loop.ExportInterval(ctx, exportloop.IntervalRequest{
					Source: src,
					Start:  start,
					End:    end,
					Rate:   fps,
					Kind:   x.kind(e.settings),
					Frame:  e.settings.FrameOptions(),
					Mode:   mode,
				})
				if err != nil {
					return err
				}
				e.log.Info("Export finished: %s", res.ArchiveName)
				return e.writeSummary(c, src, res, start, end)
			})
		},
	}
}

func queueCommand() *cli.Command {
	return &cli.Command{
		Name:      "queue",
		Usage:     l10n.T("Export a list of positions as one archive"),
		ArgsUsage: "<video>",
		Flags: []cli.Flag{
			&cli.Float64SliceFlag{Name: "at", Usage: l10n.T("Position in seconds; repeat for each frame")},
			&cli.BoolFlag{Name: "capture-now", Usage: l10n.T("Capture each frame while queueing instead of at export time")},
			&cli.BoolFlag{Name: "keep", Usage: l10n.T("Queue the positions for a later run without exporting")},
			&cli.BoolFlag{Name: "clear", Usage: l10n.T("Empty the stored queue after a successful export")},
		},
		Action: func(c *cli.Context) error {
			return withExporter(c, func(ctx context.Context, e *env, x *exporter, src ports.VideoSource) error {
				store := framequeue.NewStore(e.cfg.QueuePath)
				key := src.Info().Path
				q, stale, err := store.Load(key)
				if err != nil {
					return err
				}
				if stale {
					e.log.Warn("Discarding the queue kept for another video")
				}

				for _, at := range c.Float64Slice("at") {
					item := framequeue.Item{Position: seconds(at)}
					if c.Bool("capture-now") {
						if err := seekPrimary(ctx, e, src, item.Position); err != nil {
							return err
						}
						frame, err := x.loop.CaptureFrame(ctx, src, e.settings.FrameOptions())
						if err != nil {
							e.log.Warn("Skipping frame at %.3fs: %s", at, err)
							continue
						}
						item.Frame = &frame
					}
					q.Add(item)
				}
				// Stored before exporting so a failed export keeps the picks.
				if err := store.Save(key, q); err != nil {
					return err
				}
				if c.Bool("keep") {
					e.log.Info("%d frames queued in %s", q.Len(), store.Path())
					return nil
				}

				res, err := x.loop.ExportQueue(ctx, exportloop.QueueRequest{
					Source: src,
					Items:  q.List(),
					Kind:   x.kind(e.settings),
					Frame:  e.settings.FrameOptions(),
					Mode:   e.settings.SeekMode(),
				})
				if err != nil {
					return err
				}
				if e.settings.ClearQueue || c.Bool("clear") {
					q.Clear()
					if err := store.Save(key, q); err != nil {
						return err
					}
				}
				e.log.Info("Export finished: %s", res.ArchiveName)
				return e.writeSummary(c, src, res, 0, 0)
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: l10n.T("Run the background worker and the download route"),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: l10n.T("Address to listen on"), Value: "127.0.0.1:8787"},
			&cli.StringFlag{Name: "cache-upstream", Usage: l10n.T("Serve other paths from this origin, falling back to the cache")},
		},
		Action: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			ctx := c.Context

			cfg := downloader.Config{Addr: c.String("listen"), Logger: e.log}
			rc := e.redisClient()
			if rc != nil {
				bus := broadcast.NewRedis(rc, e.cfg.Redis.Prefix, e.log)
				cfg.Worker = transport.NewWorker(bus, e.log)
				cfg.Acks = bus
				go func() {
					if err := bus.Listen(ctx, cfg.Worker.Handle); err != nil {
						e.log.Error("Redis listener stopped: %v", err)
					}
				}()
			} else {
				bus := broadcast.NewLocal()
				cfg.Worker = transport.NewWorker(bus, e.log)
				cfg.Acks = bus
			}

			upstream := c.String("cache-upstream")
			if upstream == "" {
				upstream = e.cfg.Cache.Upstream
			}
			if upstream != "" {
				ttl := time.Duration(e.cfg.Cache.TTLSec) * time.Second
				fallback, err := newCacheFallback(upstream, rc, e.cfg.Redis.Prefix, ttl, e.log)
				if err != nil {
					return err
				}
				cfg.Fallback = fallback
			}

			if _, err := downloader.NewServer(cfg).Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			e.log.Info("Interrupted, shutting down...")
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: l10n.T("List recent export jobs"),
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: l10n.T("Number of jobs to show"), Value: 20},
		},
		Action: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			ledger, err := sqliteledger.Open(e.cfg.LedgerPath, e.log)
			if err != nil {
				return err
			}
			defer ledger.Close()

			recs, err := ledger.Recent(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			prettyterm.WriteHistory(c.App.Writer, recs)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: l10n.T("Show version information"),
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, l10n.F("framegrab version %s", version))
			return nil
		},
	}
}

// withExporter opens the video named by the first argument and runs fn
// with the assembled pipeline.
func withExporter(c *cli.Context, fn func(ctx context.Context, e *env, x *exporter, src ports.VideoSource) error) error {
	path := c.Args().First()
	if path == "" {
		return errMissingFile
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := c.Context

	x, err := e.newExporter(ctx, c)
	if err != nil {
		return err
	}
	src, err := x.openSource(ctx, path, e.log)
	if err != nil {
		return err
	}
	defer src.Close()

	return fn(ctx, e, x, src)
}

// seekPrimary moves the opened video itself to pos.
func seekPrimary(ctx context.Context, e *env, src ports.VideoSource, pos time.Duration) error {
	syncer, err := seeksync.Acquire(ctx, src, seeksync.ModePrimary, e.settings.SeekOptions(), e.log)
	if err != nil {
		return err
	}
	defer syncer.Release()
	_, err = syncer.Advance(ctx, pos)
	return err
}

// writeSummary writes --summary when given. start and end are zero for
// exports that are not intervals.
func (e *env) writeSummary(c *cli.Context, src ports.VideoSource, res exportloop.Result, start, end time.Duration) error {
	path := c.String("summary")
	if path == "" {
		return nil
	}

	info := src.Info()
	source := summarizer.SourceInfo{Name: info.Name, Width: info.Width, Height: info.Height, Duration: info.Duration}
	if cs, ok := src.(interface{ Container() ports.ContainerInfo }); ok {
		ci := cs.Container()
		source.Container, source.Codec = ci.Container, ci.Codec
	}

	b := summarizer.NewBuilder().
		WithSource(source).
		WithExport(summarizer.ExportInfo{
			JobID:       res.JobID,
			Kind:        string(res.Kind),
			ArchiveName: res.ArchiveName,
			Location:    res.Location,
			Entries:     res.Entries,
			Skipped:     res.Skipped,
			Conflicts:   res.Conflicts,
			Bytes:       res.Bytes,
			Elapsed:     res.Duration,
		}).
		WithSettings(summarizer.Settings{
			Format:  string(e.settings.Format),
			Quality: e.settings.Quality,
			Resize:  c.String("resize"),
			Mode:    e.settings.SeekMode().String(),
		})
	if res.Rate > 0 {
		b.WithInterval(start, end, res.Rate, res.RateMethod)
	}

	w := summarizer.NewWriter(summarizer.NewMarkdownFormatter(), e.fs)
	if err := w.Write(path, b.Build()); err != nil {
		return err
	}
	e.log.Info("Saved %s", path)
	return nil
}
