// Package main provides the CLI entry point for framegrab.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %v", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "framegrab",
		Usage:   l10n.T("Export video frames as images and zip archives"),
		Version: version,
		Description: l10n.T("framegrab captures single frames, queued frames or every frame of an interval " +
			"from a video file and delivers them as files, a zip archive or a streamed download."),
		Flags: globalFlags(),
		Commands: []*cli.Command{
			probeCommand(),
			frameCommand(),
			intervalCommand(),
			queueCommand(),
			serveCommand(),
			historyCommand(),
			versionCommand(),
		},
		HideVersion: true,
		Writer:      os.Stdout,
		ErrWriter:   os.Stderr,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: l10n.T("YAML config file (default: $XDG_CONFIG_HOME/framegrab/config.yaml)"), Category: l10n.T("Configuration")},

		&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: l10n.T("Log level (debug, info, warn, error)"), Category: l10n.T("Logging")},
		&cli.StringFlag{Name: "log-format", Usage: l10n.T("Log format (console, json)"), Category: l10n.T("Logging")},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"Q"}, Usage: l10n.T("Suppress all log output"), Category: l10n.T("Logging")},

		&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: l10n.T("Directory saved files land in"), Category: l10n.T("Output")},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: l10n.T("Image format (jpeg, png, webp)"), Category: l10n.T("Output")},
		&cli.StringFlag{Name: "quality", Aliases: []string{"q"}, Usage: l10n.T("Quality preset (low, medium, high) or a value in [0,1]"), Category: l10n.T("Output")},
		&cli.StringFlag{Name: "resize", Usage: l10n.T("Resize frames: 50%, w640 or h480"), Category: l10n.T("Output")},
		&cli.StringFlag{Name: "name", Usage: l10n.T("Prefix for entry names (default: the video file name)"), Category: l10n.T("Output")},
		&cli.BoolFlag{Name: "dry-run", Usage: l10n.T("Capture and encode frames but discard the files"), Category: l10n.T("Output")},
		&cli.StringFlag{Name: "summary", Usage: l10n.T("Write a Markdown summary of the export to this file"), Category: l10n.T("Output")},

		&cli.StringFlag{Name: "archive", Aliases: []string{"a"}, Usage: l10n.T("Delivery: link, zip, zipstream or share"), Category: l10n.T("Delivery")},
		&cli.BoolFlag{Name: "no-stream", Usage: l10n.T("Build zip archives in memory instead of streaming them"), Category: l10n.T("Delivery")},
		&cli.StringFlag{Name: "opener", Usage: l10n.T("Download channel for streamed archives (auto, popup, frame, system, fetch)"), Category: l10n.T("Delivery")},
		&cli.StringFlag{Name: "chrome-path", Usage: l10n.T("Path to Chrome (falls back to CHROME_PATH, then the system browser)"), Category: l10n.T("Delivery")},
		&cli.BoolFlag{Name: "no-headless", Usage: l10n.T("Show the Chrome window"), Category: l10n.T("Delivery")},
		&cli.BoolFlag{Name: "reveal", Usage: l10n.T("Open the folder of shared files"), Category: l10n.T("Delivery")},

		&cli.StringFlag{Name: "worker", Usage: l10n.T("Base URL of a running 'framegrab serve' to stream through"), Category: l10n.T("Transport")},
		&cli.StringFlag{Name: "redis", Usage: l10n.T("Redis address for the ack bus and the cache"), EnvVars: []string{"FRAMEGRAB_REDIS"}, Category: l10n.T("Transport")},
		&cli.DurationFlag{Name: "ack-timeout", Usage: l10n.T("How long to wait for each transport acknowledgement"), Category: l10n.T("Transport")},

		&cli.StringFlag{Name: "ffmpeg", Usage: l10n.T("Path to ffmpeg (default: search PATH)"), Category: l10n.T("Decoding")},
		&cli.StringFlag{Name: "ledger", Usage: l10n.T("Job history database"), Category: l10n.T("History")},
	}
}
