package ffmpegsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// ErrFFmpegNotFound is returned when no ffmpeg binary can be located.
var ErrFFmpegNotFound = errors.New("ffmpeg not found")

// Decoder decodes the frame presented at a media position.
type Decoder interface {
	DecodeAt(ctx context.Context, path string, pos time.Duration) (image.Image, error)
}

// FFmpeg decodes single frames by running the ffmpeg binary.
type FFmpeg struct {
	Path string
}

// NewFFmpeg locates ffmpeg. custom, when set, must exist.
func NewFFmpeg(custom string) (*FFmpeg, error) {
	path, err := FindFFmpeg(custom)
	if err != nil {
		return nil, err
	}
	return &FFmpeg{Path: path}, nil
}

// DecodeAt seeks with -ss before the input, so ffmpeg lands on the frame
// presented at pos rather than decoding from the start.
func (f *FFmpeg) DecodeAt(ctx context.Context, path string, pos time.Duration) (image.Image, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Path,
		"-v", "error",
		"-ss", strconv.FormatFloat(pos.Seconds(), 'f', 6, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode at %v: %w\nstderr: %s", pos, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %v", pos)
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

// FindFFmpeg searches custom, then PATH, then common install locations.
func FindFFmpeg(custom string) (string, error) {
	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, custom)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	var common []string
	if runtime.GOOS == "windows" {
		common = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	} else {
		common = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/opt/homebrew/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}
	for _, p := range common {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrFFmpegNotFound
}
