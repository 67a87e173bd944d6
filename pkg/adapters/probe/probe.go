// Package probe reads container metadata from MP4 and WebM files without
// decoding any frames.
package probe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/user/framegrab/pkg/ports"
)

// ErrUnsupportedContainer is returned for files that are neither MP4 nor WebM.
var ErrUnsupportedContainer = errors.New("unsupported container")

// ErrNoVideoTrack is returned when the container carries no video track.
var ErrNoVideoTrack = errors.New("no video track found")

// Prober implements ports.Prober.
type Prober struct {
	logger ports.Logger
}

// New creates a Prober.
func New(logger ports.Logger) *Prober {
	return &Prober{logger: logger.WithComponent("probe")}
}

// Probe implements ports.Prober.
func (p *Prober) Probe(path string) (ports.ContainerInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ports.ContainerInfo{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := p.ProbeReader(f)
	if err != nil {
		return info, fmt.Errorf("probe %s: %w", path, err)
	}
	return info, nil
}

// ProbeReader sniffs the container type and reads its metadata.
func (p *Prober) ProbeReader(r io.ReadSeeker) (ports.ContainerInfo, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return ports.ContainerInfo{}, fmt.Errorf("sniff: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return ports.ContainerInfo{}, fmt.Errorf("seek: %w", err)
	}

	var info ports.ContainerInfo
	switch {
	case mtype.Is("video/mp4"), mtype.Is("video/quicktime"), strings.HasPrefix(mtype.String(), "video/mp4"):
		info, err = readMP4(r)
		info.Container = "mp4"
	case mtype.Is("video/webm"), mtype.Is("video/x-matroska"):
		info, err = readWebM(r)
		info.Container = "webm"
	default:
		return ports.ContainerInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedContainer, mtype.String())
	}
	if err != nil {
		return info, err
	}
	info.MediaType = mtype.String()

	p.logger.Debug("Probed %s %s %dx%d, %d samples", info.Container, info.Codec, info.Width, info.Height, len(info.SampleTimes))
	return info, nil
}

var _ ports.Prober = (*Prober)(nil)
