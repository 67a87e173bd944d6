package probe

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"

	"github.com/user/framegrab/pkg/ports"
)

const (
	trackTypeVideo       = 1
	defaultTimecodeScale = 1000000
)

var webmCodecs = map[string]string{
	"V_VP8":           "vp8",
	"V_VP9":           "vp9",
	"V_AV1":           "av1",
	"V_MPEG4/ISO/AVC": "h264",
}

type webmFile struct {
	Header  webm.EBMLHeader `ebml:"EBML"`
	Segment webm.Segment    `ebml:"Segment"`
}

func readWebM(r io.Reader) (ports.ContainerInfo, error) {
	var f webmFile
	if err := ebml.Unmarshal(r, &f); err != nil && len(f.Segment.Tracks.TrackEntry) == 0 {
		return ports.ContainerInfo{}, fmt.Errorf("decode webm: %w", err)
	}

	var track *webm.TrackEntry
	for i := range f.Segment.Tracks.TrackEntry {
		if f.Segment.Tracks.TrackEntry[i].TrackType == trackTypeVideo {
			track = &f.Segment.Tracks.TrackEntry[i]
			break
		}
	}
	if track == nil {
		return ports.ContainerInfo{}, ErrNoVideoTrack
	}

	info := ports.ContainerInfo{Codec: webmCodecs[track.CodecID]}
	if info.Codec == "" {
		info.Codec = track.CodecID
	}
	if track.Video != nil {
		info.Width, info.Height = int(track.Video.PixelWidth), int(track.Video.PixelHeight)
	}
	if track.DefaultDuration > 0 {
		info.DeclaredFPS = float64(time.Second) / float64(track.DefaultDuration)
	}

	scale := f.Segment.Info.TimecodeScale
	if scale == 0 {
		scale = defaultTimecodeScale
	}
	for _, cluster := range f.Segment.Cluster {
		for _, block := range cluster.SimpleBlock {
			if block.TrackNumber != track.TrackNumber {
				continue
			}
			tc := int64(cluster.Timecode) + int64(block.Timecode)
			info.SampleTimes = append(info.SampleTimes, time.Duration(tc*int64(scale)))
		}
	}
	sort.Slice(info.SampleTimes, func(i, j int) bool { return info.SampleTimes[i] < info.SampleTimes[j] })

	if f.Segment.Info.Duration > 0 {
		info.Duration = time.Duration(f.Segment.Info.Duration * float64(scale))
	} else if n := len(info.SampleTimes); n > 0 {
		info.Duration = info.SampleTimes[n-1]
	}
	return info, nil
}
