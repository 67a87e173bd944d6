package probe

import (
	"fmt"
	"io"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/user/framegrab/pkg/ports"
)

func readMP4(r io.ReadSeeker) (ports.ContainerInfo, error) {
	file, err := mp4.DecodeFile(r)
	if err != nil {
		return ports.ContainerInfo{}, fmt.Errorf("decode mp4: %w", err)
	}

	moov := file.Moov
	if file.IsFragmented() && file.Init != nil {
		moov = file.Init.Moov
	}
	if moov == nil {
		return ports.ContainerInfo{}, ErrNoVideoTrack
	}

	trak := videoTrak(moov)
	if trak == nil {
		return ports.ContainerInfo{}, ErrNoVideoTrack
	}

	info := ports.ContainerInfo{
		Width:  int(trak.Tkhd.Width >> 16),
		Height: int(trak.Tkhd.Height >> 16),
	}
	timescale := uint32(1000)
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale > 0 {
		timescale = trak.Mdia.Mdhd.Timescale
	}
	describeSampleEntry(trak, &info)

	var end uint64
	if file.IsFragmented() {
		end, err = fragmentTimes(file, moov, trak.Tkhd.TrackID, timescale, &info)
	} else {
		end = progressiveTimes(trak, timescale, &info)
	}
	if err != nil {
		return info, err
	}
	info.Duration = ticks(end, timescale)
	return info, nil
}

func videoTrak(moov *mp4.MoovBox) *mp4.TrakBox {
	for _, trak := range moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide" {
			return trak
		}
	}
	return nil
}

// describeSampleEntry fills the codec, the coded size when the track header
// has none, and the SPS frame rate for AVC tracks.
func describeSampleEntry(trak *mp4.TrakBox, info *ports.ContainerInfo) {
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return
	}
	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		switch child.Type() {
		case "avc1", "avc3":
			info.Codec = "h264"
		case "hvc1", "hev1":
			info.Codec = "h265"
		case "av01":
			info.Codec = "av1"
		case "vp09":
			info.Codec = "vp9"
		default:
			continue
		}

		entry, ok := child.(*mp4.VisualSampleEntryBox)
		if !ok {
			return
		}
		if info.Width == 0 || info.Height == 0 {
			info.Width, info.Height = int(entry.Width), int(entry.Height)
		}
		if entry.AvcC != nil && len(entry.AvcC.SPSnalus) > 0 {
			info.DeclaredFPS = spsFrameRate(entry.AvcC.SPSnalus[0])
		}
		return
	}
}

func spsFrameRate(nalu []byte) float64 {
	var sps h264.SPS
	if err := sps.Unmarshal(nalu); err != nil {
		return 0
	}
	return sps.FPS()
}

func progressiveTimes(trak *mp4.TrakBox, timescale uint32, info *ports.ContainerInfo) uint64 {
	stbl := trak.Mdia.Minf.Stbl
	if stbl == nil || stbl.Stts == nil || stbl.Stsz == nil {
		return 0
	}
	var end uint64
	for nr := uint32(1); nr <= stbl.Stsz.SampleNumber; nr++ {
		decodeTime, dur := stbl.Stts.GetDecodeTime(nr)
		info.SampleTimes = append(info.SampleTimes, ticks(decodeTime, timescale))
		end = decodeTime + uint64(dur)
	}
	return end
}

func fragmentTimes(file *mp4.File, moov *mp4.MoovBox, trackID, timescale uint32, info *ports.ContainerInfo) (uint64, error) {
	var trex *mp4.TrexBox
	if moov.Mvex != nil {
		for _, t := range moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	var end uint64
	for _, seg := range file.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			samples, err := frag.GetFullSamples(trex)
			if err != nil {
				return end, fmt.Errorf("read fragment samples: %w", err)
			}
			for _, s := range samples {
				info.SampleTimes = append(info.SampleTimes, ticks(s.DecodeTime, timescale))
				end = s.DecodeTime + uint64(s.Dur)
			}
		}
	}
	return end, nil
}

func ticks(v uint64, timescale uint32) time.Duration {
	return time.Duration(v * uint64(time.Second) / uint64(timescale))
}
