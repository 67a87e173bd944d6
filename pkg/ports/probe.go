package ports

import "time"

// ContainerInfo is what a Prober learns from a media file without decoding it.
type ContainerInfo struct {
	Container   string // "mp4" or "webm"
	MediaType   string
	Codec       string
	Width       int
	Height      int
	Duration    time.Duration
	DeclaredFPS float64

	// SampleTimes are the presentation times of the video samples that
	// could be read from the container index, in decode order.
	SampleTimes []time.Duration
}

// Prober reads container metadata.
type Prober interface {
	Probe(path string) (ContainerInfo, error)
}
