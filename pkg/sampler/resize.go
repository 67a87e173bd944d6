package sampler

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ResizeMode selects how a Resize value is interpreted.
type ResizeMode string

const (
	ResizeNone       ResizeMode = ""
	ResizePercentage ResizeMode = "percentage"
	ResizeWidth      ResizeMode = "width"
	ResizeHeight     ResizeMode = "height"
)

// Resize scales captured frames relative to the native size.
type Resize struct {
	Mode  ResizeMode
	Value float64
}

// Apply returns the width and height to request for a native size.
// A zero return means "native" for that dimension.
func (r Resize) Apply(nativeW, nativeH int) (int, int) {
	switch r.Mode {
	case ResizePercentage:
		if r.Value <= 0 {
			return 0, 0
		}
		w := int(math.Round(float64(nativeW) * r.Value / 100))
		h := int(math.Round(float64(nativeH) * r.Value / 100))
		return atLeastOne(w), atLeastOne(h)
	case ResizeWidth:
		return int(r.Value), 0
	case ResizeHeight:
		return 0, int(r.Value)
	default:
		return 0, 0
	}
}

// ParseResize parses "50%", "w640", "h480" or "" (native).
func ParseResize(s string) (Resize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Resize{}, nil
	}

	var mode ResizeMode
	var num string
	switch {
	case strings.HasSuffix(s, "%"):
		mode, num = ResizePercentage, strings.TrimSuffix(s, "%")
	case strings.HasPrefix(s, "w"):
		mode, num = ResizeWidth, s[1:]
	case strings.HasPrefix(s, "h"):
		mode, num = ResizeHeight, s[1:]
	default:
		return Resize{}, fmt.Errorf("invalid resize %q: use 50%%, w640 or h480", s)
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v <= 0 {
		return Resize{}, fmt.Errorf("invalid resize value %q", s)
	}
	return Resize{Mode: mode, Value: v}, nil
}
