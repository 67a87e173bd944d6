// Package framerate estimates a video's frame rate from observed
// inter-frame intervals.
package framerate

import (
	"math"
	"time"
)

// TieBreak decides between rates that were observed equally often.
type TieBreak int

const (
	// TieFirstSeen keeps the rate that reached the winning count first
	// in observation order.
	TieFirstSeen TieBreak = iota
	TieLowest
	TieHighest
)

// ParseTieBreak maps "first", "lowest" and "highest" to a TieBreak.
func ParseTieBreak(s string) (TieBreak, bool) {
	switch s {
	case "", "first":
		return TieFirstSeen, true
	case "lowest":
		return TieLowest, true
	case "highest":
		return TieHighest, true
	default:
		return TieFirstSeen, false
	}
}

// Histogram counts integer frame rates.
type Histogram struct {
	counts map[int]int
	order  []int
	total  int
}

// NewHistogram creates an empty histogram.
func NewHistogram() *Histogram {
	return &Histogram{counts: make(map[int]int)}
}

// Add records one observation. Non-positive rates are ignored.
func (h *Histogram) Add(rate int) {
	if rate <= 0 {
		return
	}
	if _, ok := h.counts[rate]; !ok {
		h.order = append(h.order, rate)
	}
	h.counts[rate]++
	h.total++
}

// AddInterval records the rate implied by the interval between two
// presented frames, rounded to the nearest integer.
func (h *Histogram) AddInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	h.Add(int(math.Round(1 / d.Seconds())))
}

// Total returns the number of recorded observations.
func (h *Histogram) Total() int {
	return h.total
}

// Count returns how often rate was observed.
func (h *Histogram) Count(rate int) int {
	return h.counts[rate]
}

// Mode returns the most frequent rate, or 0 when the histogram is empty.
func (h *Histogram) Mode(tb TieBreak) int {
	best, bestCount := 0, 0
	for _, rate := range h.order {
		c := h.counts[rate]
		switch {
		case c > bestCount:
			best, bestCount = rate, c
		case c == bestCount:
			if tb == TieLowest && rate < best {
				best = rate
			}
			if tb == TieHighest && rate > best {
				best = rate
			}
		}
	}
	return best
}
