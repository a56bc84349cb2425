package transcode

import (
	"time"

	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

const (
	// DefaultPassOneWeight is the measured share of a two-pass encode spent in pass 1.
	DefaultPassOneWeight = 170.0 / 936.0
	// DefaultPassTwoWeight is the measured share spent in pass 2.
	DefaultPassTwoWeight = 766.0 / 936.0
)

// PassWeights splits the progress range of a two-pass encode between passes.
type PassWeights struct {
	First  float64
	Second float64
}

// DefaultPassWeights returns the empirically chosen x264/x265 ratio.
func DefaultPassWeights() PassWeights {
	return PassWeights{First: DefaultPassOneWeight, Second: DefaultPassTwoWeight}
}

// normalized returns the pass 1 share in 0..1.
func (w PassWeights) normalized() float64 {
	total := w.First + w.Second
	if w.First <= 0 || w.Second <= 0 || total <= 0 {
		return DefaultPassOneWeight
	}
	return w.First / total
}

// Combine maps the progress of one pass onto the whole encode. Pass 1 covers
// [0, first) and pass 2 covers [first, 1]. Indeterminate progress stays
// indeterminate; the pass number is always carried through.
func (w PassWeights) Combine(pass int, p types.Progression) types.Progression {
	out := p
	out.Pass = pass
	if p.Progress < 0 {
		return out
	}

	first := w.normalized()
	switch pass {
	case 1:
		out.Progress = first * p.Progress
		// Extrapolate pass 2 from the pass 1 rate.
		if p.ETA > 0 && p.Progress < 1 {
			passOneTotal := float64(p.ETA) / (1 - p.Progress)
			out.ETA = (p.ETA + time.Duration(passOneTotal*(1-first)/first)).Round(time.Second)
		}
	case 2:
		out.Progress = first + (1-first)*p.Progress
	}
	if out.Progress > 1 {
		out.Progress = 1
	}
	return out
}
