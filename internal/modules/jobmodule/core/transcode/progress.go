package transcode

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

var (
	progressLineRegex = regexp.MustCompile(`^(\w+)=\s*(.*)$`)
	speedRegex        = regexp.MustCompile(`^([0-9]*\.?[0-9]+)x$`)
)

// ProgressParser decodes the key=value blocks ffmpeg writes with -progress.
// A block ends with a progress=continue or progress=end line.
type ProgressParser struct {
	duration time.Duration
	elapsed  time.Duration
	speed    float64
	ended    bool
}

// NewProgressParser creates a parser for a run covering duration of media.
// A zero duration makes every reported fraction indeterminate.
func NewProgressParser(duration time.Duration) *ProgressParser {
	return &ProgressParser{duration: duration}
}

// ParseLine consumes one output line. It returns the progression and true
// when the line completed a block.
func (p *ProgressParser) ParseLine(line string) (types.Progression, bool) {
	matches := progressLineRegex.FindStringSubmatch(strings.TrimSpace(line))
	if len(matches) != 3 {
		return types.Progression{}, false
	}
	key, value := matches[1], strings.TrimSpace(matches[2])

	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			p.elapsed = time.Duration(us) * time.Microsecond
		}
	case "speed":
		p.speed = parseSpeed(value)
	case "progress":
		p.ended = value == "end"
		return p.Current(), true
	}
	return types.Progression{}, false
}

// Current returns the progression for the values seen so far.
func (p *ProgressParser) Current() types.Progression {
	prog := types.Progression{Speed: p.speed}
	if p.duration <= 0 {
		prog.Progress = types.ProgressIndeterminate
		return prog
	}

	fraction := float64(p.elapsed) / float64(p.duration)
	if p.ended || fraction > 1 {
		fraction = 1
	}
	prog.Progress = fraction

	if p.speed > 0 && !p.ended {
		remaining := p.duration - p.elapsed
		if remaining > 0 {
			prog.ETA = time.Duration(float64(remaining) / p.speed).Round(time.Second)
		}
	}
	return prog
}

// Elapsed returns the media time processed so far.
func (p *ProgressParser) Elapsed() time.Duration {
	return p.elapsed
}

// parseSpeed parses "1.25x"; "N/A" and malformed values yield 0.
func parseSpeed(value string) float64 {
	m := speedRegex.FindStringSubmatch(value)
	if len(m) != 2 {
		return 0
	}
	speed, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return speed
}
