package transcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(p *ProgressParser, lines ...string) []float64 {
	var out []float64
	for _, l := range lines {
		if prog, ok := p.ParseLine(l); ok {
			out = append(out, prog.Progress)
		}
	}
	return out
}

func TestProgressParser_Blocks(t *testing.T) {
	p := NewProgressParser(100 * time.Second)

	got := feed(p,
		"frame=10",
		"out_time_us=25000000",
		"out_time_ms=25000000",
		"out_time=00:00:25.000000",
		"speed=2.5x",
		"progress=continue",
		"out_time_ms=50000000",
		"speed=N/A",
		"progress=continue",
	)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.25, got[0], 1e-9)
	assert.InDelta(t, 0.5, got[1], 1e-9)
}

func TestProgressParser_SpeedAndETA(t *testing.T) {
	p := NewProgressParser(100 * time.Second)
	feed(p, "out_time_ms=40000000", "speed=2x")

	prog, ok := p.ParseLine("progress=continue")
	require.True(t, ok)
	assert.Equal(t, 2.0, prog.Speed)
	assert.Equal(t, 30*time.Second, prog.ETA)
}

func TestProgressParser_EndMarkerCompletes(t *testing.T) {
	p := NewProgressParser(100 * time.Second)
	feed(p, "out_time_ms=99000000", "speed=1.0x")

	prog, ok := p.ParseLine("progress=end")
	require.True(t, ok)
	assert.Equal(t, 1.0, prog.Progress)
	assert.Zero(t, prog.ETA)
}

func TestProgressParser_UnknownDurationIsIndeterminate(t *testing.T) {
	p := NewProgressParser(0)
	feed(p, "out_time_ms=5000000", "speed=1.1x")

	prog, ok := p.ParseLine("progress=continue")
	require.True(t, ok)
	assert.True(t, prog.IsIndeterminate())
	assert.Equal(t, 1.1, prog.Speed)
	assert.Equal(t, 5*time.Second, p.Elapsed())
}

func TestProgressParser_IgnoresNoise(t *testing.T) {
	p := NewProgressParser(10 * time.Second)
	assert.Empty(t, feed(p, "", "garbage line", "out_time_ms=N/A", "bitrate=N/A"))

	prog := p.Current()
	assert.Equal(t, 0.0, prog.Progress)
}

func TestProgressParser_ClampsOvershoot(t *testing.T) {
	p := NewProgressParser(10 * time.Second)
	got := feed(p, "out_time_ms=12000000", "progress=continue")
	assert.Equal(t, []float64{1}, got)
}

func TestParseSpeed(t *testing.T) {
	assert.Equal(t, 1.5, parseSpeed("1.5x"))
	assert.Equal(t, 0.25, parseSpeed(".25x"))
	assert.Equal(t, 12.0, parseSpeed("12x"))
	assert.Zero(t, parseSpeed("N/A"))
	assert.Zero(t, parseSpeed("fast"))
}
