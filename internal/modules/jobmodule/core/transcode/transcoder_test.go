package transcode

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process/processtest"
	joberrors "github.com/mantonx/remuxer/internal/modules/jobmodule/errors"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg writes a shell script standing in for ffmpeg. Every invocation
// appends its arguments to the returned log file.
func fakeFFmpeg(t *testing.T, body string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	dir := t.TempDir()
	logPath := filepath.Join(dir, "calls.log")
	script := "#!/bin/sh\necho \"$*\" >> " + logPath + "\n" + body + "\n"
	path := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, logPath
}

func calls(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

const progressScript = `
echo "out_time_ms=5000000"
echo "speed=2.0x"
echo "progress=continue"
echo "out_time_ms=10000000"
echo "progress=end"
exit 0`

type recorder struct {
	mu    sync.Mutex
	ticks []types.Progression
}

func (r *recorder) report(p types.Progression) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, p)
}

func (r *recorder) progress() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, 0, len(r.ticks))
	for _, p := range r.ticks {
		out = append(out, p.Progress)
	}
	return out
}

func newTestTranscoder(path string, opts Options) *Transcoder {
	driver := NewDriver(path, processtest.NewController(), nil, hclog.NewNullLogger())
	return NewTranscoder(driver, opts, hclog.NewNullLogger())
}

func TestEncode_SinglePassReportsProgress(t *testing.T) {
	path, _ := fakeFFmpeg(t, progressScript)
	tc := newTestTranscoder(path, Options{})

	rec := &recorder{}
	out, err := tc.Encode(context.Background(), Request{
		Source: "/in/a.mkv", Output: "/out/a.mkv", Duration: 10 * time.Second,
	}, rec.report)
	require.NoError(t, err)
	assert.Equal(t, "/out/a.mkv", out)

	assert.Equal(t, []float64{0.5, 1}, rec.progress())
	require.NotEmpty(t, rec.ticks)
	assert.NotNil(t, rec.ticks[0].Process)
	assert.Equal(t, 0, rec.ticks[0].Pass)
}

func TestEncode_TwoPassAggregatesProgress(t *testing.T) {
	path, logPath := fakeFFmpeg(t, progressScript)
	dir := t.TempDir()
	tc := newTestTranscoder(path, Options{StatsDir: dir})

	rec := &recorder{}
	req := Request{
		Source: "/in/a.mkv", Output: filepath.Join(dir, "a.mkv"), Duration: 10 * time.Second,
		Tracks: []types.Track{videoTrack("libx264", 1_000_000)},
	}
	// Leftover statistics from pass 1 are removed after the encode.
	stats := req.StatsPath(tc.Options(), 0)
	require.NoError(t, os.WriteFile(stats+"-0.log", []byte("stats"), 0o644))

	_, err := tc.Encode(context.Background(), req, rec.report)
	require.NoError(t, err)

	invocations := calls(t, logPath)
	require.Len(t, invocations, 2)
	assert.Contains(t, invocations[0], "-pass 1")
	assert.Contains(t, invocations[0], "-f null")
	assert.Contains(t, invocations[1], "-pass 2")

	progress := rec.progress()
	require.Len(t, progress, 4)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.InDelta(t, DefaultPassOneWeight, progress[1], 1e-9)
	assert.InDelta(t, 1.0, progress[3], 1e-9)
	assert.Equal(t, 1, rec.ticks[0].Pass)
	assert.Equal(t, 2, rec.ticks[3].Pass)

	_, err = os.Stat(stats + "-0.log")
	assert.True(t, os.IsNotExist(err))
}

func TestEncode_RetriesMuxingQueueOverflowOnce(t *testing.T) {
	path, logPath := fakeFFmpeg(t, `
case "$*" in
  *max_muxing_queue_size*) exit 0 ;;
  *) echo "Too many packets buffered for output stream 0:1." >&2; exit 1 ;;
esac`)
	tc := newTestTranscoder(path, Options{})

	_, err := tc.Encode(context.Background(), Request{Source: "/in/a.mkv", Output: "/out/a.mkv"}, nil)
	require.NoError(t, err)

	invocations := calls(t, logPath)
	require.Len(t, invocations, 2)
	assert.NotContains(t, invocations[0], "max_muxing_queue_size")
	assert.Contains(t, invocations[1], "-max_muxing_queue_size 9999")
}

func TestEncode_OverflowRetryFailsOnlyOnce(t *testing.T) {
	path, logPath := fakeFFmpeg(t, `echo "Too many packets buffered for output stream 0:1." >&2; exit 1`)
	tc := newTestTranscoder(path, Options{})

	_, err := tc.Encode(context.Background(), Request{Source: "/in/a.mkv", Output: "/out/a.mkv"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Too many packets buffered")
	assert.Len(t, calls(t, logPath), 2)
}

func TestEncode_OtherFailuresAreNotRetried(t *testing.T) {
	path, logPath := fakeFFmpeg(t, `echo "Unknown encoder 'libfoo'" >&2; exit 1`)
	tc := newTestTranscoder(path, Options{})

	_, err := tc.Encode(context.Background(), Request{Source: "/in/a.mkv", Output: "/out/a.mkv"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown encoder")
	assert.False(t, joberrors.IsAborted(err))
	assert.Len(t, calls(t, logPath), 1)
}

func TestEncode_AbortExitCode(t *testing.T) {
	path, logPath := fakeFFmpeg(t, `exit 255`)
	tc := newTestTranscoder(path, Options{})

	_, err := tc.Encode(context.Background(), Request{
		Source: "/in/a.mkv", Output: "/out/a.mkv",
		Tracks: []types.Track{videoTrack("libx265", 1_000_000)},
	}, nil)
	require.Error(t, err)
	assert.True(t, joberrors.IsAborted(err))
	assert.Len(t, calls(t, logPath), 1, "pass 2 must not run after an abort")
}

func TestGrab_WritesWebP(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "frame.png")
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	f, err := os.Create(fixture)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	// The frame path is the last argument.
	path, logPath := fakeFFmpeg(t, `for a; do last="$a"; done; cp `+fixture+` "$last"`)
	tc := newTestTranscoder(path, Options{})

	output := filepath.Join(dir, "snap.webp")
	got, err := tc.Grab(context.Background(), GrabRequest{
		Source: "/in/a.mkv", Output: output, At: 90 * time.Second,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, output, got)

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = os.Stat(filepath.Join(dir, "snap.grab.png"))
	assert.True(t, os.IsNotExist(err), "intermediate frame is removed")
	assert.Contains(t, calls(t, logPath)[0], "-ss 90 -i /in/a.mkv -frames:v 1")
}

func TestGrab_Validation(t *testing.T) {
	tc := newTestTranscoder("/nonexistent/ffmpeg", Options{})
	_, err := tc.Grab(context.Background(), GrabRequest{Source: "/in/a.mkv"}, nil)
	assert.ErrorIs(t, err, joberrors.ErrInvalidInput)
}
