package mux

import (
	"context"
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

// fakeMkvmerge writes a shell script standing in for mkvmerge. Its arguments
// are appended to the returned log file.
func fakeMkvmerge(t *testing.T, body string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	dir := t.TempDir()
	logPath := filepath.Join(dir, "calls.log")
	script := "#!/bin/sh\necho \"$*\" >> " + logPath + "\n" + body + "\n"
	path := filepath.Join(dir, "mkvmerge")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, logPath
}

func newTestMuxer(path string) *Muxer {
	driver := NewDriver(path, processtest.NewController(), nil, hclog.NewNullLogger())
	return NewMuxer(driver, "", hclog.NewNullLogger())
}

func TestProbe_DecodesIdentification(t *testing.T) {
	path, logPath := fakeMkvmerge(t, "cat <<'JSON'\n"+identification+"\nJSON\nexit 0")

	info, err := newTestMuxer(path).Probe(context.Background(), "/media/movie.mkv")
	require.NoError(t, err)
	assert.Equal(t, "Movie", info.Title())
	assert.Len(t, info.Tracks, 4)
	assert.Nil(t, info.Tags)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "-J /media/movie.mkv --ui-language en_US", strings.TrimSpace(string(data)))
}

func TestProbe_MalformedOutputIsSurfacedVerbatim(t *testing.T) {
	path, _ := fakeMkvmerge(t, `echo "not json at all"; exit 0`)

	_, err := newTestMuxer(path).Probe(context.Background(), "/media/movie.mkv")
	require.Error(t, err)
	assert.ErrorIs(t, err, joberrors.ErrMalformedOutput)
	assert.Equal(t, "not json at all", err.Error())
}

func TestProbe_SurfacesIdentificationError(t *testing.T) {
	path, _ := fakeMkvmerge(t, `echo '{"errors": ["The file type is not supported."]}'; exit 2`)

	_, err := newTestMuxer(path).Probe(context.Background(), "/media/movie.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "The file type is not supported.")
	assert.Equal(t, joberrors.ErrorTypeCommand, joberrors.GetType(err))
}

func TestProbe_RequiresPath(t *testing.T) {
	_, err := newTestMuxer("mkvmerge").Probe(context.Background(), "")
	assert.Equal(t, joberrors.ErrorTypeValidation, joberrors.GetType(err))
}

func TestRemux_ReportsProgressAndReturnsOutput(t *testing.T) {
	path, logPath := fakeMkvmerge(t, `
echo "mkvmerge v80.0 ('Roundabout') 64-bit"
echo "Progress: 25%"
echo "Warning: track 2 has no timestamps"
echo "Progress: 100%"
echo "Multiplexing took 2 seconds."
exit 1`)

	var (
		mu    sync.Mutex
		ticks []float64
	)
	out, err := newTestMuxer(path).Remux(context.Background(), RemuxRequest{
		Source: "in.mkv",
		Output: "out.mkv",
		Tracks: sampleTracks(),
	}, func(p types.Progression) {
		mu.Lock()
		defer mu.Unlock()
		ticks = append(ticks, p.Progress)
		assert.NotNil(t, p.Process)
	})
	require.NoError(t, err)
	assert.Equal(t, "out.mkv", out)
	assert.Equal(t, []float64{0.25, 1}, ticks)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "--audio-tracks !3 ( in.mkv )")
}

func TestRemux_ReturnsReportedOutputPath(t *testing.T) {
	path, _ := fakeMkvmerge(t, `
echo "mkvmerge v80.0 ('Roundabout') 64-bit"
echo "The file '/media/out/movie.mkv' has been opened for writing."
echo "Progress: 100%"
echo "Multiplexing took 1 second."
exit 0`)

	out, err := newTestMuxer(path).Remux(context.Background(), RemuxRequest{Source: "in.mkv", Output: "out.mkv"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/media/out/movie.mkv", out)
}

func TestRemux_ErrorLineBecomesFailure(t *testing.T) {
	path, _ := fakeMkvmerge(t, `
echo "Progress: 10%"
echo "Error: The file 'in.mkv' could not be opened for reading."
exit 2`)

	_, err := newTestMuxer(path).Remux(context.Background(), RemuxRequest{Source: "in.mkv", Output: "out.mkv"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, joberrors.ErrCommandFailed)
	assert.Contains(t, err.Error(), "could not be opened for reading")
}

func TestRemux_Abort(t *testing.T) {
	path, _ := fakeMkvmerge(t, `echo "Progress: 1%"; exec sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)
	// The OS controller actually terminates the fixture process.
	m := NewMuxer(NewDriver(path, nil, nil, hclog.NewNullLogger()), "", hclog.NewNullLogger())
	go func() {
		_, err := m.Remux(ctx, RemuxRequest{Source: "in.mkv", Output: "out.mkv"}, func(types.Progression) {
			once.Do(func() { close(started) })
		})
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("remux did not start")
	}
	cancel()
	select {
	case err := <-done:
		assert.True(t, joberrors.IsAborted(err), "got %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("remux was not terminated")
	}
}

func TestVersion(t *testing.T) {
	path, _ := fakeMkvmerge(t, `echo "mkvmerge v80.0 ('Roundabout') 64-bit"`)

	v, err := newTestMuxer(path).Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "80.0", v)
}
