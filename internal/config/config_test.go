package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "remuxer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.NoError(t, validateSchema(cfg))
	assert.Equal(t, process.PriorityBelowNormal, cfg.ProcessPriority())
	assert.InDelta(t, 0.1816, cfg.Encoding.PassOneWeight, 0.0001)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Tools, cfg.Tools)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
tools:
  ffmpeg: /opt/ffmpeg/bin/ffmpeg
priority: high
encoding:
  test_mode: true
database:
  driver: postgres
  dsn: host=localhost user=remuxer
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.Tools.FFmpeg)
	assert.Equal(t, "mkvmerge", cfg.Tools.Mkvmerge)
	assert.Equal(t, process.PriorityHigh, cfg.ProcessPriority())
	assert.True(t, cfg.Encoding.TestMode)
	assert.Equal(t, 9999, cfg.Encoding.MuxingQueueSize)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("REMUXER_FFMPEG", "/usr/local/bin/ffmpeg")
	t.Setenv("REMUXER_MKVMERGE", "/usr/local/bin/mkvmerge")
	t.Setenv("REMUXER_LOG_LEVEL", "debug")
	t.Setenv("REMUXER_TEST_MODE", "true")

	path := writeConfig(t, t.TempDir(), "tools:\n  ffmpeg: /from/file\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/ffmpeg", cfg.Tools.FFmpeg)
	assert.Equal(t, "/usr/local/bin/mkvmerge", cfg.Tools.Mkvmerge)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Encoding.TestMode)
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("REMUXER_TEST_MODE", "maybe")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_SchemaRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"priority":     "priority: urgent\n",
		"log level":    "logging:\n  level: verbose\n",
		"weight range": "encoding:\n  pass_one_weight: 1.5\n",
		"webp quality": "snapshots:\n  webp_quality: 0\n",
		"driver":       "database:\n  driver: mysql\n",
		"queue size":   "encoding:\n  muxing_queue_size: 0\n",
		"malformed":    "tools: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), body))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Address = ""
	err := cfg.Validate()
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "server.address", vErr.Field)

	cfg.Server.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestManager_UpdateNotifiesAndPersists(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "priority: normal\n")
	m, err := NewManager(path)
	require.NoError(t, err)

	var changes []string
	m.AddWatcher(func(oldCfg, newCfg *Config) {
		changes = append(changes, oldCfg.Priority+"->"+newCfg.Priority)
	})

	require.NoError(t, m.Update(func(c *Config) { c.Priority = "low" }))
	assert.Equal(t, []string{"normal->low"}, changes)
	assert.Equal(t, "low", m.Get().Priority)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "low", reloaded.Priority)

	assert.Error(t, m.Update(func(c *Config) { c.Priority = "bogus" }))
	assert.Equal(t, "low", m.Get().Priority)
	assert.Len(t, changes, 1)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "priority: normal\n")
	m, err := NewManager(path)
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		latest string
	)
	m.AddWatcher(func(_, newCfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		latest = newCfg.Priority
	})

	w, err := NewWatcher(m, 20*time.Millisecond, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeConfig(t, dir, "priority: high\n")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return latest == "high"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, process.PriorityHigh, m.Get().ProcessPriority())
}

func TestWatcher_KeepsConfigOnInvalidWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "priority: normal\n")
	m, err := NewManager(path)
	require.NoError(t, err)

	w, err := NewWatcher(m, 10*time.Millisecond, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeConfig(t, dir, "priority: urgent\n")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "normal", m.Get().Priority)
}
