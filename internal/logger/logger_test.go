package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithOutput_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(config.LoggingConfig{Level: "warn"}, &buf)

	l.Info("hidden")
	l.Warn("shown", "job_id", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "job_id=abc")
}

func TestNewWithOutput_UnknownLevelFallsBackToInfo(t *testing.T) {
	l := NewWithOutput(config.LoggingConfig{Level: "chatty"}, &bytes.Buffer{})
	assert.Equal(t, hclog.Info, l.GetLevel())
}

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput(config.LoggingConfig{Level: "info", JSON: true}, &buf)
	l.Named("job-manager").Info("queued", "job_type", "encode")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "queued", entry["@message"])
	assert.Equal(t, "remuxer.job-manager", entry["@module"])
	assert.Equal(t, "encode", entry["job_type"])
}

func TestWatch_AppliesLevelChange(t *testing.T) {
	l := NewWithOutput(config.LoggingConfig{Level: "info"}, &bytes.Buffer{})
	watch := Watch(l)

	oldCfg := config.Default()
	newCfg := config.Default()
	newCfg.Logging.Level = "debug"
	watch(oldCfg, newCfg)
	assert.Equal(t, hclog.Debug, l.GetLevel())

	bad := config.Default()
	bad.Logging.Level = "nonsense"
	watch(newCfg, bad)
	assert.Equal(t, hclog.Debug, l.GetLevel())
}
