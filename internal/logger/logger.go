// Package logger builds the root hclog logger from configuration.
package logger

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/config"
)

// Name is the root logger name; services derive theirs with Named.
const Name = "remuxer"

// New returns a logger writing to stderr.
func New(cfg config.LoggingConfig) hclog.Logger {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput returns a logger writing to w. Unknown levels fall back
// to info.
func NewWithOutput(cfg config.LoggingConfig, w io.Writer) hclog.Logger {
	level := hclog.LevelFromString(cfg.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       Name,
		Level:      level,
		Output:     w,
		JSONFormat: cfg.JSON,
	})
}

// Watch keeps the level of l in sync with configuration reloads.
func Watch(l hclog.Logger) config.ConfigWatcher {
	return func(oldCfg, newCfg *config.Config) {
		if oldCfg.Logging.Level == newCfg.Logging.Level {
			return
		}
		level := hclog.LevelFromString(newCfg.Logging.Level)
		if level == hclog.NoLevel {
			return
		}
		l.SetLevel(level)
		l.Info("log level changed", "level", newCfg.Logging.Level)
	}
}
