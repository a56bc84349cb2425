// Package config loads the remuxer configuration from YAML, applies
// environment overrides and validates the result against an embedded CUE
// schema before handing it out.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Tools     ToolsConfig    `yaml:"tools" json:"tools"`
	Priority  string         `yaml:"priority" json:"priority" env:"REMUXER_PRIORITY"`
	Encoding  EncodingConfig `yaml:"encoding" json:"encoding"`
	Snapshots SnapshotConfig `yaml:"snapshots" json:"snapshots"`
	Database  DatabaseConfig `yaml:"database" json:"database"`
	Server    ServerConfig   `yaml:"server" json:"server"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`
	Events    EventsConfig   `yaml:"events" json:"events"`
}

// ToolsConfig locates the external tools
type ToolsConfig struct {
	FFmpeg     string `yaml:"ffmpeg" json:"ffmpeg" env:"REMUXER_FFMPEG"`
	Mkvmerge   string `yaml:"mkvmerge" json:"mkvmerge" env:"REMUXER_MKVMERGE"`
	UILanguage string `yaml:"ui_language" json:"ui_language"`
}

// EncodingConfig controls transcode argument synthesis
type EncodingConfig struct {
	TestMode        bool    `yaml:"test_mode" json:"test_mode" env:"REMUXER_TEST_MODE"`
	TestWindowStart int     `yaml:"test_window_start" json:"test_window_start"` // seconds
	PassOneWeight   float64 `yaml:"pass_one_weight" json:"pass_one_weight"`
	PassTwoWeight   float64 `yaml:"pass_two_weight" json:"pass_two_weight"`
	MuxingQueueSize int     `yaml:"muxing_queue_size" json:"muxing_queue_size"`
	StatsDir        string  `yaml:"stats_dir" json:"stats_dir"`
}

// SnapshotConfig controls frame grabbing
type SnapshotConfig struct {
	WebPQuality int `yaml:"webp_quality" json:"webp_quality"`
}

// DatabaseConfig selects the job history store
type DatabaseConfig struct {
	Driver       string `yaml:"driver" json:"driver" env:"REMUXER_DATABASE_DRIVER"`
	DSN          string `yaml:"dsn" json:"dsn" env:"REMUXER_DATABASE_DSN"`
	HistoryLimit int    `yaml:"history_limit" json:"history_limit"`
}

// ServerConfig holds the HTTP API configuration
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address" env:"REMUXER_SERVER_ADDRESS"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"REMUXER_LOG_LEVEL"`
	JSON  bool   `yaml:"json" json:"json" env:"REMUXER_LOG_JSON"`
}

// EventsConfig sizes the event bus
type EventsConfig struct {
	BufferSize       int `yaml:"buffer_size" json:"buffer_size"`
	SubscriberBuffer int `yaml:"subscriber_buffer" json:"subscriber_buffer"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Tools: ToolsConfig{
			FFmpeg:     "ffmpeg",
			Mkvmerge:   "mkvmerge",
			UILanguage: "en_US",
		},
		Priority: process.PriorityBelowNormal.String(),
		Encoding: EncodingConfig{
			TestWindowStart: 300,
			PassOneWeight:   170.0 / 936.0,
			PassTwoWeight:   766.0 / 936.0,
			MuxingQueueSize: 9999,
			StatsDir:        os.TempDir(),
		},
		Snapshots: SnapshotConfig{
			WebPQuality: 80,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "remuxer.db",
			HistoryLimit: 200,
		},
		Server: ServerConfig{
			Enabled: true,
			Address: "127.0.0.1:8686",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Events: EventsConfig{
			BufferSize:       500,
			SubscriberBuffer: 64,
		},
	}
}

// ProcessPriority returns the configured OS scheduling priority.
func (c *Config) ProcessPriority() process.Priority {
	p, err := process.ParsePriority(c.Priority)
	if err != nil {
		return process.PriorityNormal
	}
	return p
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Tools.FFmpeg == "" {
		return &ValidationError{Field: "tools.ffmpeg", Message: "must not be empty"}
	}
	if c.Tools.Mkvmerge == "" {
		return &ValidationError{Field: "tools.mkvmerge", Message: "must not be empty"}
	}
	if _, err := process.ParsePriority(c.Priority); err != nil {
		return &ValidationError{Field: "priority", Message: err.Error()}
	}
	if c.Encoding.PassOneWeight <= 0 || c.Encoding.PassTwoWeight <= 0 {
		return &ValidationError{Field: "encoding.pass_one_weight", Message: "pass weights must be positive"}
	}
	if c.Encoding.TestWindowStart < 0 {
		return &ValidationError{Field: "encoding.test_window_start", Message: "must not be negative"}
	}
	if c.Snapshots.WebPQuality < 1 || c.Snapshots.WebPQuality > 100 {
		return &ValidationError{Field: "snapshots.webp_quality", Message: "must be between 1 and 100"}
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return &ValidationError{Field: "database.driver", Message: fmt.Sprintf("unsupported driver %q", c.Database.Driver)}
	}
	if c.Server.Enabled && c.Server.Address == "" {
		return &ValidationError{Field: "server.address", Message: "required when the server is enabled"}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error in field '" + e.Field + "': " + e.Message
}

// Load reads path on top of the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := validateSchema(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		intVal, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intVal)
	case reflect.Float64:
		floatVal, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}
	return nil
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(oldConfig, newConfig *Config)

// Manager holds the current configuration and notifies watchers on reload.
type Manager struct {
	path     string
	mu       sync.RWMutex
	config   *Config
	watchers []ConfigWatcher
}

// NewManager loads path and returns a manager holding the result.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, config: cfg}, nil
}

// Path returns the config file path.
func (m *Manager) Path() string {
	return m.path
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// AddWatcher adds a configuration change watcher
func (m *Manager) AddWatcher(w ConfigWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, w)
}

// Reload re-reads the file. On failure the previous configuration stays in
// effect. Watchers run synchronously after a successful reload.
func (m *Manager) Reload() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.swap(cfg)
	return nil
}

// Update applies fn to a copy of the current configuration, validates it,
// persists it when the manager has a path and notifies watchers.
func (m *Manager) Update(fn func(*Config)) error {
	cfg := m.Get()
	fn(cfg)
	if err := validateSchema(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}
	m.swap(cfg)
	return nil
}

func (m *Manager) swap(cfg *Config) {
	m.mu.Lock()
	old := m.config
	m.config = cfg
	watchers := append([]ConfigWatcher(nil), m.watchers...)
	m.mu.Unlock()

	for _, w := range watchers {
		w(old, cfg)
	}
}
