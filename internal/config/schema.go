package config

import (
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains the shape and ranges of a configuration. The
// definition is closed, so unknown keys are rejected as well.
const schemaSource = `
#Priority: "low" | "below_normal" | "normal" | "above_normal" | "high"

#Config: {
	tools: {
		ffmpeg:      string & !=""
		mkvmerge:    string & !=""
		ui_language: string
	}
	priority: #Priority
	encoding: {
		test_mode:         bool
		test_window_start: int & >=0
		pass_one_weight:   number & >0 & <1
		pass_two_weight:   number & >0 & <1
		muxing_queue_size: int & >0
		stats_dir:         string
	}
	snapshots: webp_quality: int & >=1 & <=100
	database: {
		driver:        "sqlite" | "postgres"
		dsn:           string
		history_limit: int & >=0
	}
	server: {
		enabled: bool
		address: string
	}
	logging: {
		level: "trace" | "debug" | "info" | "warn" | "error"
		json:  bool
	}
	events: {
		buffer_size:       int & >0
		subscriber_buffer: int & >0
	}
}
`

// validateSchema unifies the JSON form of cfg with #Config.
func validateSchema(cfg *Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("invalid config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	value := ctx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}
