package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed settings.schema.json
var settingsSchemaJSON []byte

var (
	settingsSchemaOnce sync.Once
	settingsSchema     *jsonschema.Schema
	settingsSchemaErr  error
)

// Settings is the hot-reloadable subset of the configuration that editor
// front-ends may push over IPC. Pointer fields distinguish "absent" from
// zero values so partial updates leave unmentioned settings untouched.
type Settings struct {
	Enabled            *bool    `json:"enabled,omitempty"`
	RefreshDelayMs     *int     `json:"refresh_delay_ms,omitempty"`
	EchoWindowMs       *int     `json:"echo_window_ms,omitempty"`
	PollIntervalMs     *int     `json:"poll_interval_ms,omitempty"`
	Extensions         []string `json:"extensions,omitempty"`
	ConflictResolution *string  `json:"conflict_resolution,omitempty"`
	ShowNotifications  *bool    `json:"show_notifications,omitempty"`
	LogLevel           *string  `json:"log_level,omitempty"`
	ShowWelcomeBanner  *bool    `json:"show_welcome_banner,omitempty"`
}

func compiledSettingsSchema() (*jsonschema.Schema, error) {
	settingsSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("settings.schema.json", bytes.NewReader(settingsSchemaJSON)); err != nil {
			settingsSchemaErr = err
			return
		}
		settingsSchema, settingsSchemaErr = compiler.Compile("settings.schema.json")
	})
	return settingsSchema, settingsSchemaErr
}

// ValidateSettingsJSON checks a raw settings payload against the embedded
// JSON Schema.
func ValidateSettingsJSON(data []byte) error {
	schema, err := compiledSettingsSchema()
	if err != nil {
		return fmt.Errorf("compile settings schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("settings payload is not valid JSON: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("settings payload rejected: %w", err)
	}
	return nil
}

// ApplySettingsJSON validates data and merges it into a clone of cfg. cfg
// itself is not modified.
func ApplySettingsJSON(cfg *Config, data []byte) (*Config, error) {
	if err := ValidateSettingsJSON(data); err != nil {
		return nil, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode settings payload: %w", err)
	}

	next := cfg.Clone()
	if s.Enabled != nil {
		next.Watch.Enabled = *s.Enabled
	}
	if s.RefreshDelayMs != nil {
		next.Watch.RefreshDelayMs = *s.RefreshDelayMs
	}
	if s.EchoWindowMs != nil {
		next.Watch.EchoWindowMs = *s.EchoWindowMs
	}
	if s.PollIntervalMs != nil {
		next.Watch.PollIntervalMs = *s.PollIntervalMs
	}
	if len(s.Extensions) > 0 {
		next.Watch.Extensions = append([]string{}, s.Extensions...)
	}
	if s.ConflictResolution != nil {
		next.Conflict.Resolution = *s.ConflictResolution
	}
	if s.ShowNotifications != nil {
		next.Conflict.ShowNotifications = *s.ShowNotifications
	}
	if s.LogLevel != nil {
		next.Logging.Level = *s.LogLevel
	}
	if s.ShowWelcomeBanner != nil {
		next.UI.ShowWelcomeBanner = *s.ShowWelcomeBanner
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}
