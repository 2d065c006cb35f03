// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quillcheck/quillcheck/services/checker"
	"github.com/quillcheck/quillcheck/services/grammar"
)

// Settings is the server configuration. It loads from a YAML file and
// is then overlaid by the editor's initializationOptions, which share
// the same shape in JSON.
type Settings struct {
	Backend   BackendSettings                   `yaml:"backend" json:"backend"`
	Check     CheckSettings                     `yaml:"check" json:"check"`
	Languages map[string]grammar.LanguageConfig `yaml:"languages" json:"languages"`
}

// BackendSettings configures the checking backend. An empty URL
// disables checking; the server still runs so extraction problems
// surface in logs rather than killing the editor session.
type BackendSettings struct {
	URL           string  `yaml:"url" json:"url"`
	TimeoutMs     int     `yaml:"timeout_ms" json:"timeoutMs"`
	MaxConcurrent int     `yaml:"max_concurrent" json:"maxConcurrent"`
	RatePerSecond float64 `yaml:"rate_per_second" json:"ratePerSecond"`
	MaxAttempts   int     `yaml:"max_attempts" json:"maxAttempts"`
	RetryDelayMs  int     `yaml:"retry_delay_ms" json:"retryDelayMs"`
}

// CheckSettings configures what gets checked and when.
type CheckSettings struct {
	// Language is the natural language sent to the backend,
	// e.g. "en-US" or "auto".
	Language string `yaml:"language" json:"language"`

	// DebounceMs is the quiet period after an edit before a check
	// starts.
	DebounceMs int `yaml:"debounce_ms" json:"debounceMs"`

	// CacheSize is the result cache capacity in entries.
	CacheSize int `yaml:"cache_size" json:"cacheSize"`
}

// DefaultSettings returns the defaults applied under any explicit
// configuration.
func DefaultSettings() Settings {
	return Settings{
		Backend: BackendSettings{
			TimeoutMs:     10000,
			MaxConcurrent: 4,
			RatePerSecond: 20,
			MaxAttempts:   3,
			RetryDelayMs:  200,
		},
		Check: CheckSettings{
			Language:   "en-US",
			DebounceMs: 500,
			CacheSize:  256,
		},
	}
}

// LoadSettings reads a YAML settings file over the defaults. An empty
// path returns the defaults unchanged.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// ApplyJSON overlays initializationOptions. Decoding into the
// existing struct means only the fields the editor sent change.
func (s *Settings) ApplyJSON(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, s); err != nil {
		return fmt.Errorf("parse initialization options: %w", err)
	}
	return nil
}

// Debounce returns the edit quiet period.
func (s Settings) Debounce() time.Duration {
	if s.Check.DebounceMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(s.Check.DebounceMs) * time.Millisecond
}

// GrammarConfig merges the configured extraction rules over the
// built-in defaults.
func (s Settings) GrammarConfig() grammar.Config {
	return grammar.DefaultConfig().Merge(grammar.Config{Languages: s.Languages})
}

// DispatcherOptions translates the backend settings.
func (s Settings) DispatcherOptions() checker.Options {
	return checker.Options{
		MaxConcurrent: s.Backend.MaxConcurrent,
		RatePerSecond: s.Backend.RatePerSecond,
		CacheSize:     s.Check.CacheSize,
		MaxAttempts:   s.Backend.MaxAttempts,
		RetryDelay:    time.Duration(s.Backend.RetryDelayMs) * time.Millisecond,
	}
}

// BackendTimeout returns the per-request timeout.
func (s Settings) BackendTimeout() time.Duration {
	if s.Backend.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.Backend.TimeoutMs) * time.Millisecond
}
