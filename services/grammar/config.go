// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grammar

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the per-language extraction rules. It deserializes
// from YAML (config file) and JSON (LSP initializationOptions) with
// identical shapes.
type Config struct {
	Languages map[string]LanguageConfig `yaml:"languages" json:"languages"`
}

// LanguageConfig is the ordered rule list for one language.
type LanguageConfig struct {
	Nodes []QueryNodeConfig `yaml:"nodes" json:"nodes"`
}

// QueryNodeConfig is one extraction rule: a tree-sitter query plus
// per-capture transforms.
type QueryNodeConfig struct {
	// Kind is "markdown" (default) or "plaintext".
	Kind string `yaml:"kind" json:"kind"`

	// Query is tree-sitter query source. Captures named with a
	// leading underscore are anchors and are not extracted.
	Query string `yaml:"query" json:"query"`

	// Transforms maps capture names to ordered rewrite lists.
	Transforms map[string]TransformList `yaml:"transforms" json:"transforms"`
}

// TransformConfig is one rewrite rule. It deserializes either from
// the compact string form `/regex/replace/flags` or from an explicit
// mapping {regex, replace, flags}.
type TransformConfig struct {
	Regex   string `yaml:"regex" json:"regex"`
	Replace string `yaml:"replace" json:"replace"`
	Flags   string `yaml:"flags" json:"flags"`

	// compact holds the string form when that is how the rule was
	// written; empty otherwise.
	compact string
}

// TransformList accepts a single transform or a list of them.
type TransformList []TransformConfig

// UnmarshalYAML accepts a string, a mapping, or a sequence of either.
func (l *TransformList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var items []TransformConfig
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var single TransformConfig
	if err := value.Decode(&single); err != nil {
		return err
	}
	*l = TransformList{single}
	return nil
}

// UnmarshalJSON accepts a string, an object, or an array of either.
func (l *TransformList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var items []TransformConfig
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var single TransformConfig
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = TransformList{single}
	return nil
}

// UnmarshalYAML accepts the compact string form or a mapping.
func (t *TransformConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		t.compact = s
		return nil
	}
	type plain TransformConfig
	return value.Decode((*plain)(t))
}

// UnmarshalJSON accepts the compact string form or an object.
func (t *TransformConfig) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t.compact = s
		return nil
	}
	type plain TransformConfig
	return json.Unmarshal(data, (*plain)(t))
}

// LoadFile reads a YAML config file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseJSON reads config from LSP initializationOptions.
func ParseJSON(raw json.RawMessage) (Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse initialization options: %w", err)
	}
	return cfg, nil
}

// Merge overlays other onto c: languages present in other replace the
// same language in c wholesale. Used to let user configuration
// override the built-in defaults per language.
func (c Config) Merge(other Config) Config {
	out := Config{Languages: make(map[string]LanguageConfig, len(c.Languages)+len(other.Languages))}
	for name, lc := range c.Languages {
		out.Languages[name] = lc
	}
	for name, lc := range other.Languages {
		out.Languages[name] = lc
	}
	return out
}

// DefaultConfig returns the built-in extraction rules. Doc comments
// are treated as Markdown, matching how editors render them.
func DefaultConfig() Config {
	return Config{Languages: map[string]LanguageConfig{
		"rust": {Nodes: []QueryNodeConfig{{
			Kind:  "markdown",
			Query: `((line_comment) @comment (#match? @comment "^//[/!]"))`,
			Transforms: map[string]TransformList{
				"comment": {{compact: `/^\/\/[\/!] ?//`}},
			},
		}}},
		"go": {Nodes: []QueryNodeConfig{{
			Kind:  "markdown",
			Query: `((comment) @comment (#match? @comment "^//"))`,
			Transforms: map[string]TransformList{
				"comment": {{compact: `/^\/\/ ?//`}},
			},
		}}},
		"python": {Nodes: []QueryNodeConfig{{
			Kind:  "markdown",
			Query: `((comment) @comment)`,
			Transforms: map[string]TransformList{
				"comment": {{compact: `/^# ?//`}},
			},
		}}},
		"javascript": {Nodes: []QueryNodeConfig{{
			Kind:  "markdown",
			Query: `((comment) @comment (#match? @comment "^//"))`,
			Transforms: map[string]TransformList{
				"comment": {{compact: `/^\/\/ ?//`}},
			},
		}}},
		"markdown": {Nodes: []QueryNodeConfig{{
			Kind:  "markdown",
			Query: `((document) @text)`,
		}}},
	}}
}
