// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grammar

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const luaYAML = `
languages:
  lua:
    nodes:
      - kind: plaintext
        query: '((comment) @comment)'
        transforms:
          comment: "/^-- ?//"
`

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quillcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(luaYAML), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	lc, ok := cfg.Languages["lua"]
	require.True(t, ok)
	require.Len(t, lc.Nodes, 1)
	assert.Equal(t, "plaintext", lc.Nodes[0].Kind)
	assert.Equal(t, `((comment) @comment)`, lc.Nodes[0].Query)
	require.Len(t, lc.Nodes[0].Transforms["comment"], 1)
	assert.Equal(t, "/^-- ?//", lc.Nodes[0].Transforms["comment"][0].compact)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// A transform can be written as a compact string, a mapping, or a list
// mixing both.
func TestTransformShapesYAML(t *testing.T) {
	const src = `
languages:
  x:
    nodes:
      - query: '((comment) @c)'
        transforms:
          c:
            - "/^; ?//"
            - regex: '\\(.)'
              replace: "$1"
              flags: i
`
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	list := cfg.Languages["x"].Nodes[0].Transforms["c"]
	require.Len(t, list, 2)
	assert.Equal(t, "/^; ?//", list[0].compact)
	assert.Empty(t, list[1].compact)
	assert.Equal(t, `\\(.)`, list[1].Regex)
	assert.Equal(t, "$1", list[1].Replace)
	assert.Equal(t, "i", list[1].Flags)
}

func TestParseJSONShapes(t *testing.T) {
	raw := json.RawMessage(`{
		"languages": {
			"x": {"nodes": [{
				"query": "((comment) @c)",
				"transforms": {
					"c": "/^%//",
					"d": [{"regex": "a", "replace": "b"}]
				}
			}]}
		}
	}`)
	cfg, err := ParseJSON(raw)
	require.NoError(t, err)

	node := cfg.Languages["x"].Nodes[0]
	require.Len(t, node.Transforms["c"], 1)
	assert.Equal(t, "/^%//", node.Transforms["c"][0].compact)
	require.Len(t, node.Transforms["d"], 1)
	assert.Equal(t, "a", node.Transforms["d"][0].Regex)
}

func TestParseJSONEmpty(t *testing.T) {
	cfg, err := ParseJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Languages)
}

func TestParseJSONInvalid(t *testing.T) {
	_, err := ParseJSON(json.RawMessage(`{"languages": 7}`))
	assert.Error(t, err)
}

// User languages replace defaults wholesale per language; untouched
// defaults survive.
func TestMergeReplacesPerLanguage(t *testing.T) {
	user := Config{Languages: map[string]LanguageConfig{
		"go":  {Nodes: []QueryNodeConfig{{Kind: "plaintext", Query: `((comment) @c)`}}},
		"lua": {Nodes: []QueryNodeConfig{{Query: `((comment) @c)`}}},
	}}
	merged := DefaultConfig().Merge(user)

	assert.Equal(t, "plaintext", merged.Languages["go"].Nodes[0].Kind)
	assert.Contains(t, merged.Languages, "lua")
	assert.Contains(t, merged.Languages, "rust")
	assert.Contains(t, merged.Languages, "markdown")
}

func TestDefaultConfigCompiles(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)
	for name := range DefaultConfig().Languages {
		_, err := r.Load(name)
		assert.NoError(t, err, "language %s", name)
	}
}
