// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Transform is a single regex rewrite applied to a captured span
// before it joins a block: stripping comment markers, unescaping
// sequences, and similar marker removal.
//
// Transforms are pure: Apply never mutates shared state, and the
// returned OffsetMap records exactly which output bytes came from
// which input bytes, so diagnostics survive length-changing rewrites.
type Transform struct {
	re          *regexp.Regexp
	replacement string

	// source is the definition string the transform was compiled
	// from, kept for error reporting and config round-trips.
	source string
}

// CompileTransform compiles a transform from its parts. Flags:
//
//	m — multiline: ^ and $ match at line boundaries
//	i — case-insensitive
//
// The replacement uses Go regexp expansion syntax ($1, ${name}).
func CompileTransform(pattern, replacement string, flags string) (Transform, error) {
	var prefix strings.Builder
	for _, f := range flags {
		switch f {
		case 'm':
			prefix.WriteString("(?m)")
		case 'i':
			prefix.WriteString("(?i)")
		default:
			return Transform{}, fmt.Errorf("unknown transform flag %q (valid: m, i)", string(f))
		}
	}
	re, err := regexp.Compile(prefix.String() + pattern)
	if err != nil {
		return Transform{}, fmt.Errorf("compile transform /%s/: %w", pattern, err)
	}
	return Transform{
		re:          re,
		replacement: replacement,
		source:      "/" + pattern + "/" + replacement + "/" + flags,
	}, nil
}

// ParseTransform parses the compact `/regex/replacement/flags` form
// used in language configuration. A `/` inside the regex or the
// replacement is escaped as `\/`; all other backslash escapes pass
// through to the regex engine untouched.
//
//	/^\s*\/\/\/ ?//m    strip leading doc-comment markers
//	/\\n/\n/            unescape embedded newlines
func ParseTransform(s string) (Transform, error) {
	if !strings.HasPrefix(s, "/") {
		return Transform{}, fmt.Errorf("transform %q does not start with '/'", s)
	}
	parts := make([]strings.Builder, 3)
	part := 0
	escaped := false
	for _, c := range s[1:] {
		switch {
		case escaped:
			if c != '/' {
				parts[part].WriteByte('\\')
			}
			parts[part].WriteRune(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '/':
			part++
			if part > 2 {
				return Transform{}, fmt.Errorf("transform %q has too many '/' separators (escape literal slashes as \\/)", s)
			}
		default:
			parts[part].WriteRune(c)
		}
	}
	if escaped {
		return Transform{}, fmt.Errorf("transform %q ends with a dangling backslash", s)
	}
	if part < 1 {
		return Transform{}, fmt.Errorf("transform %q is missing its replacement part", s)
	}
	return CompileTransform(parts[0].String(), parts[1].String(), parts[2].String())
}

// String returns the compact definition form.
func (t Transform) String() string { return t.source }

// Apply rewrites text and returns the result together with a map
// from result offsets back to input offsets. Non-matching stretches
// map exactly; each match maps as one rewritten piece.
func (t Transform) Apply(text string) (string, *OffsetMap) {
	matches := t.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, Identity(len(text))
	}

	var out strings.Builder
	b := NewMapBuilder(0, 0)
	last := 0
	for _, match := range matches {
		ms, me := match[0], match[1]
		if ms < last {
			continue
		}
		b.Keep(ms - last)
		out.WriteString(text[last:ms])

		expanded := t.re.ExpandString(nil, t.replacement, text, match)
		b.Replace(me-ms, len(expanded))
		out.Write(expanded)
		last = me
	}
	b.Keep(len(text) - last)
	out.WriteString(text[last:])
	return out.String(), b.Build()
}

// applyAll runs an ordered transform list, composing the offset maps
// so the final map still points at the original capture text.
func applyAll(transforms []Transform, text string) (string, *OffsetMap) {
	result := text
	m := Identity(len(text))
	for _, t := range transforms {
		next, step := t.Apply(result)
		m = m.Compose(step)
		result = next
	}
	return result, m
}
